package export

import (
	"errors"
	"os"
	"strings"
)

// SyncState describes how much of a page's output already exists locally.
// It is derived from the filesystem on every run; the export tree itself is
// the only durable state.
type SyncState int

const (
	// StateUnsynced means the page's markdown file does not exist.
	StateUnsynced SyncState = iota

	// StatePartiallySynced means the markdown file exists but a previous
	// run did not finish: either the section's assets directory is missing,
	// or the content still references the remote host (an undownloaded
	// image or attachment leaves its original URL in place).
	StatePartiallySynced

	// StateSynced means the page is fully materialized locally.
	StateSynced
)

func (s SyncState) String() string {
	switch s {
	case StateUnsynced:
		return "unsynced"
	case StatePartiallySynced:
		return "partial"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Classify derives a page's sync state from observable facts alone.
//
// The remote-host substring check is a heuristic: it cannot tell "one image
// failed to download" from "the page never had that image", but it reliably
// catches the common interrupted-run case because any media that was not
// downloaded keeps its remote URL in the converted markdown. A legitimate
// hyperlink to the remote host in page text would also trigger a re-sync;
// that imprecision is accepted.
func Classify(outputExists, assetsDirExists bool, content, remoteHost string) SyncState {
	if !outputExists {
		return StateUnsynced
	}
	if !assetsDirExists {
		return StatePartiallySynced
	}
	if remoteHost != "" && strings.Contains(content, remoteHost) {
		return StatePartiallySynced
	}
	return StateSynced
}

// ClassifyPage inspects the filesystem for a page's markdown file and its
// section's assets directory and classifies the page. An existing but
// unreadable file is treated as partially synced so the next run rewrites it.
func ClassifyPage(mdPath, assetsDir, remoteHost string) SyncState {
	content, err := os.ReadFile(mdPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StateUnsynced
		}
		return StatePartiallySynced
	}

	info, err := os.Stat(assetsDir)
	assetsExists := err == nil && info.IsDir()

	return Classify(true, assetsExists, string(content), remoteHost)
}
