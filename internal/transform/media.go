// Package transform turns OneNote page HTML into local-only markdown: it
// extracts embedded media references, downloads them next to the page, and
// rewrites the document so the markdown conversion only ever sees local
// paths.
package transform

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MediaKind classifies an embedded media reference.
type MediaKind int

const (
	// KindInlineImage is an <img> element: a photo, screenshot or ink
	// rendering embedded in the page.
	KindInlineImage MediaKind = iota

	// KindAttachment is a file inserted into the page; the element carries
	// the original file name in a data-attachment attribute.
	KindAttachment

	// KindPrintout is an <object> element without an attachment name,
	// typically a PDF printout or ink object.
	KindPrintout
)

func (k MediaKind) String() string {
	switch k {
	case KindInlineImage:
		return "image"
	case KindAttachment:
		return "attachment"
	case KindPrintout:
		return "printout"
	default:
		return "unknown"
	}
}

// MediaReference is one embedded image, attachment or printout found in a
// page's content.
type MediaReference struct {
	// Index is the element's position among the page's media-bearing
	// elements in document order. It keeps generated filenames unique
	// within the page.
	Index int

	// SourceURL is the absolute remote URL the media is fetched from.
	SourceURL string

	Kind MediaKind

	// AttachmentName is the original file name, set only for attachments.
	AttachmentName string

	// FileName is the generated name inside the section's assets directory.
	FileName string

	// LocalPath is the path the rewritten document references, relative to
	// the page's directory (e.g. "assets/<file>").
	LocalPath string
}

// MediaResult is a MediaReference plus its download outcome.
type MediaResult struct {
	MediaReference
	Downloaded bool
	Err        error
}

// ProcessResult is the output of processing one page.
type ProcessResult struct {
	// HTML is the serialized document with downloaded media rewritten to
	// local references. Media that failed to download keeps its remote URL,
	// which is what lets the next run detect the page as partially synced.
	HTML  string
	Media []MediaResult
}

// Downloader fetches a single remote resource into a local file.
type Downloader interface {
	DownloadFile(ctx context.Context, url, savePath string) error
}

// Processor localizes the media of a page.
type Processor struct {
	downloader Downloader
	logger     *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(d Downloader, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{downloader: d, logger: logger}
}

// mediaSelector matches every element that can carry embedded media.
// OneNote emits images as <img> and both attachments and printouts/ink as
// <object>.
const mediaSelector = "img, object"

// ExtractMedia enumerates the media references of a parsed page in document
// order. Elements without a resolvable absolute HTTP(S) source are skipped,
// but skipped elements still occupy their index so filenames stay stable
// across runs.
func ExtractMedia(doc *goquery.Document, pageID string) []MediaReference {
	var refs []MediaReference
	doc.Find(mediaSelector).Each(func(i int, s *goquery.Selection) {
		// data-fullres-src is the full-resolution variant; prefer it over
		// the standard src, then the generic object data attribute.
		src := firstAttr(s, "data-fullres-src", "src", "data")
		if !isRemoteURL(src) {
			return
		}

		ref := MediaReference{Index: i, SourceURL: src}
		if name := s.AttrOr("data-attachment", ""); name != "" {
			ref.Kind = KindAttachment
			ref.AttachmentName = name
			// Prefix with the page ID so two pages attaching "report.pdf"
			// do not collide in the shared assets directory.
			ref.FileName = pageID + "_" + sanitizeAttachmentName(name)
		} else {
			if goquery.NodeName(s) == "object" {
				ref.Kind = KindPrintout
			} else {
				ref.Kind = KindInlineImage
			}
			ref.FileName = fmt.Sprintf("%s_asset_%d%s", pageID, i, guessExtension(s))
		}
		refs = append(refs, ref)
	})
	return refs
}

// Process extracts the page's media, downloads each reference into
// assetsDir, and returns the document rewritten to local paths. The assets
// directory is created up front even when the page has no media: its
// existence is part of what marks a page as fully exported, so a page
// without images must still produce it to be skipped on the next run.
// A failed download leaves its element untouched.
func (p *Processor) Process(ctx context.Context, pageID, pageHTML, assetsDir string) (*ProcessResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing page content: %w", err)
	}

	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating assets directory: %w", err)
	}

	refs := ExtractMedia(doc, pageID)
	relDir := filepath.Base(assetsDir)

	results := make([]MediaResult, 0, len(refs))
	for _, ref := range refs {
		ref.LocalPath = path.Join(relDir, ref.FileName)
		res := MediaResult{MediaReference: ref}

		savePath := filepath.Join(assetsDir, ref.FileName)
		if err := p.downloader.DownloadFile(ctx, ref.SourceURL, savePath); err != nil {
			p.logger.Warn("media download failed, keeping remote reference",
				"page", pageID, "kind", ref.Kind, "url", ref.SourceURL, "error", err)
			res.Err = err
			results = append(results, res)
			continue
		}

		p.logger.Debug("downloaded media", "page", pageID, "kind", ref.Kind, "file", ref.FileName)
		res.Downloaded = true
		results = append(results, res)
	}

	rewrite(doc, results)

	out, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("serializing page content: %w", err)
	}
	return &ProcessResult{HTML: out, Media: results}, nil
}

// rewrite repoints successfully downloaded media at their local paths.
// Attachments become explicit links because the markdown converter cannot
// infer a file link from a bare <object>; printouts become plain images.
func rewrite(doc *goquery.Document, media []MediaResult) {
	byIndex := make(map[int]MediaResult, len(media))
	for _, m := range media {
		if m.Downloaded {
			byIndex[m.Index] = m
		}
	}

	doc.Find(mediaSelector).Each(func(i int, s *goquery.Selection) {
		m, ok := byIndex[i]
		if !ok {
			return
		}

		switch m.Kind {
		case KindAttachment:
			link := fmt.Sprintf("<a href=%q>📎 附件: %s</a>",
				m.LocalPath, html.EscapeString(m.AttachmentName))
			s.ReplaceWithHtml(link)
		case KindInlineImage:
			s.SetAttr("src", m.LocalPath)
			s.RemoveAttr("data-fullres-src")
		case KindPrintout:
			s.ReplaceWithHtml(fmt.Sprintf("<img src=%q/>", m.LocalPath))
		}
	})
}

// firstAttr returns the first non-empty attribute among names.
func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := s.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

func isRemoteURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// guessExtension picks a file extension from MIME hints anywhere in the
// element's serialized form. OneNote puts the type in different attributes
// depending on the element, so a substring check over the whole tag is the
// most robust option.
func guessExtension(s *goquery.Selection) string {
	markup, err := goquery.OuterHtml(s)
	if err != nil {
		return ".png"
	}
	switch {
	case strings.Contains(markup, "image/jpeg"):
		return ".jpg"
	case strings.Contains(markup, "application/pdf"):
		return ".pdf"
	default:
		return ".png"
	}
}

var attachmentNameReplacer = strings.NewReplacer(
	"\\", "_",
	"/", "_",
	"*", "_",
	"?", "_",
	":", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// sanitizeAttachmentName mirrors the exporter's filename sanitizer for
// original attachment names.
func sanitizeAttachmentName(name string) string {
	return strings.TrimSpace(attachmentNameReplacer.Replace(name))
}
