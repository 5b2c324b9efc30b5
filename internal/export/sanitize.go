package export

import "strings"

// reservedReplacer maps characters that are invalid in filenames on at
// least one supported platform to underscores.
var reservedReplacer = strings.NewReplacer(
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

// Sanitize makes a display name safe for use as a file or directory name.
// It replaces reserved characters with underscores and trims surrounding
// whitespace. It is deterministic and never fails, but does not guarantee
// uniqueness: two distinct names may sanitize to the same result.
func Sanitize(name string) string {
	return strings.TrimSpace(reservedReplacer.Replace(name))
}

// PageFileName returns the base name (without extension) for a page's
// markdown file. Pages with an empty title get a stable fallback derived
// from their ID so re-runs resolve to the same file.
func PageFileName(title, id string) string {
	name := Sanitize(title)
	if name == "" {
		name = "Untitled_" + id
	}
	return name
}
