package transform

import (
	"fmt"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// Converter turns rewritten page HTML into markdown. It is a thin wrapper
// so the rest of the exporter does not depend on the conversion library
// directly.
type Converter struct {
	conv *md.Converter
}

// NewConverter creates a Converter with commonmark defaults.
func NewConverter() *Converter {
	return &Converter{conv: md.NewConverter("", true, nil)}
}

// Markdown converts a full HTML document to markdown text.
func (c *Converter) Markdown(pageHTML string) (string, error) {
	out, err := c.conv.ConvertString(pageHTML)
	if err != nil {
		return "", fmt.Errorf("converting to markdown: %w", err)
	}
	return out, nil
}
