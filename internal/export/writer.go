package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Writer writes the export tree under a single root directory.
type Writer struct {
	root   string
	dryRun bool
	logger *slog.Logger
}

// NewWriter creates a Writer rooted at root.
func NewWriter(root string, dryRun bool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{root: root, dryRun: dryRun, logger: logger}
}

// Path joins parts under the export root.
func (w *Writer) Path(parts ...string) string {
	return filepath.Join(append([]string{w.root}, parts...)...)
}

// EnsureDir creates a directory (relative to the root) if needed.
func (w *Writer) EnsureDir(relDir string) error {
	fullPath := w.Path(relDir)

	if w.dryRun {
		w.logger.Debug("would ensure directory", "path", fullPath)
		return nil
	}

	if err := os.MkdirAll(fullPath, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", fullPath, err)
	}
	return nil
}

// WriteMarkdown writes a page's markdown file. relDir is relative to the
// export root; filename includes the .md extension.
func (w *Writer) WriteMarkdown(relDir, filename, content string) error {
	fullPath := w.Path(relDir, filename)

	if w.dryRun {
		w.logger.Info("would write", "path", fullPath, "size", len(content))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", fullPath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing file %s: %w", fullPath, err)
	}

	w.logger.Debug("wrote file", "path", fullPath, "size", len(content))
	return nil
}
