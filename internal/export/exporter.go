// Package export walks the remote notebook hierarchy and mirrors it into a
// local directory tree of markdown files plus downloaded media. Re-runs are
// cheap: pages whose output is already fully local are skipped, and pages
// left half-done by an interrupted run are repaired.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gjican/onexport/internal/graph"
	"github.com/gjican/onexport/internal/transform"
)

// AssetsDirName is the per-section directory holding downloaded media.
const AssetsDirName = "assets"

// PageOutcome is the per-page result of one run.
type PageOutcome int

const (
	OutcomeSynced PageOutcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o PageOutcome) String() string {
	switch o {
	case OutcomeSynced:
		return "synced"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PageResult records what happened to a single page.
type PageResult struct {
	PageID  string
	Title   string
	Path    string // relative to the export root
	Outcome PageOutcome
	Err     error
}

// Result aggregates statistics from one run. Per-page failures are
// collected here, not propagated; a run with failed pages is still a
// successful run.
type Result struct {
	Notebooks int
	Sections  int

	PagesProcessed int
	PagesSynced    int
	PagesSkipped   int
	PagesFailed    int

	Pages    []PageResult
	Errors   []error
	Duration time.Duration
}

// Progress receives walk events for a live display. All methods may be
// called from the walking goroutine only.
type Progress interface {
	AddNotebook(id, name string)
	AddSection(id, name string)
	AddPage(id, title string)
	SetSyncing(id string)
	SetSkipped(id string)
	SetDone(id string)
	SetError(id, msg string)
}

// Exporter orchestrates the notebook → section → page traversal.
type Exporter struct {
	client    *graph.Client
	processor *transform.Processor
	converter *transform.Converter
	writer    *Writer
	logger    *slog.Logger
	progress  Progress

	force  bool
	dryRun bool
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithForce re-exports every page regardless of its local state.
func WithForce(force bool) Option {
	return func(e *Exporter) { e.force = force }
}

// WithDryRun previews the walk without fetching content or writing files.
func WithDryRun(dryRun bool) Option {
	return func(e *Exporter) { e.dryRun = dryRun }
}

// WithProgress attaches a live progress display.
func WithProgress(p Progress) Option {
	return func(e *Exporter) { e.progress = p }
}

// New creates an Exporter writing under exportDir.
func New(client *graph.Client, exportDir string, logger *slog.Logger, opts ...Option) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Exporter{
		client:    client,
		converter: transform.NewConverter(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.writer = NewWriter(exportDir, e.dryRun, logger)
	e.processor = transform.NewProcessor(client, logger)
	return e
}

// Run walks the whole hierarchy once. It returns an error only when the
// top-level notebook listing fails; everything below that is skipped and
// recorded rather than aborting the run.
func (e *Exporter) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}
	remoteHost := e.client.Host()

	notebooks, err := e.client.ListNotebooks(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.Info("found notebooks", "count", len(notebooks))

	for _, nb := range notebooks {
		nbName := Sanitize(nb.DisplayName)
		e.logger.Info("processing notebook", "name", nbName)
		if e.progress != nil {
			e.progress.AddNotebook(nb.ID, nbName)
		}

		if err := e.writer.EnsureDir(nbName); err != nil {
			e.recordSubtreeFailure(result, nb.ID, fmt.Errorf("notebook %s: %w", nbName, err))
			continue
		}

		sections, err := e.client.ListSections(ctx, nb.ID)
		if err != nil {
			// Retries already happened inside the client; skip the subtree.
			e.recordSubtreeFailure(result, nb.ID, fmt.Errorf("notebook %s: %w", nbName, err))
			continue
		}
		result.Notebooks++

		for _, sec := range sections {
			secName := Sanitize(sec.DisplayName)
			secDir := filepath.Join(nbName, secName)
			e.logger.Info("processing section", "notebook", nbName, "section", secName)
			if e.progress != nil {
				e.progress.AddSection(sec.ID, secName)
			}

			if err := e.writer.EnsureDir(secDir); err != nil {
				e.recordSubtreeFailure(result, sec.ID, fmt.Errorf("section %s: %w", secDir, err))
				continue
			}

			pages, err := e.client.ListPages(ctx, sec.ID)
			if err != nil {
				e.recordSubtreeFailure(result, sec.ID, fmt.Errorf("section %s: %w", secDir, err))
				continue
			}
			result.Sections++
			if len(pages) == 0 {
				e.logger.Info("section has no pages", "section", secDir)
			}

			for _, page := range pages {
				pr := e.exportPage(ctx, page, secDir, remoteHost)

				result.PagesProcessed++
				switch pr.Outcome {
				case OutcomeSynced:
					result.PagesSynced++
				case OutcomeSkipped:
					result.PagesSkipped++
				case OutcomeFailed:
					result.PagesFailed++
				}
				if pr.Err != nil {
					result.Errors = append(result.Errors, pr.Err)
				}
				result.Pages = append(result.Pages, pr)
			}

			if e.progress != nil {
				e.progress.SetDone(sec.ID)
			}
		}
		if e.progress != nil {
			e.progress.SetDone(nb.ID)
		}
	}

	result.Duration = time.Since(start)
	e.logger.Info("export complete",
		"notebooks", result.Notebooks,
		"sections", result.Sections,
		"pages", result.PagesProcessed,
		"synced", result.PagesSynced,
		"skipped", result.PagesSkipped,
		"failed", result.PagesFailed,
		"duration", result.Duration,
	)
	return result, nil
}

// exportPage decides whether a single page needs work and, if so, fetches,
// localizes, converts and writes it. Failures are returned as values; a bad
// page never stops the walk.
func (e *Exporter) exportPage(ctx context.Context, page graph.Page, secDir, remoteHost string) PageResult {
	name := PageFileName(page.Title, page.ID)
	filename := name + ".md"
	pr := PageResult{
		PageID: page.ID,
		Title:  name,
		Path:   filepath.Join(secDir, filename),
	}
	if e.progress != nil {
		e.progress.AddPage(page.ID, name)
	}

	mdPath := e.writer.Path(secDir, filename)
	assetsDir := e.writer.Path(secDir, AssetsDirName)

	state := ClassifyPage(mdPath, assetsDir, remoteHost)
	if !e.force && state == StateSynced {
		e.logger.Info("page already exported, skipping", "page", name)
		pr.Outcome = OutcomeSkipped
		if e.progress != nil {
			e.progress.SetSkipped(page.ID)
		}
		return pr
	}
	if state == StatePartiallySynced {
		e.logger.Info("repairing partially exported page", "page", name)
	}

	if e.progress != nil {
		e.progress.SetSyncing(page.ID)
	}

	if e.dryRun {
		e.logger.Info("would export page", "page", name, "path", pr.Path, "state", state)
		pr.Outcome = OutcomeSkipped
		if e.progress != nil {
			e.progress.SetSkipped(page.ID)
		}
		return pr
	}

	e.logger.Info("exporting page", "page", name)

	pageHTML, err := e.client.GetPageContent(ctx, page.ID)
	if err != nil {
		return e.failPage(pr, fmt.Errorf("page %s: fetching content: %w", name, err))
	}

	processed, err := e.processor.Process(ctx, page.ID, pageHTML, assetsDir)
	if err != nil {
		return e.failPage(pr, fmt.Errorf("page %s: processing content: %w", name, err))
	}

	markdown, err := e.converter.Markdown(processed.HTML)
	if err != nil {
		return e.failPage(pr, fmt.Errorf("page %s: %w", name, err))
	}

	if err := e.writer.WriteMarkdown(secDir, filename, markdown); err != nil {
		return e.failPage(pr, fmt.Errorf("page %s: %w", name, err))
	}

	pr.Outcome = OutcomeSynced
	if e.progress != nil {
		e.progress.SetDone(page.ID)
	}
	return pr
}

func (e *Exporter) failPage(pr PageResult, err error) PageResult {
	e.logger.Error("page export failed", "page", pr.Title, "error", err)
	pr.Outcome = OutcomeFailed
	pr.Err = err
	if e.progress != nil {
		e.progress.SetError(pr.PageID, err.Error())
	}
	return pr
}

func (e *Exporter) recordSubtreeFailure(result *Result, id string, err error) {
	e.logger.Error("skipping subtree, listing failed", "error", err)
	result.Errors = append(result.Errors, err)
	if e.progress != nil {
		e.progress.SetError(id, err.Error())
	}
}
