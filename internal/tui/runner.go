package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Runner manages a TUI program and feeds it walk events. It implements the
// exporter's Progress interface.
type Runner struct {
	program *tea.Program
	model   Model
	mu      sync.Mutex
	started bool
}

// NewRunner creates a new TUI runner.
func NewRunner() *Runner {
	return &Runner{model: New()}
}

// Start starts the TUI program in a goroutine and returns immediately.
// The program runs until Done is called.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	r.program = tea.NewProgram(r.model)
	r.started = true

	go func() {
		_, _ = r.program.Run()
	}()

	return nil
}

// Wait blocks until the TUI program exits.
func (r *Runner) Wait() {
	if r.program != nil {
		r.program.Wait()
	}
}

func (r *Runner) add(id, title string, typ ItemType) {
	if r.program != nil {
		r.program.Send(AddItemMsg{Item: &Item{ID: id, Title: title, Type: typ}})
	}
}

func (r *Runner) setStatus(id string, status ItemStatus, errMsg string) {
	if r.program != nil {
		r.program.Send(UpdateStatusMsg{ID: id, Status: status, Error: errMsg})
	}
}

// AddNotebook registers a notebook in the display.
func (r *Runner) AddNotebook(id, name string) { r.add(id, name, TypeNotebook) }

// AddSection registers a section in the display.
func (r *Runner) AddSection(id, name string) { r.add(id, name, TypeSection) }

// AddPage registers a page in the display.
func (r *Runner) AddPage(id, title string) { r.add(id, title, TypePage) }

// SetSyncing marks an item as being exported right now.
func (r *Runner) SetSyncing(id string) { r.setStatus(id, StatusSyncing, "") }

// SetSkipped marks an item as already up to date.
func (r *Runner) SetSkipped(id string) { r.setStatus(id, StatusSkipped, "") }

// SetDone marks an item as exported.
func (r *Runner) SetDone(id string) { r.setStatus(id, StatusDone, "") }

// SetError marks an item as failed.
func (r *Runner) SetError(id, msg string) { r.setStatus(id, StatusError, msg) }

// Done signals completion and shuts the program down.
func (r *Runner) Done(err error) {
	if r.program != nil {
		r.program.Send(DoneMsg{Err: err})
	}
}
