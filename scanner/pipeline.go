package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"cleanshot/config"
	"cleanshot/logging"
	"cleanshot/types"

	"github.com/google/uuid"
)

// ErrAlreadyStarted is returned when a run is started twice
var ErrAlreadyStarted = errors.New("run already started")

// run is the state shared by organize and face search runs
type run struct {
	*Controller

	id       string
	mode     string
	folder   string
	settings config.Settings
	observer Observer
	store    SessionStore

	started atomic.Bool
	done    chan struct{}

	mu      sync.Mutex
	entries []logging.Entry
	summary types.RunSummary
	err     error
}

func newRun(mode, folder string, settings config.Settings, observer Observer, store SessionStore) *run {
	if observer == nil {
		observer = nopObserver{}
	}
	return &run{
		Controller: NewController(),
		id:         uuid.NewString(),
		mode:       mode,
		folder:     folder,
		settings:   settings,
		observer:   observer,
		store:      store,
		done:       make(chan struct{}),
	}
}

// ID identifies the run and its persisted session
func (r *run) ID() string { return r.id }

// Mode is types.ModeOrganize or types.ModeSearch
func (r *run) Mode() string { return r.mode }

// Done is closed when the run has finished
func (r *run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes and returns its summary
func (r *run) Wait() (types.RunSummary, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary, r.err
}

// Entries returns the run's log stream so far
func (r *run) Entries() []logging.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]logging.Entry(nil), r.entries...)
}

// ExportLog writes the run's log stream as plain text
func (r *run) ExportLog(path string) error {
	return logging.ExportEntries(path, r.Entries())
}

func (r *run) begin() bool {
	return r.started.CompareAndSwap(false, true)
}

// watch turns context cancellation into Stop for the lifetime of the run
func (r *run) watch(ctx context.Context) (release func()) {
	quit := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-quit:
		}
	}()
	return func() { close(quit) }
}

func (r *run) logf(level logging.Level, format string, args ...interface{}) {
	e := logging.NewEntry(level, format, args...)
	logging.Mirror(e)
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	r.observer.Log(e)
}

func (r *run) status(msg string) {
	r.observer.Status(msg)
}

// finish builds the summary, persists it and emits the completion event.
// A run that failed before processing anything is not persisted.
func (r *run) finish(results types.RunResults, err error) (types.RunSummary, error) {
	if results.Items == nil {
		results.Items = []types.ProcessingResult{}
	}
	summary := types.RunSummary{
		ID:        r.id,
		Timestamp: time.Now(),
		Folder:    r.folder,
		Mode:      r.mode,
		Settings:  settingsJSON(r.settings),
		Results:   results,
	}
	r.terminate()

	if err != nil {
		r.status("Error: " + err.Error())
		r.logf(logging.LevelError, "Run failed: %v", err)
	} else {
		saveSession(r.store, summary)
	}

	r.mu.Lock()
	r.summary = summary
	r.err = err
	r.mu.Unlock()

	r.observer.Finished(summary)
	close(r.done)
	return summary, err
}
