package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"cleanshot/config"
	"cleanshot/database"
	"cleanshot/faceverify"
	"cleanshot/imageprocessor"
	"cleanshot/ledger"
	"cleanshot/logging"
	"cleanshot/scanner"
	"cleanshot/types"

	"github.com/go-chi/chi/v5"
)

// Runner is the part of an organize or search run the API drives
type Runner interface {
	ID() string
	Mode() string
	State() scanner.State
	Pause()
	Resume()
	Stop()
	Start(ctx context.Context)
	Entries() []logging.Entry
	Done() <-chan struct{}
}

// VerifierFactory builds a face verifier and the cleanup that releases it
type VerifierFactory func(s config.Settings) (scanner.FaceVerifier, func(), error)

// SessionStore is the run history the API reads and writes
type SessionStore interface {
	scanner.SessionStore
	LoadLastSession(mode string) (*types.RunSummary, error)
	ListSessions(limit int) ([]types.RunSummary, error)
}

type activeRun struct {
	runner   Runner
	observer *scanner.RecordingObserver
	started  time.Time
}

// App holds the state shared by all handlers. One run is active at a time.
type App struct {
	Settings  config.Settings
	Ledger    *ledger.Ledger
	Store     SessionStore
	Verifiers VerifierFactory

	// EventInterval is how often the event stream polls a run
	EventInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	runs   map[string]*activeRun
}

// NewApp creates an App whose runs live until Shutdown
func NewApp(settings config.Settings, l *ledger.Ledger, store SessionStore) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Settings:      settings,
		Ledger:        l,
		Store:         store,
		Verifiers:     DefaultVerifiers,
		EventInterval: 500 * time.Millisecond,
		ctx:           ctx,
		cancel:        cancel,
		runs:          make(map[string]*activeRun),
	}
}

// DefaultVerifiers builds the configured verification services
func DefaultVerifiers(s config.Settings) (scanner.FaceVerifier, func(), error) {
	codec := imageprocessor.NewCodec(s.MaxFileSize)
	v, err := faceverify.FromSettings(s, codec)
	if err != nil {
		codec.Close()
		return nil, nil, err
	}
	return v, codec.Close, nil
}

// StopAll requests a cooperative stop of every active run
func (app *App) StopAll() {
	app.mu.Lock()
	defer app.mu.Unlock()
	for _, r := range app.runs {
		r.runner.Stop()
	}
}

// Shutdown stops every run and waits for them to finish or ctx to expire
func (app *App) Shutdown(ctx context.Context) error {
	app.cancel()
	app.mu.Lock()
	runs := make([]*activeRun, 0, len(app.runs))
	for _, r := range app.runs {
		runs = append(runs, r)
	}
	app.mu.Unlock()

	for _, r := range runs {
		select {
		case <-r.runner.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// errBusy is returned when another run still owns the ledger
var errBusy = errors.New("a run is in progress")

// busyLocked reports whether any run has not finished. A stopped run still
// owns the ledger until its current image is done and Done is closed.
// Caller holds mu.
func (app *App) busyLocked() bool {
	for _, r := range app.runs {
		select {
		case <-r.runner.Done():
		default:
			return true
		}
	}
	return false
}

func (app *App) busy() bool {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.busyLocked()
}

// exclusive runs fn while no run is active and none can start
func (app *App) exclusive(fn func()) error {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.busyLocked() {
		return errBusy
	}
	fn()
	return nil
}

// start registers and launches runner unless another run is active. The
// check and the registration share one lock hold.
func (app *App) start(runner Runner, observer *scanner.RecordingObserver) error {
	app.mu.Lock()
	if app.busyLocked() {
		app.mu.Unlock()
		return errBusy
	}
	app.runs[runner.ID()] = &activeRun{runner: runner, observer: observer, started: time.Now()}
	app.mu.Unlock()
	runner.Start(app.ctx)
	logging.LogInfo("Started %s run %s", runner.Mode(), runner.ID())
	return nil
}

func (app *App) lookup(r *http.Request) (*activeRun, bool) {
	id := chi.URLParam(r, "id")
	app.mu.Lock()
	defer app.mu.Unlock()
	run, ok := app.runs[id]
	return run, ok
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type organizeRequest struct {
	Folder   string          `json:"folder"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

type searchRequest struct {
	Folder    string   `json:"folder"`
	Reference string   `json:"reference"`
	Threshold *float64 `json:"threshold,omitempty"`
	DryRun    bool     `json:"dry_run,omitempty"`
}

type startResponse struct {
	ID string `json:"id"`
}

func (app *App) StartOrganizeHandler(w http.ResponseWriter, r *http.Request) {
	if app.busy() {
		writeError(w, http.StatusConflict, errBusy.Error())
		return
	}
	var req organizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := config.ValidateFolder(req.Folder); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings := app.Settings
	settings.VerifierBackends = append([]string(nil), app.Settings.VerifierBackends...)
	if len(req.Settings) > 0 {
		if err := json.Unmarshal(req.Settings, &settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid settings")
			return
		}
	}

	observer := scanner.NewRecordingObserver()
	org, err := scanner.NewOrganizer(scanner.OrganizerOptions{
		Folder:   req.Folder,
		Settings: settings,
		Ledger:   app.Ledger,
		Observer: observer,
		Store:    app.Store,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := app.start(org, observer); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{ID: org.ID()})
}

func (app *App) StartSearchHandler(w http.ResponseWriter, r *http.Request) {
	if app.busy() {
		writeError(w, http.StatusConflict, errBusy.Error())
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := config.ValidateFolder(req.Folder); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Reference == "" {
		writeError(w, http.StatusBadRequest, "reference image is required")
		return
	}

	settings := app.Settings
	settings.DryRun = req.DryRun
	if req.Threshold != nil {
		settings.FaceMatchThreshold = *req.Threshold
	}
	if err := settings.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	verifier, release, err := app.Verifiers(settings)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	observer := scanner.NewRecordingObserver()
	search, err := scanner.NewFaceSearch(scanner.FaceSearchOptions{
		Folder:    req.Folder,
		Reference: req.Reference,
		Settings:  settings,
		Verifier:  verifier,
		Ledger:    app.Ledger,
		Observer:  observer,
		Store:     app.Store,
	})
	if err != nil {
		release()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := app.start(search, observer); err != nil {
		release()
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	go func() {
		<-search.Done()
		release()
	}()
	writeJSON(w, http.StatusAccepted, startResponse{ID: search.ID()})
}

type runStatus struct {
	ID      string        `json:"id"`
	Mode    string        `json:"mode"`
	State   scanner.State `json:"state"`
	Started time.Time     `json:"started"`
	scanner.Snapshot
}

func statusOf(run *activeRun) runStatus {
	return runStatus{
		ID:       run.runner.ID(),
		Mode:     run.runner.Mode(),
		State:    run.runner.State(),
		Started:  run.started,
		Snapshot: run.observer.Snapshot(),
	}
}

func (app *App) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	app.mu.Lock()
	out := make([]runStatus, 0, len(app.runs))
	for _, run := range app.runs {
		st := statusOf(run)
		st.Summary = nil
		out = append(out, st)
	}
	app.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	writeJSON(w, http.StatusOK, out)
}

func (app *App) RunStatusHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := app.lookup(r)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, statusOf(run))
}

func (app *App) RunLogHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := app.lookup(r)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, e := range run.runner.Entries() {
		fmt.Fprintln(w, e.String())
	}
}

// RunEventsHandler streams run snapshots as server-sent events until the
// run finishes or the client goes away
func (app *App) RunEventsHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := app.lookup(r)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(event string) {
		data, err := json.Marshal(statusOf(run))
		if err != nil {
			logging.LogError("Error marshaling run status: %v", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	ticker := time.NewTicker(app.EventInterval)
	defer ticker.Stop()
	clientGone := r.Context().Done()

	var last scanner.Snapshot
	for {
		select {
		case <-run.observer.Done():
			send("finished")
			return
		default:
		}

		select {
		case <-run.observer.Done():
		case <-ticker.C:
			snap := run.observer.Snapshot()
			if snap.Progress != last.Progress || snap.Status != last.Status || len(snap.Matches) != len(last.Matches) {
				last = snap
				send("progress")
			}
		case <-clientGone:
			return
		}
	}
}

type controlAction int

const (
	controlPause controlAction = iota
	controlResume
	controlStop
)

// ControlHandler applies a pause, resume or stop to the addressed run
func (app *App) ControlHandler(action controlAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := app.lookup(r)
		if !ok {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		switch action {
		case controlPause:
			run.runner.Pause()
		case controlResume:
			run.runner.Resume()
		case controlStop:
			run.runner.Stop()
		}
		writeJSON(w, http.StatusOK, map[string]scanner.State{"state": run.runner.State()})
	}
}

func (app *App) LedgerHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operations": app.Ledger.Len(),
		"path":       app.Ledger.Path(),
	})
}

func (app *App) UndoLastHandler(w http.ResponseWriter, r *http.Request) {
	var op types.Operation
	var err error
	if berr := app.exclusive(func() { op, err = app.Ledger.UndoLast() }); berr != nil {
		writeError(w, http.StatusConflict, berr.Error())
		return
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{"undone": op, "remaining": app.Ledger.Len()})
	case errors.Is(err, ledger.ErrEmpty):
		writeError(w, http.StatusNotFound, "nothing to undo")
	case errors.Is(err, ledger.ErrAlreadyMissing):
		writeJSON(w, http.StatusOK, map[string]interface{}{"skipped": op, "error": err.Error(), "remaining": app.Ledger.Len()})
	default:
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": err.Error(), "blocked": op})
	}
}

// DropLastHandler forgets the newest ledger entry without moving files
func (app *App) DropLastHandler(w http.ResponseWriter, r *http.Request) {
	var op types.Operation
	var err error
	if berr := app.exclusive(func() { op, err = app.Ledger.DropLast() }); berr != nil {
		writeError(w, http.StatusConflict, berr.Error())
		return
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{"dropped": op, "remaining": app.Ledger.Len()})
	case errors.Is(err, ledger.ErrEmpty):
		writeError(w, http.StatusNotFound, "nothing to drop")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (app *App) UndoAllHandler(w http.ResponseWriter, r *http.Request) {
	var undone int
	var errs []error
	if berr := app.exclusive(func() { undone, errs = app.Ledger.UndoAll() }); berr != nil {
		writeError(w, http.StatusConflict, berr.Error())
		return
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"undone":    undone,
		"errors":    msgs,
		"remaining": app.Ledger.Len(),
	})
}

func (app *App) LastSessionHandler(w http.ResponseWriter, r *http.Request) {
	if app.Store == nil {
		writeError(w, http.StatusNotFound, "session history disabled")
		return
	}
	summary, err := app.Store.LoadLastSession(r.URL.Query().Get("mode"))
	if errors.Is(err, database.ErrNoSession) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (app *App) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if app.Store == nil {
		writeJSON(w, http.StatusOK, []types.RunSummary{})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	sessions, err := app.Store.ListSessions(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []types.RunSummary{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.LogError("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
