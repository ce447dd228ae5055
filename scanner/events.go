package scanner

import (
	"sync"

	"cleanshot/logging"
	"cleanshot/types"
)

// Observer receives a run's events on the worker goroutine, in emission order
type Observer interface {
	Progress(percent int)
	Status(message string)
	Log(entry logging.Entry)
	Finished(summary types.RunSummary)
}

// MatchObserver is implemented by observers that want face search matches
type MatchObserver interface {
	Match(name string, similarity float64)
}

// EventKind tags an Event
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventStatus   EventKind = "status"
	EventLog      EventKind = "log"
	EventMatch    EventKind = "match"
	EventFinished EventKind = "finished"
)

// Event is the channel form of an observer callback
type Event struct {
	Kind       EventKind
	Percent    int
	Message    string
	Entry      logging.Entry
	Similarity float64
	Summary    *types.RunSummary
}

// ChannelObserver forwards events to a channel, closed after Finished.
// The consumer must drain it; a full buffer blocks the worker.
type ChannelObserver struct {
	events chan Event
}

// NewChannelObserver creates an observer with the given buffer size
func NewChannelObserver(buffer int) *ChannelObserver {
	return &ChannelObserver{events: make(chan Event, buffer)}
}

// Events returns the receive side of the stream
func (c *ChannelObserver) Events() <-chan Event { return c.events }

func (c *ChannelObserver) Progress(percent int) {
	c.events <- Event{Kind: EventProgress, Percent: percent}
}

func (c *ChannelObserver) Status(message string) {
	c.events <- Event{Kind: EventStatus, Message: message}
}

func (c *ChannelObserver) Log(entry logging.Entry) {
	c.events <- Event{Kind: EventLog, Entry: entry, Message: entry.Message}
}

func (c *ChannelObserver) Match(name string, similarity float64) {
	c.events <- Event{Kind: EventMatch, Message: name, Similarity: similarity}
}

func (c *ChannelObserver) Finished(summary types.RunSummary) {
	c.events <- Event{Kind: EventFinished, Summary: &summary}
	close(c.events)
}

// Match is one face search hit
type Match struct {
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// RecordingObserver keeps the latest state of a run for polling callers
type RecordingObserver struct {
	mu       sync.Mutex
	progress int
	status   string
	entries  []logging.Entry
	matches  []Match
	summary  *types.RunSummary
	done     chan struct{}
}

// NewRecordingObserver creates an empty recorder
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{done: make(chan struct{})}
}

func (r *RecordingObserver) Progress(percent int) {
	r.mu.Lock()
	r.progress = percent
	r.mu.Unlock()
}

func (r *RecordingObserver) Status(message string) {
	r.mu.Lock()
	r.status = message
	r.mu.Unlock()
}

func (r *RecordingObserver) Log(entry logging.Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
}

func (r *RecordingObserver) Match(name string, similarity float64) {
	r.mu.Lock()
	r.matches = append(r.matches, Match{Name: name, Similarity: similarity})
	r.mu.Unlock()
}

func (r *RecordingObserver) Finished(summary types.RunSummary) {
	r.mu.Lock()
	r.summary = &summary
	r.mu.Unlock()
	close(r.done)
}

// Snapshot is a point-in-time copy of a recorded run
type Snapshot struct {
	Progress int               `json:"progress"`
	Status   string            `json:"status"`
	Matches  []Match           `json:"matches,omitempty"`
	Finished bool              `json:"finished"`
	Summary  *types.RunSummary `json:"summary,omitempty"`
}

// Snapshot returns the current progress, status, matches and summary
func (r *RecordingObserver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Progress: r.progress,
		Status:   r.status,
		Matches:  append([]Match(nil), r.matches...),
		Finished: r.summary != nil,
		Summary:  r.summary,
	}
}

// Entries returns a copy of the log stream so far
func (r *RecordingObserver) Entries() []logging.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]logging.Entry(nil), r.entries...)
}

// Done is closed once the run has finished
func (r *RecordingObserver) Done() <-chan struct{} { return r.done }

// MultiObserver fans events out to several observers in order
type MultiObserver []Observer

func (m MultiObserver) Progress(percent int) {
	for _, o := range m {
		o.Progress(percent)
	}
}

func (m MultiObserver) Status(message string) {
	for _, o := range m {
		o.Status(message)
	}
}

func (m MultiObserver) Log(entry logging.Entry) {
	for _, o := range m {
		o.Log(entry)
	}
}

func (m MultiObserver) Match(name string, similarity float64) {
	for _, o := range m {
		if mo, ok := o.(MatchObserver); ok {
			mo.Match(name, similarity)
		}
	}
}

func (m MultiObserver) Finished(summary types.RunSummary) {
	for _, o := range m {
		o.Finished(summary)
	}
}

// nopObserver discards everything
type nopObserver struct{}

func (nopObserver) Progress(int)               {}
func (nopObserver) Status(string)              {}
func (nopObserver) Log(logging.Entry)          {}
func (nopObserver) Finished(types.RunSummary) {}
