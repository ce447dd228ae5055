package scanner

import (
	"sync"
	"time"

	"cleanshot/logging"
	"cleanshot/types"
)

// ProgressTracker counts finished images and reports a monotonic percentage
type ProgressTracker struct {
	mu        sync.Mutex
	total     int
	processed int
	errors    int
	raw       int
	percent   int
	started   time.Time
}

// NewProgressTracker initializes the progress tracker
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{total: total, started: time.Now()}
}

// Advance records one finished image and returns the new percentage
func (p *ProgressTracker) Advance(r types.ProcessingResult) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed++
	if r.Error != "" {
		p.errors++
		logging.LogImageProcessed(r.Path, false, r.Error)
	} else {
		logging.LogImageProcessed(r.Path, true, "")
	}
	if isRaw(r.Path) {
		p.raw++
	}

	if p.total > 0 {
		pct := p.processed * 100 / p.total
		if pct > 100 {
			pct = 100
		}
		if pct > p.percent {
			p.percent = pct
		}
	}
	return p.percent
}

// Percent returns the last reported percentage
func (p *ProgressTracker) Percent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percent
}

// Processed returns how many images have been finished so far
func (p *ProgressTracker) Processed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed
}

// LogCompletion writes the end-of-run statistics to the process log
func (p *ProgressTracker) LogCompletion(mode string, stopped bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.started).Round(time.Millisecond)
	verb := "completed"
	if stopped {
		verb = "stopped"
	}
	logging.LogInfo("%s run %s: %d/%d images in %v (RAW: %d, errors: %d)",
		mode, verb, p.processed, p.total, elapsed, p.raw, p.errors)
}
