package signalhandler

import (
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"cleanshot/logging"
)

var (
	mu       sync.Mutex
	nextID   int
	stoppers = map[int]func(){}
	once     sync.Once
)

// OnInterrupt registers fn to run on SIGINT or SIGTERM. The returned
// function unregisters it.
func OnInterrupt(fn func()) (cancel func()) {
	mu.Lock()
	defer mu.Unlock()
	id := nextID
	nextID++
	stoppers[id] = fn
	return func() {
		mu.Lock()
		delete(stoppers, id)
		mu.Unlock()
	}
}

// SetupHandler installs the process signal handler. The first signal asks
// every registered run to stop between images so the ledger stays
// consistent; a second signal exits immediately.
func SetupHandler() {
	once.Do(func() {
		sigChan := make(chan os.Signal, 2)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go handle(sigChan, func(code int) {
			logging.CloseLogger()
			os.Exit(code)
		})
	})
}

// handle runs the stoppers on their own goroutine so a slow shutdown never
// delays the second signal
func handle(sigChan <-chan os.Signal, exit func(code int)) {
	sig := <-sigChan
	logging.LogWarning("Received %v, stopping active runs", sig)
	if registered() == 0 {
		exit(130)
		return
	}
	go StopAll()

	sig = <-sigChan
	logging.LogWarning("Received %v again, exiting", sig)
	exit(130)
}

func registered() int {
	mu.Lock()
	defer mu.Unlock()
	return len(stoppers)
}

// StopAll runs every registered stopper and reports how many there were
func StopAll() int {
	mu.Lock()
	fns := make([]func(), 0, len(stoppers))
	for _, fn := range stoppers {
		fns = append(fns, fn)
	}
	mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// GetOptimalProcs returns the optimal number of worker goroutines for the system
func GetOptimalProcs() int {
	numCPU := runtime.NumCPU()

	// For image processing with CGo, using too many goroutines can cause issues
	maxProcs := (numCPU * 3) / 4
	if maxProcs < 1 {
		maxProcs = 1
	}
	return maxProcs
}
