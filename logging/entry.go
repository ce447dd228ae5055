package logging

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// Level tags a run log entry
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelMatch   Level = "match"
	LevelError   Level = "error"
)

// Entry is one line of a run's log stream
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// NewEntry stamps a message with the current time
func NewEntry(level Level, format string, args ...interface{}) Entry {
	return Entry{
		Time:    time.Now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Time.Format("2006-01-02 15:04:05"), strings.ToUpper(string(e.Level)), e.Message)
}

// Mirror writes the entry to the process logger at the matching level
func Mirror(e Entry) {
	switch e.Level {
	case LevelWarning:
		logger.Warn(e.Message)
	case LevelError:
		logger.Error(e.Message)
	case LevelMatch:
		logger.WithField("match", true).Info(e.Message)
	default:
		logger.Info(e.Message)
	}
}

// ExportEntries writes entries as a plain-text log file
func ExportEntries(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create log export: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.String()); err != nil {
			return fmt.Errorf("failed to write log export: %w", err)
		}
	}
	return w.Flush()
}
