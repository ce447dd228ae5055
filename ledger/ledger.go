// Package ledger records file relocations and reverses them newest first.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cleanshot/logging"
	"cleanshot/types"
)

var (
	// ErrEmpty means there is nothing left to undo
	ErrEmpty = errors.New("no operations to undo")

	// ErrAlreadyMissing means the relocated file is no longer at its destination
	ErrAlreadyMissing = errors.New("destination already missing")

	// ErrSourceOccupied means a move cannot be reversed without overwriting a file
	ErrSourceOccupied = errors.New("original path is occupied")
)

// UndoError describes a failed reversal of one operation
type UndoError struct {
	Op  types.Operation
	Err error
}

func (e *UndoError) Error() string {
	return fmt.Sprintf("undo %s: %v", e.Op, e.Err)
}

func (e *UndoError) Unwrap() error { return e.Err }

// Ledger is an ordered, persisted list of operations. One ledger belongs to one run owner.
type Ledger struct {
	mu   sync.Mutex
	path string
	ops  []types.Operation
}

// Open loads the ledger at path; a missing file is an empty ledger.
// An empty path keeps the ledger in memory only.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path}
	if path == "" {
		return l, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(data) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l.ops); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}
	return l, nil
}

// Path returns the backing file path
func (l *Ledger) Path() string {
	return l.path
}

// Record appends op and persists the ledger before returning
func (l *Ledger) Record(op types.Operation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ops = append(l.ops, op)
	if err := l.save(); err != nil {
		l.ops = l.ops[:len(l.ops)-1]
		return err
	}
	return nil
}

// Len returns the number of undoable operations
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ops)
}

// Operations returns a copy of the recorded operations, oldest first
func (l *Ledger) Operations() []types.Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.Operation(nil), l.ops...)
}

// Clear forgets all operations without touching any file
func (l *Ledger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = nil
	return l.save()
}

// UndoLast reverses the most recent operation. When its destination has
// already vanished the entry is dropped and ErrAlreadyMissing is returned.
// Any other failure leaves the entry in place.
func (l *Ledger) UndoLast() (types.Operation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.ops) == 0 {
		return types.Operation{}, ErrEmpty
	}
	i := len(l.ops) - 1
	op := l.ops[i]
	return op, l.undoAt(i)
}

// DropLast forgets the most recent operation without touching any file.
// It unblocks UndoLast when the newest entry cannot be reversed.
func (l *Ledger) DropLast() (types.Operation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.ops) == 0 {
		return types.Operation{}, ErrEmpty
	}
	op := l.ops[len(l.ops)-1]
	l.ops = l.ops[:len(l.ops)-1]
	if err := l.save(); err != nil {
		l.ops = append(l.ops, op)
		return op, err
	}
	logging.LogWarning("dropped without undo: %s", op)
	return op, nil
}

// UndoAll reverses every operation newest first. Failures are collected and
// do not stop earlier entries from being undone.
func (l *Ledger) UndoAll() (undone int, errs []error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.ops) - 1; i >= 0; i-- {
		if err := l.undoAt(i); err != nil {
			errs = append(errs, err)
			continue
		}
		undone++
	}
	return undone, errs
}

// undoAt reverses ops[i] and removes it unless the reversal failed
// for a reason other than a missing destination. Caller holds mu.
func (l *Ledger) undoAt(i int) error {
	op := l.ops[i]
	err := reverse(op)
	if err != nil && !errors.Is(err, ErrAlreadyMissing) {
		logging.LogError("undo failed for %s: %v", op, err)
		return &UndoError{Op: op, Err: err}
	}

	l.ops = append(l.ops[:i], l.ops[i+1:]...)
	if serr := l.save(); serr != nil {
		logging.LogError("failed to persist ledger: %v", serr)
	}

	if err != nil {
		logging.LogWarning("undo skipped for %s: %v", op, err)
		return &UndoError{Op: op, Err: err}
	}
	logging.LogInfo("undone: %s", op)
	return nil
}

func reverse(op types.Operation) error {
	if _, err := os.Lstat(op.Destination); os.IsNotExist(err) {
		return ErrAlreadyMissing
	}

	switch op.Kind {
	case types.OpMove:
		if _, err := os.Lstat(op.Source); err == nil {
			return ErrSourceOccupied
		}
		if err := os.MkdirAll(filepath.Dir(op.Source), 0755); err != nil {
			return err
		}
		return moveFile(op.Destination, op.Source)
	case types.OpCopy:
		return os.Remove(op.Destination)
	}
	return fmt.Errorf("unknown operation kind %q", op.Kind)
}

// save writes the ledger atomically. Caller holds mu.
func (l *Ledger) save() error {
	if l.path == "" {
		return nil
	}
	ops := l.ops
	if ops == nil {
		ops = []types.Operation{}
	}
	data, err := json.MarshalIndent(ops, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create ledger folder: %w", err)
		}
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}
