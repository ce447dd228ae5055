package ledger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"cleanshot/types"
)

// RelocationError reports a failed move or copy; the source is left in place
type RelocationError struct {
	Kind        types.OperationKind
	Source      string
	Destination string
	Err         error
}

func (e *RelocationError) Error() string {
	return fmt.Sprintf("%s %s -> %s failed: %v", e.Kind, e.Source, e.Destination, e.Err)
}

func (e *RelocationError) Unwrap() error { return e.Err }

// UniquePath returns dir/name, or dir/stem_N.ext when that already exists
func UniquePath(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if _, err := os.Lstat(candidate); os.IsNotExist(err) {
		return candidate
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// Move relocates src into dstDir and returns the operation to record
func Move(src, dstDir string) (types.Operation, error) {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return types.Operation{}, &RelocationError{Kind: types.OpMove, Source: src, Destination: dstDir, Err: err}
	}
	dst := UniquePath(dstDir, filepath.Base(src))
	if err := moveFile(src, dst); err != nil {
		return types.Operation{}, &RelocationError{Kind: types.OpMove, Source: src, Destination: dst, Err: err}
	}
	return types.Operation{Kind: types.OpMove, Source: src, Destination: dst, Timestamp: time.Now()}, nil
}

// Copy duplicates src into dstDir and returns the operation to record
func Copy(src, dstDir string) (types.Operation, error) {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return types.Operation{}, &RelocationError{Kind: types.OpCopy, Source: src, Destination: dstDir, Err: err}
	}
	dst := UniquePath(dstDir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return types.Operation{}, &RelocationError{Kind: types.OpCopy, Source: src, Destination: dst, Err: err}
	}
	return types.Operation{Kind: types.OpCopy, Source: src, Destination: dst, Timestamp: time.Now()}, nil
}

// moveFile renames, falling back to copy and remove across filesystems
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFile copies content, permission bits and modification time
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
