package imageprocessor

import (
	"errors"
	"fmt"
	"os"

	"cleanshot/logging"
)

// ErrUnprocessable means every decoder rejected the file
var ErrUnprocessable = errors.New("unprocessable image")

// ErrTooLarge means the file exceeds the configured size guard
var ErrTooLarge = errors.New("file too large")

// DecodeError reports which stage of loading failed for a file
type DecodeError struct {
	Path  string
	Stage string // open, read, decode
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot %s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Codec loads files into normalized rasters using a decoder chain
type Codec struct {
	registry    *LoaderRegistry
	maxFileSize int64
}

// NewCodec creates a codec. maxFileSize <= 0 disables the size guard.
func NewCodec(maxFileSize int64) *Codec {
	return &Codec{
		registry:    NewLoaderRegistry(),
		maxFileSize: maxFileSize,
	}
}

// Registry exposes the loader registry for custom chains
func (c *Codec) Registry() *LoaderRegistry {
	return c.registry
}

// Load decodes path, trying each applicable decoder in order
func (c *Codec) Load(path string) (*Raster, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Stage: "open", Err: err}
	}
	if info.IsDir() {
		return nil, &DecodeError{Path: path, Stage: "open", Err: errors.New("is a directory")}
	}
	if c.maxFileSize > 0 && info.Size() > c.maxFileSize {
		return nil, &DecodeError{Path: path, Stage: "read", Err: fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Stage: "read", Err: err}
	}
	f.Close()

	var lastErr error
	for _, loader := range c.registry.Chain(path) {
		mat, err := loader.LoadImage(path)
		if err != nil {
			logging.DebugLog("%s decoder failed for %s: %v", loader.Name(), path, err)
			lastErr = err
			continue
		}
		raster, err := NewRaster(mat, loader.Name())
		if err != nil {
			lastErr = err
			continue
		}
		return raster, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no decoder for this format")
	}
	return nil, &DecodeError{Path: path, Stage: "decode", Err: fmt.Errorf("%w: %v", ErrUnprocessable, lastErr)}
}

// Close releases decoder resources
func (c *Codec) Close() {
	c.registry.Close()
}
