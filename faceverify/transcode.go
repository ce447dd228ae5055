package faceverify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Formats every backend accepts as-is
var passthroughExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
}

type prepared struct {
	path    string
	cleanup func()
}

// prepare returns a path the backends can read. Other formats are transcoded
// to a temporary JPEG; cleanup removes it and is safe to call on every path.
func (v *Verifier) prepare(path string) (*prepared, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if passthroughExtensions[strings.ToLower(filepath.Ext(path))] {
		return &prepared{path: path, cleanup: func() {}}, nil
	}

	raster, err := v.loader.Load(path)
	if err != nil {
		return nil, err
	}
	defer raster.Close()

	img, err := raster.Mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("raster conversion failed: %w", err)
	}

	tmp, err := os.CreateTemp(v.tempDir, "cleanshot-verify-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		tmp.Close()
		cleanup()
		return nil, fmt.Errorf("failed to transcode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to transcode %s: %w", path, err)
	}

	return &prepared{path: tmp.Name(), cleanup: cleanup}, nil
}
