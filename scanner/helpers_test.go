package scanner

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"cleanshot/imageprocessor"
	"cleanshot/logging"
	"cleanshot/types"

	"github.com/stretchr/testify/require"
)

// checkerImage has hard edges everywhere, so it scores as sharp
func checkerImage(size, square int) image.Image {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/square+y/square)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// gradientImage has no edges at all, so it scores as blurry
func gradientImage(size int) image.Image {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 255 / (size - 1))})
		}
	}
	return img
}

func encode(t *testing.T, img image.Image, ext string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if strings.EqualFold(ext, ".png") {
		require.NoError(t, png.Encode(&buf, img))
	} else {
		require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	}
	return buf.Bytes()
}

func writeImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, encode(t, img, filepath.Ext(name)), 0644))
	return path
}

func writeCopies(t *testing.T, dir string, img image.Image, names ...string) {
	t.Helper()
	data := encode(t, img, ".jpg")
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), data, 0644))
	}
}

type memoryStore struct {
	mu       sync.Mutex
	sessions []types.RunSummary
}

func (m *memoryStore) SaveSession(s types.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
	return nil
}

type fixedFaces int

func (f fixedFaces) Count(*imageprocessor.Raster) int { return int(f) }

// hookObserver records progress and status in order and can act on progress
type hookObserver struct {
	*RecordingObserver

	mu         sync.Mutex
	percents   []int
	statuses   []string
	onProgress func(n int)
	onStatus   func(message string)
}

func newHookObserver() *hookObserver {
	return &hookObserver{RecordingObserver: NewRecordingObserver()}
}

func (h *hookObserver) Progress(percent int) {
	h.mu.Lock()
	h.percents = append(h.percents, percent)
	n := len(h.percents)
	hook := h.onProgress
	h.mu.Unlock()
	h.RecordingObserver.Progress(percent)
	if hook != nil {
		hook(n)
	}
}

func (h *hookObserver) Status(message string) {
	h.mu.Lock()
	h.statuses = append(h.statuses, message)
	hook := h.onStatus
	h.mu.Unlock()
	h.RecordingObserver.Status(message)
	if hook != nil {
		hook(message)
	}
}

func (h *hookObserver) progress() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.percents...)
}

func (h *hookObserver) messages(level logging.Level) []string {
	var out []string
	for _, e := range h.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}
