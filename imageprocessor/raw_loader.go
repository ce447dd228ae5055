package imageprocessor

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/barasher/go-exiftool"
	"gocv.io/x/gocv"
)

// Preview tags in order of expected size
var previewTags = []string{
	"JpgFromRaw",
	"PreviewImage",
	"OtherImage",
	"ThumbnailImage",
}

// RawPreviewLoader decodes camera RAW files through their embedded JPEG previews.
// go-exiftool probes which preview tags exist; the binary is pulled with `exiftool -b`.
type RawPreviewLoader struct {
	once    sync.Once
	mu      sync.Mutex
	et      *exiftool.Exiftool
	initErr error
}

// NewRawPreviewLoader creates a loader; the exiftool process starts on first use
func NewRawPreviewLoader() *RawPreviewLoader {
	return &RawPreviewLoader{}
}

func (l *RawPreviewLoader) Name() string { return "exiftool-preview" }

func (l *RawPreviewLoader) CanLoad(path string) bool {
	return IsRawFormat(path) && hasExiftool()
}

func (l *RawPreviewLoader) LoadImage(path string) (gocv.Mat, error) {
	tags, err := l.availablePreviews(path)
	if err != nil {
		return gocv.NewMat(), err
	}

	for _, tag := range tags {
		data, err := exec.Command("exiftool", "-b", "-"+tag, path).Output()
		if err != nil || len(data) == 0 {
			continue
		}
		img, err := gocv.IMDecode(data, gocv.IMReadColor)
		if err != nil || img.Empty() {
			img.Close()
			continue
		}
		return img, nil
	}

	return gocv.NewMat(), fmt.Errorf("no decodable preview in %s", path)
}

// availablePreviews returns the preview tags present in the file
func (l *RawPreviewLoader) availablePreviews(path string) ([]string, error) {
	l.once.Do(func() {
		l.et, l.initErr = exiftool.NewExiftool()
	})
	if l.initErr != nil {
		return nil, fmt.Errorf("exiftool unavailable: %w", l.initErr)
	}

	l.mu.Lock()
	if l.et == nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("raw loader closed")
	}
	metas := l.et.ExtractMetadata(path)
	l.mu.Unlock()

	if len(metas) == 0 {
		return nil, fmt.Errorf("no metadata for %s", path)
	}
	if metas[0].Err != nil {
		return nil, fmt.Errorf("metadata extraction failed: %w", metas[0].Err)
	}

	var found []string
	for _, tag := range previewTags {
		if _, ok := metas[0].Fields[tag]; ok {
			found = append(found, tag)
		}
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no embedded preview in %s", path)
	}
	return found, nil
}

// Close stops the exiftool process if it was started
func (l *RawPreviewLoader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.et != nil {
		l.et.Close()
		l.et = nil
	}
}

func hasExiftool() bool {
	_, err := exec.LookPath("exiftool")
	return err == nil
}
