package imageprocessor

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"cleanshot/logging"

	"gocv.io/x/gocv"
)

const cascadeFile = "haarcascade_frontalface_default.xml"

// Detector tuning
const (
	faceScaleFactor  = 1.1
	faceMinNeighbors = 5
	faceMinSize      = 30
)

var cascadeDirs = []string{
	"/usr/share/opencv4/haarcascades",
	"/usr/local/share/opencv4/haarcascades",
	"/usr/share/opencv/haarcascades",
	"/usr/local/share/opencv/haarcascades",
	"/opt/homebrew/share/opencv4/haarcascades",
}

// FindCascade returns the first existing frontal face cascade file.
// An explicit path wins when it exists.
func FindCascade(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
	}
	dirs := cascadeDirs
	if env := os.Getenv("OPENCV_HAARCASCADES"); env != "" {
		dirs = append([]string{env}, dirs...)
	}
	for _, dir := range dirs {
		p := filepath.Join(dir, cascadeFile)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s not found", cascadeFile)
}

// FaceCounter counts frontal faces. Failures count as zero faces.
type FaceCounter struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	loaded     bool
}

// NewFaceCounter loads the cascade. The returned counter is usable even on
// error; it then always reports zero.
func NewFaceCounter(cascadePath string) (*FaceCounter, error) {
	fc := &FaceCounter{classifier: gocv.NewCascadeClassifier()}

	path, err := FindCascade(cascadePath)
	if err != nil {
		return fc, err
	}
	if !fc.classifier.Load(path) {
		return fc, errors.New("failed to load cascade " + path)
	}
	fc.loaded = true
	return fc, nil
}

// Loaded reports whether a cascade is available
func (f *FaceCounter) Loaded() bool {
	return f.loaded
}

// Count returns the number of faces found in r
func (f *FaceCounter) Count(r *Raster) (n int) {
	if !f.loaded || r == nil || r.Mat.Empty() {
		return 0
	}

	defer func() {
		if rec := recover(); rec != nil {
			logging.LogWarning("face detection failed: %v", rec)
			n = 0
		}
	}()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(r.Mat, &gray, gocv.ColorBGRToGray)

	f.mu.Lock()
	defer f.mu.Unlock()
	rects := f.classifier.DetectMultiScaleWithParams(gray, faceScaleFactor, faceMinNeighbors, 0,
		image.Pt(faceMinSize, faceMinSize), image.Pt(0, 0))
	return len(rects)
}

// Close releases the classifier
func (f *FaceCounter) Close() {
	f.classifier.Close()
}
