package imageprocessor

import (
	"fmt"
	"image"
	"io"
	"os"
	"runtime"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"gocv.io/x/gocv"

	// secondary decoder formats
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageLoader decodes one file into a Mat
type ImageLoader interface {
	// Name identifies the decoder in logs and on the Raster
	Name() string

	// CanLoad determines if this loader can handle the given file
	CanLoad(path string) bool

	// LoadImage loads an image and returns the gocv.Mat representation
	LoadImage(path string) (gocv.Mat, error)
}

// OpenCVLoader is the primary decoder. OpenCV applies EXIF orientation itself.
type OpenCVLoader struct{}

func (OpenCVLoader) Name() string { return "opencv" }

func (OpenCVLoader) CanLoad(path string) bool { return true }

func (OpenCVLoader) LoadImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), fmt.Errorf("opencv could not decode %s", path)
	}
	return img, nil
}

// GoImageLoader is the secondary decoder: Go image codecs plus x/image
// formats, with EXIF orientation applied by hand.
type GoImageLoader struct{}

func (GoImageLoader) Name() string { return "go-image" }

func (GoImageLoader) CanLoad(path string) bool { return !IsRawFormat(path) }

func (GoImageLoader) LoadImage(path string) (gocv.Mat, error) {
	f, err := os.Open(path)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("go image decode failed: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err == nil {
		img = applyOrientation(img, readOrientation(f))
	}

	return matFromImage(img)
}

// readOrientation returns the EXIF orientation tag, or 1 when absent
func readOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// applyOrientation rotates/flips img so it displays upright
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}

// matFromImage converts a Go image into an 8-bit BGR Mat. Alpha is dropped.
func matFromImage(img image.Image) (gocv.Mat, error) {
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w == 0 || h == 0 {
		return gocv.NewMat(), fmt.Errorf("image has no pixels")
	}

	data := make([]byte, 0, w*h*3)
	for i := 0; i < len(src.Pix); i += 4 {
		data = append(data, src.Pix[i+2], src.Pix[i+1], src.Pix[i])
	}

	view, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, data)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer view.Close()

	// NewMatFromBytes does not copy; clone before data can be collected
	mat := view.Clone()
	runtime.KeepAlive(data)
	return mat, nil
}
