// Package imageprocessor loads photos into normalized rasters and scores them:
// sharpness, perceptual hashes, duplicate lookup and face counts.
package imageprocessor

import (
	"fmt"

	"gocv.io/x/gocv"
)

// ColorSpaceBGR is the only color layout a Raster ever carries
const ColorSpaceBGR = "BGR"

// Raster is a decoded image, always 8-bit 3-channel BGR regardless of decoder.
// It is owned by the caller that loaded it and must be closed.
type Raster struct {
	Mat        gocv.Mat
	Width      int
	Height     int
	Channels   int
	ColorSpace string
	Decoder    string
}

// NewRaster normalizes a decoded Mat into the BGR layout and takes ownership of it
func NewRaster(mat gocv.Mat, decoder string) (*Raster, error) {
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("empty image from %s decoder", decoder)
	}

	switch mat.Channels() {
	case 3:
	case 1:
		bgr := gocv.NewMat()
		gocv.CvtColor(mat, &bgr, gocv.ColorGrayToBGR)
		mat.Close()
		mat = bgr
	case 4:
		bgr := gocv.NewMat()
		gocv.CvtColor(mat, &bgr, gocv.ColorBGRAToBGR)
		mat.Close()
		mat = bgr
	default:
		n := mat.Channels()
		mat.Close()
		return nil, fmt.Errorf("unsupported channel count %d", n)
	}

	if mat.Type() != gocv.MatTypeCV8UC3 {
		conv := gocv.NewMat()
		mat.ConvertTo(&conv, gocv.MatTypeCV8UC3)
		mat.Close()
		mat = conv
	}

	return &Raster{
		Mat:        mat,
		Width:      mat.Cols(),
		Height:     mat.Rows(),
		Channels:   mat.Channels(),
		ColorSpace: ColorSpaceBGR,
		Decoder:    decoder,
	}, nil
}

// Close releases the pixel buffer
func (r *Raster) Close() {
	if r != nil {
		r.Mat.Close()
	}
}
