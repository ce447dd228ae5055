package imageprocessor

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func checkerboard(w, h, square int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ((x/square)+(y/square))%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func rasterFromImage(t *testing.T, img image.Image) *Raster {
	t.Helper()
	mat, err := matFromImage(img)
	require.NoError(t, err)
	r, err := NewRaster(mat, "test")
	require.NoError(t, err)
	return r
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writeJPEG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 95}))
}

func blurred(t *testing.T, r *Raster, sigma float64) *Raster {
	t.Helper()
	dst := gocv.NewMat()
	gocv.GaussianBlur(r.Mat, &dst, image.Pt(0, 0), sigma, sigma, gocv.BorderDefault)
	out, err := NewRaster(dst, "test")
	require.NoError(t, err)
	return out
}
