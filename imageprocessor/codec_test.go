package imageprocessor

import (
	"errors"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecLoadMissingFile(t *testing.T) {
	codec := NewCodec(0)
	defer codec.Close()

	_, err := codec.Load(filepath.Join(t.TempDir(), "nope.jpg"))
	var derr *DecodeError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "open", derr.Stage)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestCodecLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a jpeg"), 0644))

	codec := NewCodec(0)
	defer codec.Close()

	_, err := codec.Load(path)
	assert.True(t, errors.Is(err, ErrUnprocessable))
}

func TestCodecSizeGuard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.png")
	writePNG(t, path, checkerboard(64, 64, 8))

	codec := NewCodec(10)
	defer codec.Close()

	_, err := codec.Load(path)
	var derr *DecodeError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "read", derr.Stage)
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestCodecNormalizesToBGR(t *testing.T) {
	dir := t.TempDir()
	gray := filepath.Join(dir, "gray.png")
	writePNG(t, gray, checkerboard(40, 30, 5))

	codec := NewCodec(0)
	defer codec.Close()

	r, err := codec.Load(gray)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 40, r.Width)
	assert.Equal(t, 30, r.Height)
	assert.Equal(t, 3, r.Channels)
	assert.Equal(t, ColorSpaceBGR, r.ColorSpace)
	assert.Equal(t, "opencv", r.Decoder)
}

func TestDecodersAreInterchangeable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colors.png")
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	img.SetRGBA(1, 0, color.RGBA{0, 255, 0, 255})
	img.SetRGBA(2, 0, color.RGBA{0, 0, 255, 255})
	writePNG(t, path, img)

	primary, err := OpenCVLoader{}.LoadImage(path)
	require.NoError(t, err)
	a, err := NewRaster(primary, "opencv")
	require.NoError(t, err)
	defer a.Close()

	secondary, err := GoImageLoader{}.LoadImage(path)
	require.NoError(t, err)
	b, err := NewRaster(secondary, "go-image")
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, a.Mat.ToBytes(), b.Mat.ToBytes())
	assert.Equal(t, []byte{0, 0, 255, 0, 255, 0, 255, 0, 0}, b.Mat.ToBytes())
}

func TestApplyOrientation(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))

	tests := []struct {
		orientation int
		wantW       int
		wantH       int
	}{
		{1, 4, 2},
		{3, 4, 2},
		{6, 2, 4},
		{8, 2, 4},
	}
	for _, tt := range tests {
		out := applyOrientation(img, tt.orientation)
		assert.Equal(t, tt.wantW, out.Bounds().Dx(), "orientation %d", tt.orientation)
		assert.Equal(t, tt.wantH, out.Bounds().Dy(), "orientation %d", tt.orientation)
	}
}

func TestRegistryChains(t *testing.T) {
	r := NewLoaderRegistry()
	defer r.Close()

	chain := r.Chain("photo.JPG")
	require.Len(t, chain, 2)
	assert.Equal(t, "opencv", chain[0].Name())
	assert.Equal(t, "go-image", chain[1].Name())

	for _, l := range r.Chain("shot.cr2") {
		assert.NotEqual(t, "go-image", l.Name())
	}
}

func TestFormats(t *testing.T) {
	assert.True(t, IsImageFile("a.HEIC"))
	assert.True(t, IsImageFile("b.orf"))
	assert.False(t, IsImageFile("notes.txt"))
	assert.True(t, IsRawFormat("c.NEF"))
	assert.False(t, IsRawFormat("c.tiff"))
	assert.Equal(t, FormatWEBP, GetFileFormat("d.webp"))
	assert.Contains(t, GetSupportedExtensions(), ".heif")
}
