package imageprocessor

import (
	"errors"
	"image"

	"cleanshot/types"

	"gocv.io/x/gocv"
)

// Weights of the two sharpness metrics in the combined score
const (
	LaplacianWeight = 0.7
	GradientWeight  = 0.3
)

// BlurScorer computes sharpness over a size-normalized grayscale raster
type BlurScorer struct {
	MaxEdge int
}

// NewBlurScorer creates a scorer that normalizes the longer edge to maxEdge
func NewBlurScorer(maxEdge int) *BlurScorer {
	return &BlurScorer{MaxEdge: maxEdge}
}

// Score returns the Laplacian variance, mean Sobel magnitude and their weighted sum
func (b *BlurScorer) Score(r *Raster) (*types.BlurScore, error) {
	if r == nil || r.Mat.Empty() {
		return nil, errors.New("empty raster")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(r.Mat, &gray, gocv.ColorBGRToGray)

	norm := normalizeSize(gray, b.MaxEdge)
	defer norm.Close()

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(norm, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stdDev := gocv.NewMat()
	defer stdDev.Close()
	gocv.MeanStdDev(lap, &mean, &stdDev)
	sd := stdDev.GetDoubleAt(0, 0)
	variance := sd * sd

	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()
	gocv.Sobel(norm, &gx, gocv.MatTypeCV64F, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(norm, &gy, gocv.MatTypeCV64F, 0, 1, 3, 1, 0, gocv.BorderDefault)

	mag := gocv.NewMat()
	defer mag.Close()
	gocv.Magnitude(gx, gy, &mag)
	gradient := mag.Mean().Val1

	return &types.BlurScore{
		LaplacianVariance: variance,
		GradientMagnitude: gradient,
		Combined:          LaplacianWeight*variance + GradientWeight*gradient,
	}, nil
}

// IsBlurry reports combined < threshold. An absent score is never blurry.
func IsBlurry(score *types.BlurScore, threshold float64) bool {
	if score == nil {
		return false
	}
	return score.Combined < threshold
}

// normalizeSize returns a copy of src whose longer edge is at most maxEdge
func normalizeSize(src gocv.Mat, maxEdge int) gocv.Mat {
	w, h := src.Cols(), src.Rows()
	longest := w
	if h > longest {
		longest = h
	}
	if maxEdge <= 0 || longest <= maxEdge {
		return src.Clone()
	}

	scale := float64(maxEdge) / float64(longest)
	size := image.Pt(max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale)))

	dst := gocv.NewMat()
	gocv.Resize(src, &dst, size, 0, 0, gocv.InterpolationArea)
	return dst
}
