package imageprocessor

import (
	"errors"
	"fmt"

	"github.com/corona10/goimagehash"
)

// Hash family weights in the duplicate distance. pHash dominates.
const (
	AverageWeight    = 0.25
	PerceptualWeight = 0.50
	DifferenceWeight = 0.25
)

// HashTriple holds the three perceptual digests of one raster
type HashTriple struct {
	Average    *goimagehash.ExtImageHash
	Perceptual *goimagehash.ExtImageHash
	Difference *goimagehash.ExtImageHash
}

// Strings renders the digests as average, perceptual, difference
func (h *HashTriple) Strings() [3]string {
	return [3]string{h.Average.ToString(), h.Perceptual.ToString(), h.Difference.ToString()}
}

// Equal reports whether all three digests are bit-identical
func (h *HashTriple) Equal(o *HashTriple) bool {
	return h.Strings() == o.Strings()
}

// Hasher computes HashTriples over the size-normalized raster
type Hasher struct {
	Size    int
	MaxEdge int
}

// NewHasher creates a hasher producing size x size bit digests
func NewHasher(size, maxEdge int) *Hasher {
	return &Hasher{Size: size, MaxEdge: maxEdge}
}

// Hash computes average, perceptual and difference hashes
func (h *Hasher) Hash(r *Raster) (*HashTriple, error) {
	if r == nil || r.Mat.Empty() {
		return nil, errors.New("empty raster")
	}

	norm := normalizeSize(r.Mat, h.MaxEdge)
	defer norm.Close()

	// ToImage reads 3-channel Mats as BGR
	img, err := norm.ToImage()
	if err != nil {
		return nil, fmt.Errorf("raster conversion failed: %w", err)
	}

	avg, err := goimagehash.ExtAverageHash(img, h.Size, h.Size)
	if err != nil {
		return nil, fmt.Errorf("average hash: %w", err)
	}
	phash, err := goimagehash.ExtPerceptionHash(img, h.Size, h.Size)
	if err != nil {
		return nil, fmt.Errorf("perceptual hash: %w", err)
	}
	dhash, err := goimagehash.ExtDifferenceHash(img, h.Size, h.Size)
	if err != nil {
		return nil, fmt.Errorf("difference hash: %w", err)
	}

	return &HashTriple{Average: avg, Perceptual: phash, Difference: dhash}, nil
}

// HashDistance is the weighted hamming distance between two triples
func HashDistance(a, b *HashTriple) (float64, error) {
	da, err := a.Average.Distance(b.Average)
	if err != nil {
		return 0, err
	}
	dp, err := a.Perceptual.Distance(b.Perceptual)
	if err != nil {
		return 0, err
	}
	dd, err := a.Difference.Distance(b.Difference)
	if err != nil {
		return 0, err
	}
	return AverageWeight*float64(da) + PerceptualWeight*float64(dp) + DifferenceWeight*float64(dd), nil
}
