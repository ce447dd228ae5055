package imageprocessor

import (
	"sync"

	"cleanshot/logging"
)

// SeenImage is a non-duplicate image recorded during one run
type SeenImage struct {
	Hashes *HashTriple
	Path   string
}

// Nearest is the closest previously seen image
type Nearest struct {
	Distance float64
	Path     string
}

// DuplicateIndex accumulates hashes for a single run. The first occurrence of
// a group is recorded; later occurrences in scan order are duplicates of it.
type DuplicateIndex struct {
	mu        sync.Mutex
	threshold float64
	seen      []SeenImage
}

// NewDuplicateIndex creates an empty index with a distance threshold
func NewDuplicateIndex(threshold float64) *DuplicateIndex {
	return &DuplicateIndex{threshold: threshold}
}

// CheckAndRecord finds the nearest seen image. The image is a duplicate when
// that distance is <= threshold; otherwise it is recorded for later lookups.
func (d *DuplicateIndex) CheckAndRecord(hashes *HashTriple, path string) (bool, *Nearest) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var nearest *Nearest
	for _, s := range d.seen {
		dist, err := HashDistance(hashes, s.Hashes)
		if err != nil {
			logging.LogWarning("cannot compare %s with %s: %v", path, s.Path, err)
			continue
		}
		if nearest == nil || dist < nearest.Distance {
			nearest = &Nearest{Distance: dist, Path: s.Path}
		}
	}

	if nearest != nil && nearest.Distance <= d.threshold {
		return true, nearest
	}

	d.seen = append(d.seen, SeenImage{Hashes: hashes, Path: path})
	return false, nearest
}

// Reset forgets every recorded image
func (d *DuplicateIndex) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = nil
}

// Len returns the number of recorded images
func (d *DuplicateIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
