package imageprocessor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexedImage struct {
	name   string
	hashes *HashTriple
}

func TestDuplicateIndexFirstOccurrenceWins(t *testing.T) {
	a := indexedImage{"A", syntheticTriple(0)}
	aPrime := indexedImage{"A'", syntheticTriple(0x3)}
	b := indexedImage{"B", syntheticTriple(0xFFFFFFFFFFFFFFFF)}

	tests := []struct {
		name        string
		order       []indexedImage
		wantDup     []bool
		wantNearest []string
	}{
		{"original first", []indexedImage{a, aPrime, b}, []bool{false, true, false}, []string{"", "A", ""}},
		{"near duplicate first", []indexedImage{aPrime, a, b}, []bool{false, true, false}, []string{"", "A'", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := NewDuplicateIndex(20)
			for i, img := range tt.order {
				dup, nearest := idx.CheckAndRecord(img.hashes, img.name)
				assert.Equal(t, tt.wantDup[i], dup, img.name)
				if tt.wantDup[i] {
					require.NotNil(t, nearest)
					assert.Equal(t, tt.wantNearest[i], nearest.Path)
					assert.InDelta(t, 2.0, nearest.Distance, 1e-9)
				}
			}
			assert.Equal(t, 2, idx.Len())
		})
	}
}

func TestDuplicateIndexThresholdIsInclusive(t *testing.T) {
	idx := NewDuplicateIndex(4)
	dup, nearest := idx.CheckAndRecord(syntheticTriple(0), "a")
	assert.False(t, dup)
	assert.Nil(t, nearest)

	// four differing bits in every family: 0.25*4 + 0.5*4 + 0.25*4 = 4
	dup, nearest = idx.CheckAndRecord(syntheticTriple(0xF), "b")
	assert.True(t, dup)
	assert.Equal(t, 4.0, nearest.Distance)

	dup, nearest = idx.CheckAndRecord(syntheticTriple(0x1F), "c")
	assert.False(t, dup)
	require.NotNil(t, nearest)
	assert.Equal(t, "a", nearest.Path)
}

func TestDuplicateIndexNearestIsMinimum(t *testing.T) {
	idx := NewDuplicateIndex(1)
	idx.CheckAndRecord(syntheticTriple(0), "zero")
	idx.CheckAndRecord(syntheticTriple(0xFFFF), "ones")

	dup, nearest := idx.CheckAndRecord(syntheticTriple(0xFFF0), "probe")
	assert.False(t, dup)
	require.NotNil(t, nearest)
	assert.Equal(t, "ones", nearest.Path)
	assert.Equal(t, 4.0, nearest.Distance)
}

func TestDuplicateIndexReset(t *testing.T) {
	idx := NewDuplicateIndex(20)
	idx.CheckAndRecord(syntheticTriple(0), "a")
	require.Equal(t, 1, idx.Len())

	idx.Reset()
	assert.Zero(t, idx.Len())
	dup, _ := idx.CheckAndRecord(syntheticTriple(0), "a again")
	assert.False(t, dup)
}
