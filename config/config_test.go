package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cleanshot/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := config.Default()
	assert.Equal(t, 100, s.BlurThreshold)
	assert.Equal(t, 20, s.SimilarityThreshold)
	assert.Equal(t, 0.85, s.FaceMatchThreshold)
	assert.True(t, s.DetectFaces)
	assert.Equal(t, []string{"retinaface", "opencv", "ssd"}, s.VerifierBackends)
	assert.NoError(t, s.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Settings)
		wantOK bool
	}{
		{"defaults", func(s *config.Settings) {}, true},
		{"blur too high", func(s *config.Settings) { s.BlurThreshold = 1001 }, false},
		{"blur negative", func(s *config.Settings) { s.BlurThreshold = -1 }, false},
		{"similarity too high", func(s *config.Settings) { s.SimilarityThreshold = 51 }, false},
		{"face threshold above one", func(s *config.Settings) { s.FaceMatchThreshold = 1.2 }, false},
		{"hash size not power of two", func(s *config.Settings) { s.HashSize = 12 }, false},
		{"hash size eight", func(s *config.Settings) { s.HashSize = 8 }, true},
		{"zero normalization bound", func(s *config.Settings) { s.NormalizeMaxEdge = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.Default()
			tt.modify(&s)
			err := s.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
				return
			}
			var verr *config.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Len(t, verr.Problems, 1)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := "blur_threshold: 200\nsimilarity_threshold: 10\ndetect_faces: false\nverifier_timeout: 30s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 200, s.BlurThreshold)
	assert.Equal(t, 10, s.SimilarityThreshold)
	assert.False(t, s.DetectFaces)
	assert.Equal(t, 30*time.Second, s.VerifierTimeout)
	assert.Equal(t, 0.85, s.FaceMatchThreshold)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default().BlurThreshold, s.BlurThreshold)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s := config.Default()
	s.BlurThreshold = 350
	require.NoError(t, s.Save(path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 350, loaded.BlurThreshold)
}

func TestPresets(t *testing.T) {
	v, err := config.BlurPreset("very-strict")
	require.NoError(t, err)
	assert.Equal(t, 350, v)

	v, err = config.SimilarityPreset("Loose")
	require.NoError(t, err)
	assert.Equal(t, 40, v)

	_, err = config.BlurPreset("extreme")
	assert.Error(t, err)

	assert.Equal(t, "Strict", config.PresetName(config.SimilarityPresets, 10))
	assert.Equal(t, "Custom", config.PresetName(config.BlurPresets, 123))
}

func TestValidateFolder(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, config.ValidateFolder(dir))
	assert.Error(t, config.ValidateFolder(""))
	assert.Error(t, config.ValidateFolder(filepath.Join(dir, "missing")))

	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	assert.Error(t, config.ValidateFolder(file))
}
