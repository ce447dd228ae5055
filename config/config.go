package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultBlurThreshold       = 100
	DefaultSimilarityThreshold = 20
	DefaultFaceMatchThreshold  = 0.85
	DefaultHashSize            = 16
	DefaultNormalizeMaxEdge    = 800
	DefaultVerifierModel       = "ArcFace"
	DefaultVerifierTimeout     = 60 * time.Second
	DefaultMaxFileSize         = 100 * 1024 * 1024
	DefaultLedgerFile          = "operations.json"
	DefaultDatabaseFile        = "cleanshot.db"
	DefaultLogFile             = "cleanshot.log"

	MaxBlurThreshold       = 1000
	MaxSimilarityThreshold = 50
)

// DefaultVerifierBackends is ordered most accurate first
var DefaultVerifierBackends = []string{"retinaface", "opencv", "ssd"}

// Settings is the configuration passed into pipeline construction
type Settings struct {
	BlurThreshold       int     `yaml:"blur_threshold" json:"blur_threshold"`
	SimilarityThreshold int     `yaml:"similarity_threshold" json:"similarity_threshold"`
	DetectFaces         bool    `yaml:"detect_faces" json:"detect_faces"`
	FaceMatchThreshold  float64 `yaml:"face_match_threshold" json:"face_match_threshold"`
	HashSize            int     `yaml:"hash_size" json:"hash_size"`
	NormalizeMaxEdge    int     `yaml:"normalize_max_edge" json:"normalize_max_edge"`
	MaxFileSize         int64   `yaml:"max_file_size" json:"max_file_size"`
	DryRun              bool    `yaml:"dry_run" json:"dry_run"`
	CascadePath         string  `yaml:"cascade_path" json:"cascade_path,omitempty"`

	VerifierURL      string        `yaml:"verifier_url" json:"verifier_url,omitempty"`
	VerifierBackends []string      `yaml:"verifier_backends" json:"verifier_backends,omitempty"`
	VerifierModel    string        `yaml:"verifier_model" json:"verifier_model,omitempty"`
	VerifierTimeout  time.Duration `yaml:"verifier_timeout" json:"verifier_timeout,omitempty"`
	CompreFaceURL    string        `yaml:"compreface_url" json:"compreface_url,omitempty"`
	CompreFaceKey    string        `yaml:"compreface_key" json:"-"`

	LedgerPath   string `yaml:"ledger_path" json:"-"`
	DatabasePath string `yaml:"database_path" json:"-"`
	LogPath      string `yaml:"log_path" json:"-"`
}

// Default returns settings populated with the documented defaults
func Default() Settings {
	return Settings{
		BlurThreshold:       DefaultBlurThreshold,
		SimilarityThreshold: DefaultSimilarityThreshold,
		DetectFaces:         true,
		FaceMatchThreshold:  DefaultFaceMatchThreshold,
		HashSize:            DefaultHashSize,
		NormalizeMaxEdge:    DefaultNormalizeMaxEdge,
		MaxFileSize:         DefaultMaxFileSize,
		VerifierBackends:    append([]string(nil), DefaultVerifierBackends...),
		VerifierModel:       DefaultVerifierModel,
		VerifierTimeout:     DefaultVerifierTimeout,
		LedgerPath:          DefaultLedgerFile,
		DatabasePath:        DefaultDatabaseFile,
		LogPath:             DefaultLogFile,
	}
}

// Load reads a YAML settings file over the defaults. A missing file yields the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return s, s.Validate()
}

// Save writes the settings as YAML
func (s Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ValidationError lists every invalid field
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid settings: " + strings.Join(e.Problems, "; ")
}

// Validate checks ranges of all numeric settings
func (s Settings) Validate() error {
	var problems []string
	if s.BlurThreshold < 0 || s.BlurThreshold > MaxBlurThreshold {
		problems = append(problems, fmt.Sprintf("blur threshold must be between 0 and %d", MaxBlurThreshold))
	}
	if s.SimilarityThreshold < 0 || s.SimilarityThreshold > MaxSimilarityThreshold {
		problems = append(problems, fmt.Sprintf("similarity threshold must be between 0 and %d", MaxSimilarityThreshold))
	}
	if s.FaceMatchThreshold < 0 || s.FaceMatchThreshold > 1 {
		problems = append(problems, "face match threshold must be between 0 and 1")
	}
	if n := s.HashSize * s.HashSize; s.HashSize <= 0 || n&(n-1) != 0 {
		problems = append(problems, "hash size squared must be a power of two")
	}
	if s.NormalizeMaxEdge <= 0 {
		problems = append(problems, "normalization bound must be positive")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidateFolder checks that a folder exists and can be read and written
func ValidateFolder(path string) error {
	if path == "" {
		return errors.New("no folder selected")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("folder does not exist: %s", path)
		}
		return fmt.Errorf("cannot access folder %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	dir, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("no read permission for folder %s: %w", path, err)
	}
	dir.Close()

	probe, err := os.CreateTemp(path, ".cleanshot-probe-*")
	if err != nil {
		return fmt.Errorf("no write permission for folder %s: %w", path, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}
