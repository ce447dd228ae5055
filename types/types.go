package types

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Category is the organizer verdict for one image
type Category string

const (
	CategoryGood      Category = "good"
	CategoryBlurry    Category = "blurry"
	CategoryDuplicate Category = "duplicate"
	CategorySkipped   Category = "skipped" // undecodable, never relocated
)

// Category folder names created inside the scanned folder
const (
	GoodFolder      = "Good_Photos"
	BlurryFolder    = "Blurry_Photos"
	DuplicateFolder = "Duplicate_Photos"
	FaceFolder      = "Face_Photos"
)

// Folder returns the destination folder name for a category
func (c Category) Folder() string {
	switch c {
	case CategoryGood:
		return GoodFolder
	case CategoryBlurry:
		return BlurryFolder
	case CategoryDuplicate:
		return DuplicateFolder
	}
	return ""
}

// BlurScore holds both sharpness metrics and their weighted combination
type BlurScore struct {
	LaplacianVariance float64 `json:"laplacian_variance"`
	GradientMagnitude float64 `json:"gradient_magnitude"`
	Combined          float64 `json:"combined"`
}

// ProcessingResult is produced once per candidate image per run
type ProcessingResult struct {
	Path                  string     `json:"path"`
	Category              Category   `json:"category"`
	Blur                  *BlurScore `json:"blur_score,omitempty"`
	DuplicateOf           string     `json:"duplicate_of,omitempty"`
	DuplicateDistance     *float64   `json:"duplicate_distance,omitempty"`
	FaceCount             int        `json:"face_count"`
	SimilarityToReference *float64   `json:"similarity_to_reference,omitempty"`
	Destination           string     `json:"destination,omitempty"`
	Error                 string     `json:"error,omitempty"`
}

// OperationKind distinguishes relocations for undo
type OperationKind string

const (
	OpMove OperationKind = "move"
	OpCopy OperationKind = "copy"
)

// Operation is one recorded file relocation
type Operation struct {
	Kind        OperationKind `json:"type"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Timestamp   time.Time     `json:"timestamp"`
}

func (o Operation) String() string {
	return fmt.Sprintf("%s %s -> %s", o.Kind, o.Source, o.Destination)
}

// Counts aggregates organizer results per category
type Counts struct {
	Total      int `json:"total_processed"`
	Good       int `json:"good"`
	Blurry     int `json:"blurry"`
	Duplicate  int `json:"duplicate"`
	FacePhotos int `json:"face_photos"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Add folds a single result into the counters. A categorized image that
// could not be relocated counts as failed, not under its category.
func (c *Counts) Add(r ProcessingResult) {
	c.Total++
	if r.FaceCount > 0 {
		c.FacePhotos++
	}
	if r.Category != CategorySkipped && r.Error != "" {
		c.Failed++
		return
	}
	switch r.Category {
	case CategoryGood:
		c.Good++
	case CategoryBlurry:
		c.Blurry++
	case CategoryDuplicate:
		c.Duplicate++
	case CategorySkipped:
		c.Skipped++
	}
}

// SearchSummary is the completion payload of a face search run
type SearchSummary struct {
	TotalSearched int      `json:"total_searched"`
	Skipped       int      `json:"skipped"`
	Matched       int      `json:"matched"`
	MatchedFiles  []string `json:"matched_files"`
	OutputFolder  string   `json:"output_folder"`
	Method        string   `json:"method"`
}

// Run modes
const (
	ModeOrganize = "organize"
	ModeSearch   = "search"
)

// RunResults is the results payload of a persisted run
type RunResults struct {
	Counts   Counts             `json:"counts"`
	Items    []ProcessingResult `json:"items"`
	Search   *SearchSummary     `json:"search,omitempty"`
	Stopped  bool               `json:"stopped"`
	NoImages bool               `json:"no_images,omitempty"`
}

// RunSummary is the persisted record of a completed run
type RunSummary struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Folder    string          `json:"folder"`
	Mode      string          `json:"mode"`
	Settings  json.RawMessage `json:"settings"`
	Results   RunResults      `json:"results"`
}

// WriteJSON exports the summary as an indented JSON file
func (s RunSummary) WriteJSON(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}

// ReadRunSummary loads a summary previously written with WriteJSON
func ReadRunSummary(path string) (*RunSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s RunSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse run summary: %w", err)
	}
	return &s, nil
}
