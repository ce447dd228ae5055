package scanner

import (
	"cleanshot/config"
	"cleanshot/faceverify"
	"cleanshot/imageprocessor"
	"cleanshot/ledger"
	"cleanshot/types"
)

// ImageLoader decodes one file into a normalized raster
type ImageLoader interface {
	Load(path string) (*imageprocessor.Raster, error)
}

// Scorer computes the sharpness score of a raster
type Scorer interface {
	Score(r *imageprocessor.Raster) (*types.BlurScore, error)
}

// Hasher computes the perceptual hash triple of a raster
type Hasher interface {
	Hash(r *imageprocessor.Raster) (*imageprocessor.HashTriple, error)
}

// FaceCounter counts frontal faces in a raster
type FaceCounter interface {
	Count(r *imageprocessor.Raster) int
}

// FaceVerifier prepares a reference once for many candidate comparisons
type FaceVerifier interface {
	Session(reference string) (*faceverify.Session, error)
	Method() string
}

// OrganizerOptions configures one organize run. Nil collaborators are built
// from Settings and released when the run ends.
type OrganizerOptions struct {
	Folder   string
	Settings config.Settings
	Ledger   *ledger.Ledger
	Observer Observer
	Store    SessionStore

	Loader ImageLoader
	Scorer Scorer
	Hasher Hasher
	Faces  FaceCounter
}

// FaceSearchOptions configures one face search run
type FaceSearchOptions struct {
	Folder    string
	Reference string
	Settings  config.Settings
	Verifier  FaceVerifier
	Ledger    *ledger.Ledger
	Observer  Observer
	Store     SessionStore

	// Loader pre-validates candidates. Built from Settings when nil.
	Loader ImageLoader
}
