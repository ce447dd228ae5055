// Package faceverify compares a reference face against candidates through an
// external verification service, retrying across detector backends.
package faceverify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cleanshot/imageprocessor"
	"cleanshot/logging"
)

var (
	// ErrNoFaceDetected means the backend could not localize a face; another backend may
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrBackendFailure means the backend itself failed; the next backend is tried
	ErrBackendFailure = errors.New("verifier backend failure")
)

// ErrorKind classifies a VerifyError
type ErrorKind string

const (
	// KindInput means an image could not be prepared for the service
	KindInput ErrorKind = "input"
	// KindNoFace means no backend found a face
	KindNoFace ErrorKind = "no_face"
	// KindBackend means every backend failed
	KindBackend ErrorKind = "backend"
	// KindRejected means a backend failed in a way no other backend can fix
	KindRejected ErrorKind = "rejected"
)

// VerifyError ties a failure to the backend or stage that produced it
type VerifyError struct {
	Backend string
	Kind    ErrorKind
	Err     error
}

func (e *VerifyError) Error() string {
	if e.Backend == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Verdict is the raw output of one backend comparison
type Verdict struct {
	Verified  bool    `json:"verified"`
	Distance  float64 `json:"distance"`
	Threshold float64 `json:"threshold"`
}

// Backend compares the faces in two image files
type Backend interface {
	Name() string
	Verify(ctx context.Context, reference, candidate string) (Verdict, error)
}

// Result is the normalized outcome for one candidate
type Result struct {
	IsMatch    bool
	Similarity float64
	Backend    string
	Verdict    Verdict
}

// Loader decodes images for transcoding
type Loader interface {
	Load(path string) (*imageprocessor.Raster, error)
}

// Verifier runs comparisons across an ordered list of backends
type Verifier struct {
	backends  []Backend
	threshold float64
	loader    Loader
	tempDir   string
}

// Options configure a Verifier
type Options struct {
	Threshold float64
	Loader    Loader
	TempDir   string
}

// New creates a verifier; backends are tried in the given order
func New(opts Options, backends ...Backend) (*Verifier, error) {
	if len(backends) == 0 {
		return nil, errors.New("at least one verifier backend is required")
	}
	if opts.Loader == nil {
		return nil, errors.New("a loader is required for transcoding")
	}
	return &Verifier{
		backends:  backends,
		threshold: opts.Threshold,
		loader:    opts.Loader,
		tempDir:   opts.TempDir,
	}, nil
}

// Threshold returns the caller's similarity threshold
func (v *Verifier) Threshold() float64 {
	return v.threshold
}

// Method describes the backend chain for summaries
func (v *Verifier) Method() string {
	names := make([]string, len(v.backends))
	for i, b := range v.backends {
		names[i] = b.Name()
	}
	return strings.Join(names, " > ")
}

// Similarity maps a verifier distance to [0,1], higher is more similar
func Similarity(distance float64) float64 {
	s := 1 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Verify compares a single pair. For many candidates against one reference use Session.
func (v *Verifier) Verify(ctx context.Context, reference, candidate string) (Result, error) {
	s, err := v.Session(reference)
	if err != nil {
		return Result{}, err
	}
	defer s.Close()
	return s.Compare(ctx, candidate)
}

// Session holds a prepared reference image for repeated comparisons
type Session struct {
	v         *Verifier
	reference *prepared
}

// Session prepares the reference once
func (v *Verifier) Session(reference string) (*Session, error) {
	ref, err := v.prepare(reference)
	if err != nil {
		return nil, &VerifyError{Kind: KindInput, Err: fmt.Errorf("reference image: %w", err)}
	}
	return &Session{v: v, reference: ref}, nil
}

// Close removes the reference's temporary file, if any
func (s *Session) Close() {
	s.reference.cleanup()
}

// Compare verifies candidate against the session reference
func (s *Session) Compare(ctx context.Context, candidate string) (Result, error) {
	cand, err := s.v.prepare(candidate)
	if err != nil {
		return Result{}, &VerifyError{Kind: KindInput, Err: err}
	}
	defer cand.cleanup()

	var sawNoFace bool
	var lastErr error
	for _, b := range s.v.backends {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		verdict, err := b.Verify(ctx, s.reference.path, cand.path)
		if err == nil {
			sim := Similarity(verdict.Distance)
			return Result{
				IsMatch:    verdict.Verified && sim >= s.v.threshold,
				Similarity: sim,
				Backend:    b.Name(),
				Verdict:    verdict,
			}, nil
		}

		switch {
		case errors.Is(err, ErrNoFaceDetected):
			sawNoFace = true
			logging.DebugLog("no face found by %s for %s", b.Name(), candidate)
		case errors.Is(err, ErrBackendFailure):
			logging.LogWarning("verifier backend %s failed for %s: %v", b.Name(), candidate, err)
		default:
			return Result{}, &VerifyError{Backend: b.Name(), Kind: KindRejected, Err: err}
		}
		lastErr = err
	}

	if sawNoFace {
		return Result{}, &VerifyError{Kind: KindNoFace, Err: fmt.Errorf("%w by any backend", ErrNoFaceDetected)}
	}
	return Result{}, &VerifyError{Kind: KindBackend, Err: fmt.Errorf("all backends failed: %w", lastErr)}
}
