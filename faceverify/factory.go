package faceverify

import (
	"errors"

	"cleanshot/config"
)

// FromSettings builds a verifier with the configured services. DeepFace
// detector backends come first, then CompreFace when a key is set.
func FromSettings(s config.Settings, loader Loader) (*Verifier, error) {
	var backends []Backend
	if s.VerifierURL != "" {
		client := NewDeepFaceClient(s.VerifierURL, s.VerifierModel, s.VerifierTimeout)
		detectors := s.VerifierBackends
		if len(detectors) == 0 {
			detectors = config.DefaultVerifierBackends
		}
		backends = append(backends, client.Backends(detectors...)...)
	}
	if s.CompreFaceURL != "" && s.CompreFaceKey != "" {
		backends = append(backends, NewCompreFaceClient(s.CompreFaceURL, s.CompreFaceKey, s.FaceMatchThreshold, s.VerifierTimeout))
	}
	if len(backends) == 0 {
		return nil, errors.New("no face verification service configured")
	}
	return New(Options{Threshold: s.FaceMatchThreshold, Loader: loader}, backends...)
}
