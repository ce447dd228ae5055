package imageprocessor

import (
	"path/filepath"
	"strings"
	"sync"
)

// LoaderRegistry maps file extensions to an ordered chain of loaders
type LoaderRegistry struct {
	chains       map[string][]ImageLoader
	defaultChain []ImageLoader
	raw          *RawPreviewLoader
	mutex        sync.RWMutex
}

// NewLoaderRegistry registers the primary, secondary and RAW decoders
func NewLoaderRegistry() *LoaderRegistry {
	r := &LoaderRegistry{
		chains: make(map[string][]ImageLoader),
		raw:    NewRawPreviewLoader(),
	}

	primary := OpenCVLoader{}
	secondary := GoImageLoader{}
	r.defaultChain = []ImageLoader{primary, secondary}

	for ext, format := range formatExtensions {
		if format == FormatRAW {
			// OpenCV built with libraw handles some RAW files directly
			r.RegisterChain(ext, r.raw, primary)
			continue
		}
		r.RegisterChain(ext, primary, secondary)
	}

	return r
}

// RegisterChain replaces the loader chain for an extension
func (r *LoaderRegistry) RegisterChain(ext string, loaders ...ImageLoader) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.chains[strings.ToLower(ext)] = loaders
}

// Chain returns the loaders that apply to path, in the order to try them
func (r *LoaderRegistry) Chain(path string) []ImageLoader {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	chain, ok := r.chains[strings.ToLower(filepath.Ext(path))]
	if !ok {
		chain = r.defaultChain
	}

	usable := make([]ImageLoader, 0, len(chain))
	for _, l := range chain {
		if l.CanLoad(path) {
			usable = append(usable, l)
		}
	}
	return usable
}

// Close releases external decoder processes
func (r *LoaderRegistry) Close() {
	r.raw.Close()
}
