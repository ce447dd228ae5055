package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cleanshot/faceverify"
	"cleanshot/imageprocessor"
	"cleanshot/ledger"
	"cleanshot/logging"
	"cleanshot/types"
)

// MatchFolderPrefix names the per-run output folder of a face search
const MatchFolderPrefix = "Matched_Faces_"

// FaceSearch finds the photos in a folder that show the reference person
type FaceSearch struct {
	*run

	opts    FaceSearchOptions
	loader  ImageLoader
	closers []func()
}

// NewFaceSearch validates the options and prepares a run
func NewFaceSearch(opts FaceSearchOptions) (*FaceSearch, error) {
	if opts.Folder == "" {
		return nil, errors.New("folder is required")
	}
	if opts.Reference == "" {
		return nil, errors.New("reference image is required")
	}
	if opts.Verifier == nil {
		return nil, errors.New("a face verifier is required")
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	if opts.Ledger == nil {
		l, err := ledger.Open("")
		if err != nil {
			return nil, err
		}
		opts.Ledger = l
	}

	return &FaceSearch{
		run:    newRun(types.ModeSearch, opts.Folder, opts.Settings, opts.Observer, opts.Store),
		opts:   opts,
		loader: opts.Loader,
	}, nil
}

// Start runs the search on its own goroutine. Use Wait for the summary.
func (f *FaceSearch) Start(ctx context.Context) {
	go f.Run(ctx)
}

// Run compares the reference against every other image in the folder
func (f *FaceSearch) Run(ctx context.Context) (types.RunSummary, error) {
	if !f.begin() {
		return types.RunSummary{}, ErrAlreadyStarted
	}
	defer f.watch(ctx)()

	search := &types.SearchSummary{
		MatchedFiles: []string{},
		Method:       f.opts.Verifier.Method(),
	}
	results := types.RunResults{Search: search}

	files, err := f.candidates()
	if err != nil {
		return f.finish(results, err)
	}
	if len(files) == 0 {
		f.status("No images")
		f.logf(logging.LevelInfo, "No images found in %s", f.folder)
		results.NoImages = true
		return f.finish(results, nil)
	}

	f.prepare()
	defer f.release()

	raster, err := f.loader.Load(f.opts.Reference)
	if err != nil {
		return f.finish(results, fmt.Errorf("reference image: %w", err))
	}
	raster.Close()

	session, err := f.opts.Verifier.Session(f.opts.Reference)
	if err != nil {
		return f.finish(results, err)
	}
	defer session.Close()

	output := filepath.Join(f.folder, MatchFolderPrefix+time.Now().Format("20060102_150405"))
	search.OutputFolder = output
	if !f.settings.DryRun {
		if err := os.MkdirAll(output, 0755); err != nil {
			return f.finish(results, fmt.Errorf("cannot create %s: %w", output, err))
		}
	}

	f.logf(logging.LevelInfo, "Searching %d images for %s using %s",
		len(files), filepath.Base(f.opts.Reference), search.Method)

	tracker := NewProgressTracker(len(files))
	results.Items = make([]types.ProcessingResult, 0, len(files))
	for _, path := range files {
		if !f.checkpoint() {
			results.Stopped = true
			break
		}

		f.status("Searching: " + filepath.Base(path))
		r, matched := f.compare(ctx, session, path)
		if r.Error != "" {
			search.Skipped++
		}
		if matched {
			search.Matched++
			search.MatchedFiles = append(search.MatchedFiles, filepath.Base(path))
			if !f.settings.DryRun {
				f.copyMatch(&r, output)
			}
		}
		search.TotalSearched++
		results.Items = append(results.Items, r)
		f.observer.Progress(tracker.Advance(r))
	}

	tracker.LogCompletion(f.mode, results.Stopped)
	if results.Stopped {
		f.status("Stopped")
	} else {
		f.status("Complete")
	}
	f.logf(logging.LevelInfo, "Found %d matching photos in %d searched (%d skipped)",
		search.Matched, search.TotalSearched, search.Skipped)
	return f.finish(results, nil)
}

// candidates lists the folder without the reference image itself
func (f *FaceSearch) candidates() ([]string, error) {
	files, err := ListImages(f.folder)
	if err != nil {
		return nil, err
	}
	ref, _ := filepath.Abs(f.opts.Reference)
	out := files[:0]
	for _, p := range files {
		if abs, _ := filepath.Abs(p); abs == ref {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *FaceSearch) prepare() {
	if f.loader == nil {
		codec := imageprocessor.NewCodec(f.settings.MaxFileSize)
		f.loader = codec
		f.closers = append(f.closers, codec.Close)
	}
}

func (f *FaceSearch) release() {
	for _, c := range f.closers {
		c()
	}
	f.closers = nil
}

// compare validates and verifies one candidate. Failures are recorded on the
// result and never end the run.
func (f *FaceSearch) compare(ctx context.Context, session *faceverify.Session, path string) (types.ProcessingResult, bool) {
	name := filepath.Base(path)
	r := types.ProcessingResult{Path: path}

	raster, err := f.loader.Load(path)
	if err != nil {
		r.Error = err.Error()
		f.logf(logging.LevelWarning, "Skipped: %s (%v)", name, err)
		return r, false
	}
	raster.Close()

	res, err := session.Compare(ctx, path)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.Error = err.Error()
		return r, false
	case errors.Is(err, faceverify.ErrNoFaceDetected):
		r.Error = err.Error()
		f.logf(logging.LevelWarning, "No face detected: %s", name)
		return r, false
	default:
		r.Error = err.Error()
		f.logf(logging.LevelError, "Verification failed for %s: %v", name, err)
		return r, false
	}

	sim := res.Similarity
	r.SimilarityToReference = &sim
	if !res.IsMatch {
		logging.DebugLog("No match: %s (similarity: %.2f, backend: %s)", name, sim, res.Backend)
		return r, false
	}

	f.logf(logging.LevelMatch, "Match: %s (similarity: %.2f)", name, sim)
	if mo, ok := f.observer.(MatchObserver); ok {
		mo.Match(name, sim)
	}
	return r, true
}

func (f *FaceSearch) copyMatch(r *types.ProcessingResult, output string) {
	op, err := ledger.Copy(r.Path, output)
	if err != nil {
		r.Error = err.Error()
		f.logf(logging.LevelError, "Copy failed: %v", err)
		return
	}
	r.Destination = op.Destination
	if err := f.opts.Ledger.Record(op); err != nil {
		f.logf(logging.LevelError, "Cannot record copy of %s: %v", filepath.Base(r.Path), err)
	}
}
