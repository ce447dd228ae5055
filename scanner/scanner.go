package scanner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"cleanshot/imageprocessor"
	"cleanshot/ledger"
	"cleanshot/logging"
	"cleanshot/types"
)

// Organizer sorts one folder into Good, Blurry and Duplicate subfolders
type Organizer struct {
	*run

	opts    OrganizerOptions
	loader  ImageLoader
	scorer  Scorer
	hasher  Hasher
	faces   FaceCounter
	index   *imageprocessor.DuplicateIndex
	closers []func()
}

// NewOrganizer validates the options and prepares a run. Nothing touches
// the folder until Run or Start.
func NewOrganizer(opts OrganizerOptions) (*Organizer, error) {
	if opts.Folder == "" {
		return nil, errors.New("folder is required")
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

	return &Organizer{
		run:    newRun(types.ModeOrganize, opts.Folder, opts.Settings, opts.Observer, opts.Store),
		opts:   opts,
		loader: opts.Loader,
		scorer: opts.Scorer,
		hasher: opts.Hasher,
		faces:  opts.Faces,
		index:  imageprocessor.NewDuplicateIndex(float64(opts.Settings.SimilarityThreshold)),
	}, nil
}

// Start runs the organizer on its own goroutine. Use Wait for the summary.
func (o *Organizer) Start(ctx context.Context) {
	go o.Run(ctx)
}

// Run processes every image in the folder on the calling goroutine
func (o *Organizer) Run(ctx context.Context) (types.RunSummary, error) {
	if !o.begin() {
		return types.RunSummary{}, ErrAlreadyStarted
	}
	defer o.watch(ctx)()

	s := o.opts.Settings
	var results types.RunResults

	files, err := ListImages(o.folder)
	if err != nil {
		return o.finish(results, err)
	}
	if len(files) == 0 {
		o.status("No images")
		o.logf(logging.LevelInfo, "No images found in %s", o.folder)
		results.NoImages = true
		return o.finish(results, nil)
	}
	if !s.DryRun {
		if err := EnsureCategoryFolders(o.folder, s.DetectFaces); err != nil {
			return o.finish(results, err)
		}
	}

	o.prepare()
	defer o.release()
	o.index.Reset()

	o.logf(logging.LevelInfo, "Organizing %d images (%d RAW) in %s", len(files), countRaw(files), o.folder)
	if s.DryRun {
		o.logf(logging.LevelInfo, "Preview mode: no files will be moved")
	}

	tracker := NewProgressTracker(len(files))
	results.Items = make([]types.ProcessingResult, 0, len(files))
	for _, path := range files {
		if !o.checkpoint() {
			results.Stopped = true
			break
		}

		o.status("Processing: " + filepath.Base(path))
		r := o.evaluate(path)
		if !s.DryRun && r.Category != types.CategorySkipped {
			o.relocate(&r)
		}

		results.Items = append(results.Items, r)
		results.Counts.Add(r)
		o.observer.Progress(tracker.Advance(r))
	}

	tracker.LogCompletion(o.mode, results.Stopped)
	c := results.Counts
	if results.Stopped {
		o.status("Stopped")
		o.logf(logging.LevelWarning, "Stopped after %d of %d images", c.Total, len(files))
	} else {
		o.status("Complete")
	}
	o.logf(logging.LevelInfo, "Good: %d, Blurry: %d, Duplicate: %d, Faces: %d, Skipped: %d, Failed: %d",
		c.Good, c.Blurry, c.Duplicate, c.FacePhotos, c.Skipped, c.Failed)
	return o.finish(results, nil)
}

// prepare builds the collaborators the caller did not supply
func (o *Organizer) prepare() {
	s := o.opts.Settings
	if o.loader == nil {
		codec := imageprocessor.NewCodec(s.MaxFileSize)
		o.loader = codec
		o.closers = append(o.closers, codec.Close)
	}
	if o.scorer == nil {
		o.scorer = imageprocessor.NewBlurScorer(s.NormalizeMaxEdge)
	}
	if o.hasher == nil {
		o.hasher = imageprocessor.NewHasher(s.HashSize, s.NormalizeMaxEdge)
	}
	if o.faces == nil && s.DetectFaces {
		fc, err := imageprocessor.NewFaceCounter(s.CascadePath)
		if err != nil {
			o.logf(logging.LevelWarning, "Face detection unavailable: %v", err)
		}
		o.faces = fc
		o.closers = append(o.closers, fc.Close)
	}
}

func (o *Organizer) release() {
	for _, c := range o.closers {
		c()
	}
	o.closers = nil
}

// evaluate decides the category of one image without touching the file
func (o *Organizer) evaluate(path string) types.ProcessingResult {
	name := filepath.Base(path)
	r := types.ProcessingResult{Path: path}

	raster, err := o.loader.Load(path)
	if err != nil {
		r.Category = types.CategorySkipped
		r.Error = err.Error()
		o.logf(logging.LevelWarning, "Skipped: %s (%v)", name, err)
		return r
	}
	defer raster.Close()

	if score, err := o.scorer.Score(raster); err != nil {
		logging.WithStage(path, "blur").Warn(err)
	} else {
		r.Blur = score
	}

	if o.faces != nil && o.opts.Settings.DetectFaces {
		r.FaceCount = o.faces.Count(raster)
	}

	if hashes, err := o.hasher.Hash(raster); err != nil {
		logging.WithStage(path, "hash").Warn(err)
	} else if dup, nearest := o.index.CheckAndRecord(hashes, path); dup {
		d := nearest.Distance
		r.Category = types.CategoryDuplicate
		r.DuplicateOf = nearest.Path
		r.DuplicateDistance = &d
		o.logf(logging.LevelInfo, "Duplicate: %s matches %s (diff: %.1f)", name, filepath.Base(nearest.Path), d)
		return r
	}

	threshold := o.opts.Settings.BlurThreshold
	if imageprocessor.IsBlurry(r.Blur, float64(threshold)) {
		r.Category = types.CategoryBlurry
		o.logf(logging.LevelInfo, "Blurry: %s (score: %.1f, threshold: %d)", name, r.Blur.Combined, threshold)
		return r
	}

	r.Category = types.CategoryGood
	return r
}

func (o *Organizer) relocate(r *types.ProcessingResult) {
	for _, err := range relocate(o.folder, r, o.opts.Ledger, o.opts.Settings.DetectFaces) {
		o.logf(logging.LevelError, "%v", err)
	}
}

// relocate moves one evaluated image into its category folder. Images with
// faces are first copied to Face_Photos. Every completed file operation is
// recorded in the ledger; a failed move leaves the file where it was.
func relocate(folder string, r *types.ProcessingResult, l *ledger.Ledger, withFaces bool) []error {
	var errs []error

	if withFaces && r.FaceCount > 0 {
		op, err := ledger.Copy(r.Path, filepath.Join(folder, types.FaceFolder))
		if err == nil {
			err = l.Record(op)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("face copy of %s: %w", filepath.Base(r.Path), err))
		}
	}

	op, err := ledger.Move(r.Path, filepath.Join(folder, r.Category.Folder()))
	if err != nil {
		r.Error = err.Error()
		return append(errs, fmt.Errorf("move of %s: %w", filepath.Base(r.Path), err))
	}
	r.Destination = op.Destination
	if err := l.Record(op); err != nil {
		errs = append(errs, fmt.Errorf("recording move of %s: %w", filepath.Base(r.Path), err))
	}
	return errs
}
