package scanner

import (
	"fmt"
	"os"

	"cleanshot/ledger"
	"cleanshot/logging"
	"cleanshot/types"
)

// ApplyResults relocates the items of a preview run. Items whose file has
// since disappeared are reported and skipped. The returned slice carries the
// destinations of the items that moved.
func ApplyResults(results []types.ProcessingResult, folder string, l *ledger.Ledger, withFaces bool) ([]types.ProcessingResult, []error) {
	if err := EnsureCategoryFolders(folder, withFaces); err != nil {
		return nil, []error{err}
	}

	applied := make([]types.ProcessingResult, 0, len(results))
	var errs []error
	for _, r := range results {
		if r.Category == types.CategorySkipped || r.Category.Folder() == "" {
			continue
		}
		if _, err := os.Stat(r.Path); err != nil {
			errs = append(errs, fmt.Errorf("%s no longer available: %w", r.Path, err))
			continue
		}
		r.Destination = ""
		if e := relocate(folder, &r, l, withFaces); len(e) > 0 {
			errs = append(errs, e...)
		}
		if r.Destination != "" {
			applied = append(applied, r)
		}
	}

	logging.LogInfo("Applied %d of %d previewed results in %s", len(applied), len(results), folder)
	return applied, errs
}
