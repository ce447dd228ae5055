package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cleanshot/imageprocessor"
	"cleanshot/types"
)

// ListImages returns the image files directly inside folder, sorted by name.
// Subdirectories are not descended into, so category folders are never rescanned.
func ListImages(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("cannot list %s: %w", folder, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageprocessor.IsImageFile(e.Name()) {
			files = append(files, filepath.Join(folder, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// EnsureCategoryFolders creates the category subfolders of an organize run
func EnsureCategoryFolders(folder string, withFaces bool) error {
	dirs := []string{types.GoodFolder, types.BlurryFolder, types.DuplicateFolder}
	if withFaces {
		dirs = append(dirs, types.FaceFolder)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(folder, d), 0755); err != nil {
			return fmt.Errorf("cannot create %s: %w", d, err)
		}
	}
	return nil
}

func isRaw(path string) bool {
	return imageprocessor.IsRawFormat(path)
}

// countRaw counts RAW files for the startup log line
func countRaw(files []string) (raw int) {
	for _, f := range files {
		if isRaw(f) {
			raw++
		}
	}
	return raw
}
