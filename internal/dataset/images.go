package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"captionkit/internal/textutil"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
	".bmp":  {},
	".gif":  {},
	".tif":  {},
	".tiff": {},
}

// IsImage reports whether name carries a supported image extension.
func IsImage(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// DiscoverImages lists the images directly inside dir in processing order.
// Names carrying a number sort by that number first; names without one
// follow. Ties fall back to the file name.
func DiscoverImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsImage(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.SliceStable(names, func(i, j int) bool {
		return imageLess(names[i], names[j])
	})

	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths, nil
}

func imageLess(a, b string) bool {
	na, okA := textutil.EmbeddedNumber(a)
	nb, okB := textutil.EmbeddedNumber(b)
	switch {
	case okA && okB && na != nb:
		return na < nb
	case okA != okB:
		return okA
	}
	return a < b
}
