package review

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ClampIndex bounds idx to [0, n-1]. It returns 0 when n is 0.
func ClampIndex(idx, n int) int {
	if n <= 0 {
		return 0
	}
	return max(0, min(idx, n-1))
}

// DisplayPath resolves a recorded image path for serving. An absolute path
// that exists is used as is. Anything else, including paths recorded on
// another machine, is looked up by file name inside dataDir.
func DisplayPath(pathValue, dataDir string) string {
	if pathValue == "" {
		return ""
	}
	if filepath.IsAbs(pathValue) {
		if _, err := os.Stat(pathValue); err == nil {
			return pathValue
		}
	}
	name := filepath.Base(strings.ReplaceAll(pathValue, `\`, "/"))
	return filepath.Join(dataDir, name)
}

// ProgressText renders "n / total" using a 1-based position.
func ProgressText(idx, total int) string {
	if total == 0 {
		return "No records"
	}
	return fmt.Sprintf("%d / %d", idx+1, total)
}
