package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupTemps removes leftover temp files from interrupted atomic writes of
// the given output files, when older than maxAge. Temp files are named
// "." + base name + random suffix next to the target.
func CleanupTemps(maxAge time.Duration, targets ...string) int {
	now := time.Now()
	removed := 0
	for _, target := range targets {
		dir, base := filepath.Split(target)
		if dir == "" {
			dir = "."
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		prefix := "." + base
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || name == base || !strings.HasPrefix(name, prefix) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) >= maxAge {
				if os.Remove(filepath.Join(dir, name)) == nil {
					removed++
				}
			}
		}
	}
	return removed
}
