// Package buildinfo derives new build metadata from its identifier and
// from the directory of files the build produced.
package buildinfo

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/openslide/buildindex/pkg/config"
)

// DateFromID extracts the build date (YYYY-MM-DD) from an identifier.
func DateFromID(id string, from config.DateFrom) (string, error) {
	var stamp string
	switch from {
	case config.DateFromMetadata:
		// 4.0.0+20231015.abcdef
		_, meta, ok := strings.Cut(id, "+")
		if !ok {
			return "", fmt.Errorf("identifier %q has no build metadata", id)
		}
		stamp, _, _ = strings.Cut(meta, ".")
	case config.DateFromPrefix:
		// 20231015-abcdef
		stamp, _, _ = strings.Cut(id, "-")
	default:
		return "", fmt.Errorf("unknown date source %q", from)
	}

	t, err := time.Parse("20060102", stamp)
	if err != nil {
		return "", fmt.Errorf("identifier %q: invalid date %q", id, stamp)
	}
	return t.Format(time.DateOnly), nil
}

// ListSuffixes returns the sorted filename suffixes following id for each
// file in dir. openslide-bin-4.0.0+x.tar.gz yields ".tar.gz".
func ListSuffixes(dir, id string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list build files: %w", err)
	}

	suffixes := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		_, suffix, ok := strings.Cut(name, id)
		if !ok {
			return nil, fmt.Errorf("file %q does not contain build identifier %q", name, id)
		}
		suffixes = append(suffixes, suffix)
	}
	sort.Strings(suffixes)
	return suffixes, nil
}
