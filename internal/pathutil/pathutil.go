// Package pathutil turns the dataset-relative file paths used on the wire
// into asset addresses.
package pathutil

import (
	"path"
	"strings"
)

const (
	legacyObjectsDir   = "data/fpss/objects/"
	fallbackObjectsDir = "data/objects_ovmm/train_val/hssd/assets/objects/"
)

// SimplifyRelativePath drops empty and "." segments and resolves ".." against
// the preceding segment. A ".." with nothing to pop is discarded.
func SimplifyRelativePath(p string) string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	return strings.Join(out, "/")
}

// RemoveExtension strips everything from the first dot of the final segment,
// so "a.glb" and "a.tar.gz" become "a" and "a". Dots in directory names are
// kept. The operation is idempotent.
func RemoveExtension(p string) string {
	dir, file := path.Split(p)
	if i := strings.IndexByte(file, '.'); i > 0 {
		file = file[:i]
	}
	return dir + file
}

// HabitatPathToAddress converts a wire filepath into the address used to
// locate and load the asset.
func HabitatPathToAddress(p string) string {
	return RemoveExtension(SimplifyRelativePath(p))
}

// FallbackAddress rewrites an address from the legacy object dataset layout to
// the layout the asset server currently publishes. It reports false when the
// address does not belong to the legacy layout.
func FallbackAddress(address string) (string, bool) {
	if !strings.Contains(address, legacyObjectsDir) {
		return "", false
	}
	return fallbackObjectsDir + path.Base(address), true
}
