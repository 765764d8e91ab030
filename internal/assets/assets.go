// Package assets resolves asset addresses to loaded resources.
package assets

import (
	"errors"

	"siro-hitl/client/internal/async"
)

// ErrNotFound is returned when an address does not resolve to an asset.
var ErrNotFound = errors.New("assets: not found")

// Asset is a loaded resource. Bones lists the skeleton joint names, root
// first, when the asset is skinned.
type Asset struct {
	Address string
	Bones   []string
	Size    int64
}

// Resolver locates and loads assets without blocking the caller.
type Resolver interface {
	// Locate reports whether address exists.
	Locate(address string) async.Operation[bool]
	// Load fetches the asset behind address.
	Load(address string) async.Operation[Asset]
}
