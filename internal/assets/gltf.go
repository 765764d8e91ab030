package assets

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/qmuntal/gltf"
)

// SkinJointNames returns the joint names of the first skin in a binary (GLB)
// or JSON glTF document. Unskinned assets yield nil. When the skin names a
// skeleton root that is not itself a joint, it is listed first.
func SkinJointNames(data []byte) ([]string, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, fmt.Errorf("gltf: %w", err)
	}
	if len(doc.Skins) == 0 {
		return nil, nil
	}
	skin := doc.Skins[0]
	name := func(idx int) (string, error) {
		if idx < 0 || idx >= len(doc.Nodes) || doc.Nodes[idx] == nil {
			return "", fmt.Errorf("skin joint %d out of range", idx)
		}
		return doc.Nodes[idx].Name, nil
	}
	var names []string
	if skin.Skeleton != nil && !slices.Contains(skin.Joints, *skin.Skeleton) {
		root, err := name(*skin.Skeleton)
		if err != nil {
			return nil, err
		}
		names = append(names, root)
	}
	for _, idx := range skin.Joints {
		n, err := name(idx)
		if err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, nil
}
