package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHabitatPathToAddress(t *testing.T) {
	cases := map[string]string{
		"data/123/../test_dataset/a/b/./c/d/f/g/.././../e/asset.glb": "data/test_dataset/a/b/c/d/e/asset",
		"": "",
		"data/objects/chair.object_config.json": "data/objects/chair",
		"../../data/a.glb":                      "data/a",
		"data//a/./b.glb":                       "data/a/b",
		"data/v1.2/mesh.glb":                    "data/v1.2/mesh",
	}
	for input, want := range cases {
		assert.Equal(t, want, HabitatPathToAddress(input), "input %q", input)
	}
}

func TestRemoveExtensionIsIdempotent(t *testing.T) {
	for _, input := range []string{"a.b.c", "dir/x.glb", "noext", ".hidden", "d.e/f"} {
		once := RemoveExtension(input)
		assert.Equal(t, once, RemoveExtension(once), "input %q", input)
	}
}

func TestSimplifyRelativePathIsIdempotent(t *testing.T) {
	for _, input := range []string{"a/../../b/./c", "./x/y/..", "/abs/path/"} {
		once := SimplifyRelativePath(input)
		assert.Equal(t, once, SimplifyRelativePath(once), "input %q", input)
	}
}

func TestFallbackAddress(t *testing.T) {
	got, ok := FallbackAddress("data/fpss/objects/3/3a8e0c9c")
	assert.True(t, ok)
	assert.Equal(t, "data/objects_ovmm/train_val/hssd/assets/objects/3a8e0c9c", got)

	_, ok = FallbackAddress("data/objects/chair")
	assert.False(t, ok)
}
