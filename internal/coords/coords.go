// Package coords converts between the server's right-handed, Y-up space and
// the client's left-handed engine space.
//
// Wire vectors are [x, y, z]. Wire quaternions are [w, x, y, z].
package coords

import (
	"errors"
	"fmt"

	"cogentcore.org/core/math32"
)

var ErrDimension = errors.New("coords: wrong number of components")

// Transform is an engine-space pose.
type Transform struct {
	Position math32.Vector3
	Rotation math32.Quat
}

// Identity returns the pose at the origin with no rotation.
func Identity() Transform {
	return Transform{Rotation: math32.NewQuat(0, 0, 0, 1)}
}

// Converter maps wire vectors and quaternions to engine space and back.
type Converter interface {
	Vector(v []float32) (math32.Vector3, error)
	Quaternion(q []float32) (math32.Quat, error)
	HabitatVector(v math32.Vector3) []float32
	HabitatQuaternion(q math32.Quat) []float32
}

// Habitat mirrors the X axis, which turns the server's right-handed frame
// into the engine's left-handed one. Mirroring is its own inverse.
type Habitat struct{}

func (Habitat) Vector(v []float32) (math32.Vector3, error) {
	if len(v) != 3 {
		return math32.Vector3{}, fmt.Errorf("vector with %d components: %w", len(v), ErrDimension)
	}
	return math32.Vec3(-v[0], v[1], v[2]), nil
}

func (Habitat) Quaternion(q []float32) (math32.Quat, error) {
	if len(q) != 4 {
		return math32.Quat{}, fmt.Errorf("quaternion with %d components: %w", len(q), ErrDimension)
	}
	return math32.NewQuat(q[1], -q[2], -q[3], q[0]), nil
}

func (Habitat) HabitatVector(v math32.Vector3) []float32 {
	return []float32{-v.X, v.Y, v.Z}
}

func (Habitat) HabitatQuaternion(q math32.Quat) []float32 {
	return []float32{q.W, q.X, -q.Y, -q.Z}
}

// ToTransform converts a wire translation and rotation pair.
func ToTransform(c Converter, translation, rotation []float32) (Transform, error) {
	pos, err := c.Vector(translation)
	if err != nil {
		return Transform{}, fmt.Errorf("translation: %w", err)
	}
	rot, err := c.Quaternion(rotation)
	if err != nil {
		return Transform{}, fmt.Errorf("rotation: %w", err)
	}
	return Transform{Position: pos, Rotation: rot}, nil
}

const frameEpsilon = 1e-5

// FrameRotationOffset returns the rotation applied to a loaded mesh so that an
// asset authored with the given up axis stands upright. Y-up assets need no
// rotation and Z-up assets are rotated -90 degrees about X. Any other up axis
// is rejected.
func FrameRotationOffset(up []float32) (math32.Quat, error) {
	if len(up) == 0 {
		return math32.NewQuat(0, 0, 0, 1), nil
	}
	if len(up) != 3 {
		return math32.Quat{}, fmt.Errorf("frame up axis with %d components: %w", len(up), ErrDimension)
	}
	switch {
	case near(up, 0, 1, 0):
		return math32.NewQuat(0, 0, 0, 1), nil
	case near(up, 0, 0, 1):
		return math32.NewQuatAxisAngle(math32.Vec3(1, 0, 0), math32.DegToRad(-90)), nil
	default:
		return math32.Quat{}, fmt.Errorf("unsupported frame up axis %v", up)
	}
}

func near(v []float32, x, y, z float32) bool {
	return math32.Abs(v[0]-x) < frameEpsilon && math32.Abs(v[1]-y) < frameEpsilon && math32.Abs(v[2]-z) < frameEpsilon
}
