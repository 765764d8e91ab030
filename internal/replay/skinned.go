package replay

import (
	"errors"
	"fmt"

	"cogentcore.org/core/math32"

	"siro-hitl/client/internal/coords"
	"siro-hitl/client/internal/keyframe"
)

// ErrRigMismatch means a rig's bones cannot be mapped onto a loaded skeleton.
var ErrRigMismatch = errors.New("rig does not match skeleton")

// boneRotationOffset corrects the authoring orientation of skinned assets,
// which face away from the server's forward axis.
var boneRotationOffset = math32.NewQuatEuler(math32.Vec3(0, math32.DegToRad(180), 0))

// BonePose is an engine-space pose for one skeleton bone, indexed into the
// loaded mesh's bone list.
type BonePose struct {
	Bone      int
	Transform coords.Transform
}

// SkinnedMesh binds server rig bones to the bones of a loaded skeleton. It
// needs both the skeleton (from the loaded asset) and the rig's bone names
// before poses can be applied. Until then the latest pose is buffered.
type SkinnedMesh struct {
	rigID     int
	meshBones []string
	boneNames []string
	boneMap   []int
	bound     bool
	err       error
	pending   *keyframe.RigUpdate
}

func newSkinnedMesh(rigID int) *SkinnedMesh {
	return &SkinnedMesh{rigID: rigID}
}

func (s *SkinnedMesh) RigID() int  { return s.rigID }
func (s *SkinnedMesh) Bound() bool { return s.bound }

// Err reports why binding failed, if it did.
func (s *SkinnedMesh) Err() error { return s.err }

// Initialize records the loaded skeleton's bone names, root first. A nil
// skeleton leaves the mesh waiting.
func (s *SkinnedMesh) Initialize(meshBones []string) error {
	if meshBones == nil {
		return nil
	}
	s.meshBones = meshBones
	return s.bind()
}

// ProcessRigCreation records the rig's bone names.
func (s *SkinnedMesh) ProcessRigCreation(rig keyframe.RigCreation) error {
	s.boneNames = rig.BoneNames
	return s.bind()
}

// ProcessRigUpdate stores the pose until the mesh is bound and returns it
// once it can be applied.
func (s *SkinnedMesh) ProcessRigUpdate(update keyframe.RigUpdate, conv coords.Converter) ([]BonePose, error) {
	if !s.bound {
		copied := update
		s.pending = &copied
		return nil, nil
	}
	return s.poses(update, conv)
}

// TakePending returns the buffered pose once the mesh is bound.
func (s *SkinnedMesh) TakePending(conv coords.Converter) ([]BonePose, error) {
	if !s.bound || s.pending == nil {
		return nil, nil
	}
	update := *s.pending
	s.pending = nil
	return s.poses(update, conv)
}

func (s *SkinnedMesh) poses(update keyframe.RigUpdate, conv coords.Converter) ([]BonePose, error) {
	if len(update.Pose) != len(s.boneMap) {
		return nil, fmt.Errorf("rig %d pose has %d bones, want %d", s.rigID, len(update.Pose), len(s.boneMap))
	}
	out := make([]BonePose, 0, len(update.Pose))
	for i, bone := range update.Pose {
		t, err := coords.ToTransform(conv, bone.T, bone.R)
		if err != nil {
			return nil, fmt.Errorf("rig %d bone %d: %w", s.rigID, i, err)
		}
		t.Rotation = t.Rotation.Mul(boneRotationOffset)
		out = append(out, BonePose{Bone: s.boneMap[i], Transform: t})
	}
	return out, nil
}

// bind maps rig bones onto mesh bones by name. The rig omits the root bone,
// so a matching skeleton has exactly one more bone than the rig, and every
// rig bone must be found by name.
func (s *SkinnedMesh) bind() error {
	if s.bound || s.err != nil {
		return s.err
	}
	if s.meshBones == nil || s.boneNames == nil {
		return nil
	}
	if len(s.meshBones) != len(s.boneNames)+1 {
		s.err = fmt.Errorf("rig %d has %d bones, skeleton has %d: %w", s.rigID, len(s.boneNames), len(s.meshBones), ErrRigMismatch)
		return s.err
	}
	index := make(map[string]int, len(s.meshBones))
	for i, name := range s.meshBones {
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	boneMap := make([]int, len(s.boneNames))
	for i, name := range s.boneNames {
		j, ok := index[name]
		if !ok {
			s.err = fmt.Errorf("rig %d bone %q not in skeleton: %w", s.rigID, name, ErrRigMismatch)
			return s.err
		}
		boneMap[i] = j
	}
	s.boneMap = boneMap
	s.bound = true
	return nil
}
