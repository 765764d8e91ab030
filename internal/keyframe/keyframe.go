// Package keyframe defines the gfx-replay wire format sent by the server and
// decodes inbound payloads.
package keyframe

import "encoding/json"

// IDUndefined marks an absent rig, object or semantic id.
const IDUndefined = -1

// Wrapper is the top level of every inbound payload and of replay files.
type Wrapper struct {
	Keyframes []Keyframe `json:"keyframes"`
}

// Keyframe is one incremental world update. The reconciler applies its parts
// in a fixed order: message, loads, creations, metadata, rigs, state updates,
// deletions.
type Keyframe struct {
	Loads        []Load            `json:"loads,omitempty"`
	RigCreations []RigCreation     `json:"rigCreations,omitempty"`
	Creations    []CreationItem    `json:"creations,omitempty"`
	Metadata     []MetadataItem    `json:"metadata,omitempty"`
	StateUpdates []StateUpdateItem `json:"stateUpdates,omitempty"`
	RigUpdates   []RigUpdate       `json:"rigUpdates,omitempty"`
	Deletions    []int             `json:"deletions,omitempty"`
	Message      *Message          `json:"message,omitempty"`
}

// AbsTransform is an absolute pose in server space.
type AbsTransform struct {
	Translation []float32 `json:"translation"`
	Rotation    []float32 `json:"rotation"`
}

// Valid reports whether the transform has three translation and four
// rotation components.
func (t AbsTransform) Valid() bool {
	return len(t.Translation) == 3 && len(t.Rotation) == 4
}

// Load registers the coordinate frame for every asset created from Filepath.
type Load struct {
	Type     int    `json:"type"`
	Filepath string `json:"filepath"`
	Frame    Frame  `json:"frame"`
}

type Frame struct {
	Up     []float32 `json:"up,omitempty"`
	Front  []float32 `json:"front,omitempty"`
	Origin []float32 `json:"origin,omitempty"`
}

type CreationItem struct {
	InstanceKey int      `json:"instanceKey"`
	Creation    Creation `json:"creation"`
}

type Creation struct {
	Filepath string    `json:"filepath"`
	Scale    []float32 `json:"scale,omitempty"`
	RigID    int       `json:"rigId"`
}

// UnmarshalJSON defaults RigID to IDUndefined when the field is absent, since
// zero is a valid rig id.
func (c *Creation) UnmarshalJSON(data []byte) error {
	type plain Creation
	decoded := plain{RigID: IDUndefined}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = Creation(decoded)
	return nil
}

type MetadataItem struct {
	InstanceKey int              `json:"instanceKey"`
	Metadata    InstanceMetadata `json:"metadata"`
}

type InstanceMetadata struct {
	ObjectID   int `json:"objectId"`
	SemanticID int `json:"semanticId"`
}

type StateUpdateItem struct {
	InstanceKey int         `json:"instanceKey"`
	State       StateUpdate `json:"state"`
}

type StateUpdate struct {
	AbsTransform AbsTransform `json:"absTransform"`
}

// RigCreation names the bones of a rig. The root bone is implicit.
type RigCreation struct {
	ID        int      `json:"id"`
	BoneNames []string `json:"boneNames"`
}

// RigUpdate carries one pose per bone, in RigCreation.BoneNames order.
type RigUpdate struct {
	ID   int             `json:"id"`
	Pose []BoneTransform `json:"pose"`
}

type BoneTransform struct {
	T []float32 `json:"t"`
	R []float32 `json:"r"`
}
