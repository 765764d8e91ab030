package clientstate

import (
	"time"

	"siro-hitl/client/internal/coords"
	"siro-hitl/client/internal/keyframe"
	"siro-hitl/client/internal/telemetry"
)

// AvatarTracker reports the local avatar pose. The server can move the
// avatar base through teleportAvatarBasePosition.
type AvatarTracker struct {
	converter coords.Converter
	logger    telemetry.Logger
	root      coords.Transform
	hands     [2]coords.Transform
	teleports int
}

func NewAvatarTracker(converter coords.Converter, logger telemetry.Logger) *AvatarTracker {
	if converter == nil {
		converter = coords.Habitat{}
	}
	return &AvatarTracker{
		converter: converter,
		logger:    telemetry.OrDiscard(logger),
		root:      coords.Identity(),
		hands:     [2]coords.Transform{coords.Identity(), coords.Identity()},
	}
}

// SetPose records the engine-space root and hand poses.
func (a *AvatarTracker) SetPose(root coords.Transform, left, right coords.Transform) {
	a.root = root
	a.hands = [2]coords.Transform{left, right}
}

func (a *AvatarTracker) Root() coords.Transform { return a.root }

// Teleports counts applied teleports.
func (a *AvatarTracker) Teleports() int { return a.teleports }

func (a *AvatarTracker) ProcessMessage(msg *keyframe.Message) {
	if len(msg.TeleportAvatarBasePosition) == 0 {
		return
	}
	pos, err := a.converter.Vector(msg.TeleportAvatarBasePosition)
	if err != nil {
		a.logger.Printf("[avatar] teleport ignored: %v", err)
		return
	}
	offset := pos.Sub(a.root.Position)
	a.root.Position = pos
	for i := range a.hands {
		a.hands[i].Position = a.hands[i].Position.Add(offset)
	}
	a.teleports++
}

func (a *AvatarTracker) Update(time.Time) {}

func (a *AvatarTracker) UpdateClientState(state *State) {
	state.Avatar = &AvatarData{
		Root: a.pose(a.root),
		Hands: [2]Pose{
			a.pose(a.hands[0]),
			a.pose(a.hands[1]),
		},
	}
}

func (a *AvatarTracker) EndCycle() {}

func (a *AvatarTracker) pose(t coords.Transform) Pose {
	return Pose{
		Position: a.converter.HabitatVector(t.Position),
		Rotation: a.converter.HabitatQuaternion(t.Rotation),
	}
}
