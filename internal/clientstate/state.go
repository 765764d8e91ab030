// Package clientstate assembles the periodic client state message sent to
// the server and paces its transmission.
package clientstate

// State is one outbound client state message. A new value is built for
// every transmission, so fields set for one cycle never leak into the next.
type State struct {
	Avatar                 *AvatarData       `json:"avatar,omitempty"`
	Input                  *ButtonInput      `json:"input,omitempty"`
	Mouse                  *MouseInput       `json:"mouse,omitempty"`
	ConnectionParamsDict   map[string]string `json:"connectionParamsDict,omitempty"`
	RecentServerKeyframeID *int              `json:"recentServerKeyframeId,omitempty"`
	IsLoading              bool              `json:"isLoading"`
	UI                     *UIInput          `json:"ui,omitempty"`
	LegacyUI               *UIInput          `json:"legacyUi,omitempty"`
}

// AvatarData holds the avatar root and hand poses in server space.
type AvatarData struct {
	Root  Pose    `json:"root"`
	Hands [2]Pose `json:"hands"`
}

type Pose struct {
	Position []float32 `json:"position"`
	Rotation []float32 `json:"rotation"`
}

// ButtonInput lists buttons held, released or pressed during the cycle.
type ButtonInput struct {
	ButtonHeld []int `json:"buttonHeld"`
	ButtonUp   []int `json:"buttonUp"`
	ButtonDown []int `json:"buttonDown"`
}

type MouseInput struct {
	Buttons            ButtonInput `json:"buttons"`
	ScrollDelta        [2]float32  `json:"scrollDelta"`
	MousePositionDelta [2]float32  `json:"mousePositionDelta"`
	RayOrigin          []float32   `json:"rayOrigin"`
	RayDirection       []float32   `json:"rayDirection"`
}

// UIInput reports UI interaction since the last transmission.
type UIInput struct {
	ButtonsPressed []string          `json:"buttonsPressed"`
	Textboxes      map[string]string `json:"textboxes"`
}

// NewUIInput returns a UIInput with empty, non-nil collections.
func NewUIInput() *UIInput {
	return &UIInput{ButtonsPressed: []string{}, Textboxes: map[string]string{}}
}

// Producer contributes a fragment of every outbound state.
type Producer interface {
	UpdateClientState(state *State)
	// EndCycle clears per-cycle input once a state carrying it was sent.
	EndCycle()
}
