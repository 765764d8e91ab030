package keyframe

// Message carries everything in a keyframe that is not part of the instance
// table: overlays, viewports, UI and session bookkeeping.
type Message struct {
	Circles                    []Circle                   `json:"circles,omitempty"`
	Lines                      []Line                     `json:"lines,omitempty"`
	TeleportAvatarBasePosition []float32                  `json:"teleportAvatarBasePosition,omitempty"`
	SceneChanged               bool                       `json:"sceneChanged,omitempty"`
	NavmeshVertices            []float32                  `json:"navmeshVertices,omitempty"`
	Texts                      []TextMessage              `json:"texts,omitempty"`
	Cameras                    map[int]AbsTransform       `json:"cameras,omitempty"`
	ServerKeyframeID           *int                       `json:"serverKeyframeId,omitempty"`
	Objects                    map[int]ObjectProperties   `json:"objects,omitempty"`
	Viewports                  map[int]ViewportProperties `json:"viewports,omitempty"`
	Outlines                   []ObjectOutline            `json:"outlines,omitempty"`
	Dialog                     *Dialog                    `json:"dialog,omitempty"`
	UIUpdates                  map[string]UICanvasUpdate  `json:"uiUpdates,omitempty"`
}

// Circle is a debug-draw ring. B selects billboard orientation.
type Circle struct {
	T []float32 `json:"t"`
	R float32   `json:"r"`
	N []float32 `json:"n,omitempty"`
	B int       `json:"b,omitempty"`
	C []int     `json:"c,omitempty"`
}

// Billboard reports whether the circle faces the camera instead of N.
func (c Circle) Billboard() bool {
	return c.B == 1
}

// Line is a debug-draw segment from A to B.
type Line struct {
	A []float32 `json:"a"`
	B []float32 `json:"b"`
	C []int     `json:"c,omitempty"`
}

type TextMessage struct {
	Text     string    `json:"text"`
	Position []float32 `json:"position,omitempty"`
}

// ObjectProperties overrides visibility or render layer for one instance key.
type ObjectProperties struct {
	Visible *bool `json:"visible,omitempty"`
	Layer   *int  `json:"layer,omitempty"`
}

type ViewportProperties struct {
	Enabled *bool         `json:"enabled,omitempty"`
	Layers  []int         `json:"layers,omitempty"`
	Rect    []float32     `json:"rect,omitempty"`
	Camera  *AbsTransform `json:"camera,omitempty"`
}

type ObjectOutline struct {
	Priority  int       `json:"priority"`
	Color     []float32 `json:"color,omitempty"`
	Width     float32   `json:"width"`
	ObjectIDs []int     `json:"objectIds"`
}

type Dialog struct {
	Title   string   `json:"title"`
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
	Textbox *Textbox `json:"textbox,omitempty"`
}

type Button struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Enabled bool   `json:"enabled"`
}

type Textbox struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Enabled bool   `json:"enabled"`
}
