package keyframe

// UICanvasUpdate replaces or extends the contents of one canvas.
type UICanvasUpdate struct {
	Clear    bool              `json:"clear,omitempty"`
	Elements []UIElementUpdate `json:"elements,omitempty"`
}

type UICanvasProperties struct {
	Padding         int       `json:"padding"`
	BackgroundColor []float32 `json:"backgroundColor,omitempty"`
}

// UIElementUpdate is the wire envelope for canvas elements. Each variant is a
// separate optional field; Elements turns the envelope into a closed set of
// element values.
type UIElementUpdate struct {
	CanvasProperties *UICanvasProperties `json:"canvasProperties,omitempty"`
	Button           *UIButton           `json:"button,omitempty"`
	Toggle           *UIToggle           `json:"toggle,omitempty"`
	Label            *UILabel            `json:"label,omitempty"`
	ListItem         *UIListItem         `json:"listItem,omitempty"`
	Separator        *UISeparator        `json:"separator,omitempty"`
	Spacer           *UISpacer           `json:"spacer,omitempty"`
}

// Elements returns the variants present in u in a fixed order: button,
// toggle, label, list item, separator, spacer.
func (u UIElementUpdate) Elements() []UIElement {
	var out []UIElement
	if u.Button != nil {
		out = append(out, u.Button)
	}
	if u.Toggle != nil {
		out = append(out, u.Toggle)
	}
	if u.Label != nil {
		out = append(out, u.Label)
	}
	if u.ListItem != nil {
		out = append(out, u.ListItem)
	}
	if u.Separator != nil {
		out = append(out, u.Separator)
	}
	if u.Spacer != nil {
		out = append(out, u.Spacer)
	}
	return out
}

// UIElement is implemented only by the element types in this package.
type UIElement interface {
	ElementUID() string
	uiElement()
}

type UIButton struct {
	UID     string    `json:"uid"`
	Text    string    `json:"text"`
	Enabled bool      `json:"enabled"`
	Color   []float32 `json:"color,omitempty"`
	Tooltip string    `json:"tooltip,omitempty"`
}

type UIToggle struct {
	UID       string    `json:"uid"`
	Enabled   bool      `json:"enabled"`
	Toggled   bool      `json:"toggled"`
	TextFalse string    `json:"textFalse"`
	TextTrue  string    `json:"textTrue"`
	Color     []float32 `json:"color,omitempty"`
	Tooltip   string    `json:"tooltip,omitempty"`
}

type UILabel struct {
	UID                 string    `json:"uid"`
	Text                string    `json:"text"`
	Bold                bool      `json:"bold,omitempty"`
	FontSize            int       `json:"fontSize,omitempty"`
	HorizontalAlignment int       `json:"horizontalAlignment,omitempty"`
	Color               []float32 `json:"color,omitempty"`
}

type UIListItem struct {
	UID       string    `json:"uid"`
	TextLeft  string    `json:"textLeft"`
	TextRight string    `json:"textRight"`
	FontSize  int       `json:"fontSize,omitempty"`
	Color     []float32 `json:"color,omitempty"`
}

type UISeparator struct {
	UID string `json:"uid"`
}

type UISpacer struct {
	UID  string  `json:"uid"`
	Size float32 `json:"size"`
}

func (e *UIButton) ElementUID() string    { return e.UID }
func (e *UIToggle) ElementUID() string    { return e.UID }
func (e *UILabel) ElementUID() string     { return e.UID }
func (e *UIListItem) ElementUID() string  { return e.UID }
func (e *UISeparator) ElementUID() string { return e.UID }
func (e *UISpacer) ElementUID() string    { return e.UID }

func (*UIButton) uiElement()    {}
func (*UIToggle) uiElement()    {}
func (*UILabel) uiElement()     {}
func (*UIListItem) uiElement()  {}
func (*UISeparator) uiElement() {}
func (*UISpacer) uiElement()    {}
