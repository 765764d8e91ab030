package consumers

import (
	"testing"
	"time"

	"cogentcore.org/core/math32"

	"siro-hitl/client/internal/clientstate"
	"siro-hitl/client/internal/keyframe"
	"siro-hitl/client/internal/progress"
	"siro-hitl/client/internal/telemetry"
	"siro-hitl/client/logging"
	replaylog "siro-hitl/client/logging/replay"
	"siro-hitl/client/logging/sinks"
)

func testDeps(t *testing.T) (Deps, *sinks.MemorySink, *logging.Metrics) {
	t.Helper()
	sink := sinks.NewMemorySink()
	metrics := &logging.Metrics{}
	return Deps{
		Logger:    telemetry.LoggerFunc(t.Logf),
		Metrics:   telemetry.WrapMetrics(metrics),
		Publisher: sink,
	}, sink, metrics
}

type loadable struct{}

func (*loadable) LoadProgress() float32 { return 0 }

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestKeyframeIDHandlerTracksLatestID(t *testing.T) {
	h := NewKeyframeIDHandler()
	h.ProcessMessage(&keyframe.Message{ServerKeyframeID: intPtr(7)})
	got := h.RecentServerKeyframeID()
	if got == nil || *got != 7 {
		t.Fatalf("expected id 7, got %v", got)
	}
	*got = 99
	if again := h.RecentServerKeyframeID(); *again != 7 {
		t.Fatalf("returned id must be a copy, got %d", *again)
	}

	h.ProcessMessage(&keyframe.Message{})
	if h.RecentServerKeyframeID() != nil {
		t.Fatalf("message without id should clear it")
	}

	h.ProcessMessage(&keyframe.Message{ServerKeyframeID: intPtr(8)})
	h.Reset()
	if h.RecentServerKeyframeID() != nil {
		t.Fatalf("reset should clear the id")
	}
}

func TestViewportHandlerLayersAndCameras(t *testing.T) {
	deps, sink, _ := testDeps(t)
	h := NewViewportHandler(nil, deps)

	main, ok := h.Viewport(DefaultViewportID)
	if !ok || !main.Enabled {
		t.Fatalf("default viewport must exist and be enabled")
	}
	for layer := 0; layer < LayerCount; layer++ {
		if !main.RendersLayer(layer) {
			t.Fatalf("default viewport should render layer %d", layer)
		}
	}

	h.ProcessMessage(&keyframe.Message{
		Viewports: map[int]keyframe.ViewportProperties{
			0: {Rect: []float32{0.5, 0, 0.5, 0.5}, Layers: []int{1}},
		},
		Cameras: map[int]keyframe.AbsTransform{
			0: {Translation: []float32{1, 2, 3}, Rotation: []float32{1, 0, 0, 0}},
			5: {Translation: []float32{0, 0, 0}, Rotation: []float32{1, 0, 0, 0}},
		},
	})

	vp, ok := h.Viewport(0)
	if !ok {
		t.Fatalf("viewport 0 should be created on demand")
	}
	if vp.Rect != (Rect{X: 0.5, Y: 0, Width: 0.5, Height: 0.5}) {
		t.Fatalf("unexpected rect %+v", vp.Rect)
	}
	if want := DefaultLayers | 1<<(FirstLayerIndex+1); vp.LayerMask != want {
		t.Fatalf("expected mask %b, got %b", want, vp.LayerMask)
	}
	if vp.RendersLayer(0) || !vp.RendersLayer(1) {
		t.Fatalf("viewport 0 should render only layer 1")
	}
	if !vp.Enabled {
		t.Fatalf("viewport with a camera update should be enabled")
	}
	if vp.Camera.Position != math32.Vec3(-1, 2, 3) {
		t.Fatalf("camera pose not converted, got %+v", vp.Camera.Position)
	}
	if _, ok := h.Viewport(5); ok {
		t.Fatalf("camera update must not create a viewport")
	}
	if n := len(sink.OfType(replaylog.EventUnknownViewport)); n != 1 {
		t.Fatalf("expected one unknown viewport event, got %d", n)
	}

	h.ProcessMessage(&keyframe.Message{})
	vp, _ = h.Viewport(0)
	if vp.Enabled {
		t.Fatalf("viewport without a camera update should be disabled")
	}
	if main, _ := h.Viewport(DefaultViewportID); !main.Enabled {
		t.Fatalf("default viewport must stay enabled")
	}
}

func TestLayerIndexBounds(t *testing.T) {
	tests := []struct {
		layer int
		want  int
		ok    bool
	}{
		{layer: 0, want: 8, ok: true},
		{layer: 7, want: 15, ok: true},
		{layer: 8, ok: false},
		{layer: -1, ok: false},
	}
	for _, tt := range tests {
		got, ok := LayerIndex(tt.layer)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("LayerIndex(%d) = %d, %v; want %d, %v", tt.layer, got, ok, tt.want, tt.ok)
		}
	}
}

type fakeInstances struct {
	live    map[int]bool
	visible map[int]bool
	layer   map[int]int
}

func newFakeInstances() *fakeInstances {
	return &fakeInstances{live: map[int]bool{}, visible: map[int]bool{}, layer: map[int]int{}}
}

func (f *fakeInstances) SetVisibility(key int, visible bool) bool {
	if !f.live[key] {
		return false
	}
	f.visible[key] = visible
	return true
}

func (f *fakeInstances) SetLayer(key int, layer int) bool {
	if !f.live[key] {
		return false
	}
	f.layer[key] = layer
	return true
}

func TestObjectPropertiesWaitForInstance(t *testing.T) {
	deps, _, _ := testDeps(t)
	instances := newFakeInstances()
	h := NewObjectPropertiesHandler(instances, nil, deps)

	h.ProcessMessage(&keyframe.Message{Objects: map[int]keyframe.ObjectProperties{
		3: {Visible: boolPtr(false)},
	}})
	h.ProcessMessage(&keyframe.Message{Objects: map[int]keyframe.ObjectProperties{
		3: {Layer: intPtr(2)},
	}})
	h.Update(time.Time{})
	if h.Pending() != 1 {
		t.Fatalf("override should wait for the instance")
	}

	instances.live[3] = true
	h.Update(time.Time{})
	if h.Pending() != 0 {
		t.Fatalf("override should be applied once the instance exists")
	}
	if visible, ok := instances.visible[3]; !ok || visible {
		t.Fatalf("expected instance 3 hidden")
	}
	if instances.layer[3] != FirstLayerIndex+2 {
		t.Fatalf("expected engine layer %d, got %d", FirstLayerIndex+2, instances.layer[3])
	}
}

func TestObjectPropertiesDroppedOnSceneChange(t *testing.T) {
	deps, _, _ := testDeps(t)
	h := NewObjectPropertiesHandler(newFakeInstances(), nil, deps)
	h.ProcessMessage(&keyframe.Message{Objects: map[int]keyframe.ObjectProperties{1: {Visible: boolPtr(true)}}})
	h.ProcessMessage(&keyframe.Message{SceneChanged: true})
	if h.Pending() != 0 {
		t.Fatalf("scene change should drop pending overrides")
	}
}

type objectMap map[int]int

func (m objectMap) InstanceKeyForObject(id int) (int, bool) {
	key, ok := m[id]
	return key, ok
}

func TestOutlinesResolveObjectsByPriority(t *testing.T) {
	objects := objectMap{10: 1, 11: 2, 12: 3}
	h := NewOutlineHandler(objects)
	h.ProcessMessage(&keyframe.Message{Outlines: []keyframe.ObjectOutline{
		{Priority: 5, Width: 2, ObjectIDs: []int{10, 99}},
		{Priority: 1, Color: []float32{1, 0, 0, 1}, Width: 1, ObjectIDs: []int{11, 12}},
		{Priority: 0, ObjectIDs: []int{98}},
	}})

	got := h.Outlines()
	if len(got) != 2 {
		t.Fatalf("expected 2 resolved groups, got %d", len(got))
	}
	if got[0].Priority != 1 || got[1].Priority != 5 {
		t.Fatalf("groups not ordered by priority: %+v", got)
	}
	if got[0].Color.R != 255 || got[0].Color.G != 0 {
		t.Fatalf("unexpected color %+v", got[0].Color)
	}
	if got[1].Color != defaultOutlineColor {
		t.Fatalf("missing color should use the default")
	}
	if len(got[1].InstanceKeys) != 1 || got[1].InstanceKeys[0] != 1 {
		t.Fatalf("unknown object ids should be skipped, got %v", got[1].InstanceKeys)
	}

	h.ProcessMessage(&keyframe.Message{})
	if len(h.Outlines()) != 0 {
		t.Fatalf("message without outlines should clear them")
	}
}

func TestDebugDrawConvertsAndCapsPools(t *testing.T) {
	deps, _, metrics := testDeps(t)
	h := NewDebugDrawHandler(nil, DebugDrawConfig{LinePoolSize: 2, CirclePoolSize: 1}, deps)

	h.ProcessMessage(&keyframe.Message{
		Circles: []keyframe.Circle{
			{T: []float32{1, 0, 0}, R: 0.5, B: 1, C: []int{255, 0, 0, 128}},
			{T: []float32{2, 0, 0}, R: 1},
		},
		Lines: []keyframe.Line{
			{A: []float32{1, 0, 0}, B: []float32{0, 1, 0}},
			{A: []float32{1, 0}, B: []float32{0, 1, 0}},
			{A: []float32{0, 0, 1}, B: []float32{0, 0, 2}, C: []int{0, 255, 0, 255}},
			{A: []float32{0, 0, 3}, B: []float32{0, 0, 4}},
		},
		NavmeshVertices: []float32{1, 2, 3, 4, 5, 6, 7},
	})

	circles := h.Circles()
	if len(circles) != 1 {
		t.Fatalf("expected circle pool cap of 1, got %d", len(circles))
	}
	c := circles[0]
	if c.Center != math32.Vec3(-1, 0, 0) || !c.Billboard || c.Radius != 0.5 {
		t.Fatalf("unexpected circle %+v", c)
	}
	if c.Color.R != 255 || c.Color.A != 128 {
		t.Fatalf("unexpected circle color %+v", c.Color)
	}

	lines := h.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected malformed line skipped and pool capped at 2, got %d", len(lines))
	}
	if lines[0].From != math32.Vec3(-1, 0, 0) || lines[0].Color != defaultDebugColor {
		t.Fatalf("unexpected first line %+v", lines[0])
	}
	if lines[1].Color.G != 255 {
		t.Fatalf("unexpected second line color %+v", lines[1].Color)
	}
	if got := metrics.Snapshot()[metricDebugDrawDropped]; got != 2 {
		t.Fatalf("expected 2 dropped primitives, got %d", got)
	}
	if nav := h.Navmesh(); len(nav) != 2 || nav[1] != math32.Vec3(-4, 5, 6) {
		t.Fatalf("unexpected navmesh %v", nav)
	}

	h.ProcessMessage(&keyframe.Message{})
	if len(h.Circles()) != 0 || len(h.Lines()) != 0 {
		t.Fatalf("each message replaces the previous primitives")
	}
	if len(h.Navmesh()) != 2 {
		t.Fatalf("navmesh persists until replaced")
	}
}

func TestTextHiddenWhileLoading(t *testing.T) {
	tracker := progress.NewTracker()
	h := NewTextHandler(nil, tracker)
	h.ProcessMessage(&keyframe.Message{Texts: []keyframe.TextMessage{
		{Text: "hello"},
		{Text: "there", Position: []float32{1, 2, 3}},
	}})

	texts := h.Visible()
	if len(texts) != 2 || texts[0].Position != nil || *texts[1].Position != math32.Vec3(-1, 2, 3) {
		t.Fatalf("unexpected texts %+v", texts)
	}

	l := &loadable{}
	tracker.LoadStarted(l)
	if h.Visible() != nil {
		t.Fatalf("texts must be hidden while loading")
	}
	tracker.LoadSucceeded(l)
	if len(h.Visible()) != 2 {
		t.Fatalf("texts should return after loading")
	}
}

func TestDialogReportsLegacyUI(t *testing.T) {
	tracker := progress.NewTracker()
	h := NewDialogHandler(tracker)
	h.ProcessMessage(&keyframe.Message{Dialog: &keyframe.Dialog{
		Title:   "Task",
		Buttons: []keyframe.Button{{ID: "ok", Enabled: true}, {ID: "no", Enabled: false}},
		Textbox: &keyframe.Textbox{ID: "name", Enabled: true},
	}})
	if !tracker.ModalDialogShown() || !tracker.IsApplicationPaused() {
		t.Fatalf("dialog should pause the application")
	}
	if !h.PressButton("ok") || h.PressButton("no") || h.PressButton("missing") {
		t.Fatalf("only enabled buttons can be pressed")
	}
	if !h.SetText("robot") {
		t.Fatalf("enabled textbox should accept text")
	}

	var state clientstate.State
	h.UpdateClientState(&state)
	if state.LegacyUI == nil || len(state.LegacyUI.ButtonsPressed) != 1 || state.LegacyUI.Textboxes["name"] != "robot" {
		t.Fatalf("unexpected legacy ui %+v", state.LegacyUI)
	}
	h.EndCycle()

	h.ProcessMessage(&keyframe.Message{})
	if tracker.ModalDialogShown() {
		t.Fatalf("dialog removal should clear the modal flag")
	}
	state = clientstate.State{}
	h.UpdateClientState(&state)
	if state.LegacyUI != nil {
		t.Fatalf("no dialog and no input should leave legacy ui unset")
	}
}

func TestCanvasManagerElements(t *testing.T) {
	deps, _, _ := testDeps(t)
	tracker := progress.NewTracker()
	m := NewCanvasManager(tracker, deps)

	m.ProcessMessage(&keyframe.Message{UIUpdates: map[string]keyframe.UICanvasUpdate{
		CanvasTopRight: {Elements: []keyframe.UIElementUpdate{
			{CanvasProperties: &keyframe.UICanvasProperties{Padding: 4}},
			{Button: &keyframe.UIButton{UID: "go", Text: "Go", Enabled: true, Tooltip: "Start"}},
			{Label: &keyframe.UILabel{UID: "title", Text: "Title"}},
			{Toggle: &keyframe.UIToggle{UID: "mode", Enabled: false}},
		}},
		"nowhere": {Elements: []keyframe.UIElementUpdate{{Separator: &keyframe.UISeparator{UID: "sep"}}}},
	}})

	c, ok := m.Canvas(CanvasTopRight)
	if !ok || c.Properties.Padding != 4 || len(c.Elements) != 3 {
		t.Fatalf("unexpected canvas %+v", c)
	}
	if _, _, ok := m.Element("sep"); ok {
		t.Fatalf("elements for unknown canvases must be dropped")
	}

	m.ProcessMessage(&keyframe.Message{UIUpdates: map[string]keyframe.UICanvasUpdate{
		CanvasBottom: {Elements: []keyframe.UIElementUpdate{
			{Button: &keyframe.UIButton{UID: "go", Text: "Go!", Enabled: true}},
		}},
	}})
	el, canvasKey, _ := m.Element("go")
	if canvasKey != CanvasTopRight || el.(*keyframe.UIButton).Text != "Go!" {
		t.Fatalf("known uid should update in place, got %q on %s", el.(*keyframe.UIButton).Text, canvasKey)
	}

	if !m.Press("go") || m.Press("mode") || m.Press("title") {
		t.Fatalf("only enabled buttons and toggles are pressable")
	}
	var state clientstate.State
	m.UpdateClientState(&state)
	if state.UI == nil || len(state.UI.ButtonsPressed) != 1 || state.UI.ButtonsPressed[0] != "go" {
		t.Fatalf("unexpected ui state %+v", state.UI)
	}
	m.EndCycle()
	state = clientstate.State{}
	m.UpdateClientState(&state)
	if len(state.UI.ButtonsPressed) != 0 {
		t.Fatalf("end of cycle should clear presses")
	}

	m.ProcessMessage(&keyframe.Message{UIUpdates: map[string]keyframe.UICanvasUpdate{
		CanvasTopRight: {Clear: true},
	}})
	if c, _ := m.Canvas(CanvasTopRight); len(c.Elements) != 0 {
		t.Fatalf("clear should empty the canvas")
	}
	if _, _, ok := m.Element("go"); ok {
		t.Fatalf("cleared elements should be forgotten")
	}
}

func TestCanvasManagerTooltipAndStatus(t *testing.T) {
	deps, _, _ := testDeps(t)
	tracker := progress.NewTracker()
	m := NewCanvasManager(tracker, deps)
	m.ProcessMessage(&keyframe.Message{UIUpdates: map[string]keyframe.UICanvasUpdate{
		CanvasLeft: {Elements: []keyframe.UIElementUpdate{
			{Button: &keyframe.UIButton{UID: "help", Enabled: true, Tooltip: "Shows help"}},
		}},
	}})

	m.Hover("help")
	if m.Tooltip() != "Shows help" {
		t.Fatalf("expected tooltip, got %q", m.Tooltip())
	}
	if c, _ := m.Canvas(CanvasTooltip); len(c.Elements) != 1 || c.Properties.Padding != 12 {
		t.Fatalf("tooltip canvas should hold one label, got %+v", c)
	}
	m.Hover("")
	if c, _ := m.Canvas(CanvasTooltip); len(c.Elements) != 0 {
		t.Fatalf("tooltip should be hidden")
	}

	m.SetStatus("Server is busy!\nRetrying in 5s...")
	if _, _, ok := m.Element("help"); ok {
		t.Fatalf("status should clear all canvases")
	}
	el, canvasKey, ok := m.Element(StatusLabelUID)
	if !ok || canvasKey != StatusCanvas || el.(*keyframe.UILabel).Text != "Server is busy!\nRetrying in 5s..." {
		t.Fatalf("status label missing")
	}
	m.SetStatus("")
	if _, _, ok := m.Element(StatusLabelUID); ok {
		t.Fatalf("empty status should remove the label")
	}

	tracker.SetModalDialogShown(true)
	if m.Visible() {
		t.Fatalf("canvases are hidden behind a modal dialog")
	}
}

func TestLoadingEffectFadesAfterSceneChange(t *testing.T) {
	tracker := progress.NewTracker()
	e := NewLoadingEffect(tracker)
	defer e.Close()
	start := time.Unix(100, 0)

	l := &loadable{}
	tracker.LoadStarted(l)
	if enabled, _ := e.Fog(); enabled {
		t.Fatalf("loads outside a scene change keep the fog off")
	}
	tracker.LoadSucceeded(l)
	e.Update(start)

	e.ProcessMessage(&keyframe.Message{SceneChanged: true})
	tracker.LoadStarted(l)
	if enabled, density := e.Fog(); !enabled || density != 1 {
		t.Fatalf("scene change load should enable full fog, got %v %v", enabled, density)
	}
	tracker.LoadSucceeded(l)

	e.Update(start)
	e.Update(start.Add(FogFadeDuration / 2))
	_, density := e.Fog()
	if want := float32(1 - 0.125); math32.Abs(density-want) > 1e-4 {
		t.Fatalf("expected ease-in density %v, got %v", want, density)
	}
	e.Update(start.Add(FogFadeDuration))
	if enabled, density := e.Fog(); enabled || density != 0 {
		t.Fatalf("fog should be gone after the fade, got %v %v", enabled, density)
	}
}

func TestLoadingEffectCloseUnsubscribes(t *testing.T) {
	tracker := progress.NewTracker()
	e := NewLoadingEffect(tracker)
	e.Close()
	e.ProcessMessage(&keyframe.Message{SceneChanged: true})
	tracker.LoadStarted(&loadable{})
	if enabled, _ := e.Fog(); enabled {
		t.Fatalf("closed effect should not react to loads")
	}
}
