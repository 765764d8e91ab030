package consumers

import (
	"image/color"
	"time"

	"cogentcore.org/core/math32"

	"siro-hitl/client/internal/coords"
	"siro-hitl/client/internal/keyframe"
)

const (
	DefaultLinePoolSize   = 256
	DefaultCirclePoolSize = 64

	metricDebugDrawDropped = "debug_draw_dropped_total"
)

var defaultDebugColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// DebugCircle is a ring in engine space. Billboard circles face the camera
// and ignore Normal.
type DebugCircle struct {
	Center    math32.Vector3
	Radius    float32
	Normal    math32.Vector3
	Billboard bool
	Color     color.NRGBA
}

type DebugLine struct {
	From  math32.Vector3
	To    math32.Vector3
	Color color.NRGBA
}

type DebugDrawConfig struct {
	LinePoolSize   int
	CirclePoolSize int
}

// DebugDrawHandler converts the debug primitives of each message into engine
// space. Every message replaces the previous set. Primitives beyond the pool
// sizes are discarded.
type DebugDrawHandler struct {
	converter coords.Converter
	cfg       DebugDrawConfig
	deps      deps

	circles []DebugCircle
	lines   []DebugLine
	navmesh []math32.Vector3
}

func NewDebugDrawHandler(converter coords.Converter, cfg DebugDrawConfig, d Deps) *DebugDrawHandler {
	if converter == nil {
		converter = coords.Habitat{}
	}
	if cfg.LinePoolSize <= 0 {
		cfg.LinePoolSize = DefaultLinePoolSize
	}
	if cfg.CirclePoolSize <= 0 {
		cfg.CirclePoolSize = DefaultCirclePoolSize
	}
	return &DebugDrawHandler{
		converter: converter,
		cfg:       cfg,
		deps:      newDeps(d),
		circles:   make([]DebugCircle, 0, cfg.CirclePoolSize),
		lines:     make([]DebugLine, 0, cfg.LinePoolSize),
	}
}

func (h *DebugDrawHandler) ProcessMessage(msg *keyframe.Message) {
	h.circles = h.circles[:0]
	h.lines = h.lines[:0]

	for i, c := range msg.Circles {
		if len(h.circles) == h.cfg.CirclePoolSize {
			h.drop(len(msg.Circles) - i)
			break
		}
		if circle, ok := h.circle(c); ok {
			h.circles = append(h.circles, circle)
		}
	}
	for i, l := range msg.Lines {
		if len(h.lines) == h.cfg.LinePoolSize {
			h.drop(len(msg.Lines) - i)
			break
		}
		if line, ok := h.line(l); ok {
			h.lines = append(h.lines, line)
		}
	}

	if msg.NavmeshVertices != nil {
		h.setNavmesh(msg.NavmeshVertices)
	}
}

func (h *DebugDrawHandler) Update(time.Time) {}

func (h *DebugDrawHandler) drop(n int) {
	h.deps.metrics.Add(metricDebugDrawDropped, uint64(n))
}

func (h *DebugDrawHandler) circle(c keyframe.Circle) (DebugCircle, bool) {
	center, err := h.converter.Vector(c.T)
	if err != nil {
		h.deps.logger.Printf("[debugdraw] circle center: %v", err)
		return DebugCircle{}, false
	}
	normal := math32.Vec3(0, 1, 0)
	if c.N != nil {
		if normal, err = h.converter.Vector(c.N); err != nil {
			h.deps.logger.Printf("[debugdraw] circle normal: %v", err)
			return DebugCircle{}, false
		}
	}
	col, ok := byteColor(c.C, defaultDebugColor)
	if !ok {
		h.deps.logger.Printf("[debugdraw] circle color with %d components", len(c.C))
	}
	return DebugCircle{
		Center:    center,
		Radius:    c.R,
		Normal:    normal,
		Billboard: c.Billboard(),
		Color:     col,
	}, true
}

func (h *DebugDrawHandler) line(l keyframe.Line) (DebugLine, bool) {
	from, err := h.converter.Vector(l.A)
	if err != nil {
		h.deps.logger.Printf("[debugdraw] line start: %v", err)
		return DebugLine{}, false
	}
	to, err := h.converter.Vector(l.B)
	if err != nil {
		h.deps.logger.Printf("[debugdraw] line end: %v", err)
		return DebugLine{}, false
	}
	col, ok := byteColor(l.C, defaultDebugColor)
	if !ok {
		h.deps.logger.Printf("[debugdraw] line color with %d components", len(l.C))
	}
	return DebugLine{From: from, To: to, Color: col}, true
}

// setNavmesh keeps the latest navmesh triangle soup. Trailing components
// that do not form a full vertex are ignored.
func (h *DebugDrawHandler) setNavmesh(flat []float32) {
	n := len(flat) / 3
	h.navmesh = make([]math32.Vector3, 0, n)
	for i := 0; i < n; i++ {
		v, err := h.converter.Vector(flat[i*3 : i*3+3])
		if err != nil {
			continue
		}
		h.navmesh = append(h.navmesh, v)
	}
}

func (h *DebugDrawHandler) Circles() []DebugCircle { return h.circles }

func (h *DebugDrawHandler) Lines() []DebugLine { return h.lines }

func (h *DebugDrawHandler) Navmesh() []math32.Vector3 { return h.navmesh }
