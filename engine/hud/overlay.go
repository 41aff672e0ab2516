package hud

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/assets/loaders"
	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/geometry"
	"github.com/spaghettifunk/shaderpixel/engine/renderer"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
	"github.com/spaghettifunk/shaderpixel/engine/shader"
)

// Margin is the distance in pixels of the text from the top left corner.
const Margin = 8

type retiredText struct {
	geometry *geometry.Geometry
	// images that drew the geometry and were not acquired again since
	pending map[uint32]bool
}

// textBuffer keeps the geometry of the current text. Replaced geometries
// are released once every image that drew them came around again, which
// means the frame engine waited for their fences.
type textBuffer struct {
	allocator metadata.BufferAllocator
	font      *loaders.Font
	scale     float32

	text    string
	current *geometry.Geometry
	usedBy  map[uint32]bool
	retired []retiredText
}

func newTextBuffer(allocator metadata.BufferAllocator, font *loaders.Font, scale float32) *textBuffer {
	return &textBuffer{allocator: allocator, font: font, scale: scale, usedBy: map[uint32]bool{}}
}

// set uploads lines unless they are what is already uploaded.
func (tb *textBuffer) set(lines []string) error {
	text := strings.Join(lines, "\n")
	if text == tb.text && (tb.current != nil || text == "") {
		return nil
	}
	mesh := Layout(tb.font, lines, mgl32.Vec2{Margin, Margin}, tb.scale)
	var next *geometry.Geometry
	if len(mesh.Indices) > 0 {
		data, extents := geometry.Pack(mesh, metadata.VertexLayoutPosUV, mgl32.Vec3{1, 1, 1})
		vb, err := tb.allocator.CreateVertexBuffer(data)
		if err != nil {
			return fmt.Errorf("hud vertices: %w", err)
		}
		ib, err := tb.allocator.CreateIndexBuffer(mesh.Indices)
		if err != nil {
			vb.Destroy()
			return fmt.Errorf("hud indices: %w", err)
		}
		next = &geometry.Geometry{
			Name:        mesh.Name,
			Layout:      metadata.VertexLayoutPosUV,
			Scale:       mgl32.Vec3{1, 1, 1},
			Vertices:    vb,
			Indices:     ib,
			VertexCount: uint32(len(mesh.Vertices)),
			IndexCount:  uint32(len(mesh.Indices)),
			Extents:     extents,
		}
	}
	tb.retire()
	tb.text = text
	tb.current = next
	return nil
}

func (tb *textBuffer) retire() {
	if tb.current == nil {
		return
	}
	if len(tb.usedBy) == 0 {
		destroyGeometry(tb.current)
	} else {
		tb.retired = append(tb.retired, retiredText{geometry: tb.current, pending: tb.usedBy})
	}
	tb.current = nil
	tb.usedBy = map[uint32]bool{}
}

// acquired marks image as safe to reuse and releases what no frame in
// flight reads anymore.
func (tb *textBuffer) acquired(image uint32) {
	kept := tb.retired[:0]
	for _, r := range tb.retired {
		delete(r.pending, image)
		if len(r.pending) == 0 {
			destroyGeometry(r.geometry)
			continue
		}
		kept = append(kept, r)
	}
	tb.retired = kept
}

func (tb *textBuffer) drawn(image uint32) {
	tb.usedBy[image] = true
}

// idle releases every retired geometry. Only call with the device idle.
func (tb *textBuffer) idle() {
	for _, r := range tb.retired {
		destroyGeometry(r.geometry)
	}
	tb.retired = nil
	// the new swapchain may number its images differently
	tb.usedBy = map[uint32]bool{}
}

func (tb *textBuffer) destroy() {
	tb.idle()
	if tb.current != nil {
		destroyGeometry(tb.current)
		tb.current = nil
	}
	tb.text = ""
}

func destroyGeometry(g *geometry.Geometry) {
	g.Vertices.Destroy()
	g.Indices.Destroy()
}

// Overlay draws the panel text in the UI subpass.
type Overlay struct {
	pipeline *renderer.Pipeline
	text     *textBuffer
}

// NewOverlay registers the text pipeline with engine. The atlas is the
// first page of font, uploaded without vertical flip.
func NewOverlay(engine *renderer.FrameEngine, allocator metadata.BufferAllocator, font *loaders.Font, atlas metadata.Texture, vert, frag *shader.Handle) (*Overlay, error) {
	p, err := engine.AddPipeline(renderer.PipelineConfig{
		Name:      "hud",
		Vertex:    vert,
		Fragment:  frag,
		Layout:    metadata.VertexLayoutPosUV,
		Texture:   atlas,
		Subpass:   metadata.SubpassUI,
		CullMode:  metadata.FaceCullModeNone,
		DepthTest: false,
		Enabled:   true,
		Art:       renderer.NoArt,
	})
	if err != nil {
		return nil, fmt.Errorf("hud pipeline: %w", err)
	}
	return &Overlay{pipeline: p, text: newTextBuffer(allocator, font, 1)}, nil
}

// SetText replaces the drawn lines. Unchanged text uploads nothing.
func (o *Overlay) SetText(lines []string) error {
	return o.text.set(lines)
}

// Draw is the renderer.UIFunc of the overlay.
func (o *Overlay) Draw(frame renderer.UIFrame) (metadata.CommandBuffer, error) {
	o.text.acquired(frame.Image)

	cb := frame.Commands
	if err := cb.Begin(); err != nil {
		return nil, err
	}
	if g := o.text.current; g != nil && o.pipeline.Ready() {
		u := renderer.FrameUniforms{View: mgl32.Ident4(), Proj: Projection(frame.Extent)}
		if err := o.pipeline.WriteUniforms(int(frame.Image), u, nil); err != nil {
			core.LogWarn("%s", err)
		} else if o.pipeline.DrawWith(cb, int(frame.Image), g) {
			o.text.drawn(frame.Image)
		}
	}
	if err := cb.End(); err != nil {
		return nil, err
	}
	return cb, nil
}

// Recreated drops the retired text geometries after a swapchain
// recreation, which waits for the device.
func (o *Overlay) Recreated() {
	o.text.idle()
}

// Destroy releases the text buffers. The pipeline belongs to the engine.
func (o *Overlay) Destroy() {
	o.text.destroy()
}
