package scout

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ErrNothingToRender is returned when a render pass has no overlays.
var ErrNothingToRender = errors.New("no overlays to render")

const (
	// pxToMM converts a CSS pixel stroke weight to canvas millimeters.
	pxToMM = 25.4 / 96

	defaultPadding       = 25.0  // meters
	defaultMinExtent     = 100.0 // meters
	defaultMaxCanvasSize = 300.0 // millimeters
)

// MapRenderer draws a render pass onto a Web Mercator map surface.
type MapRenderer struct {
	Styles        StylePolicy
	Padding       float64           // meters around the overlays
	MinExtent     float64           // minimum width/height in meters, so a lone marker still has context
	MaxCanvasSize float64           // longest canvas side in millimeters
	Resolution    canvas.Resolution // PNG resolution
	Legend        bool              // draw a text legend on PNG output
}

// NewMapRenderer creates a renderer with default settings
func NewMapRenderer(styles StylePolicy) *MapRenderer {
	return &MapRenderer{
		Styles:        styles,
		Padding:       defaultPadding,
		MinExtent:     defaultMinExtent,
		MaxCanvasSize: defaultMaxCanvasSize,
		Resolution:    canvas.DPMM(4),
		Legend:        true,
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// mapLayout maps Mercator meters to canvas millimeters.
type mapLayout struct {
	minX, minY    float64
	scale         float64 // canvas mm per Mercator meter
	width, height float64 // canvas mm
}

// maxMercatorLat is the latitude at which Web Mercator becomes square.
const maxMercatorLat = 85.05112878

func clampLat(lat float64) float64 {
	return math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
}

// toMercator projects p with its latitude clamped to the Mercator limit.
func toMercator(p orb.Point) orb.Point {
	return project.WGS84.ToMercator(orb.Point{p[0], clampLat(p[1])})
}

func (l mapLayout) toCanvas(p orb.Point) (float64, float64) {
	m := toMercator(p)
	return (m[0] - l.minX) * l.scale, (m[1] - l.minY) * l.scale
}

// mercatorRadius converts a ground radius at lat to Mercator meters.
func mercatorRadius(meters, lat float64) float64 {
	return meters / math.Cos(clampLat(lat)*math.Pi/180)
}

func (r *MapRenderer) layout(result RenderResult) (mapLayout, error) {
	if len(result.Overlays) == 0 {
		return mapLayout{}, ErrNothingToRender
	}

	bound := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	extend := func(p orb.Point, radius float64) {
		m := toMercator(p)
		bound.Min[0] = math.Min(bound.Min[0], m[0]-radius)
		bound.Min[1] = math.Min(bound.Min[1], m[1]-radius)
		bound.Max[0] = math.Max(bound.Max[0], m[0]+radius)
		bound.Max[1] = math.Max(bound.Max[1], m[1]+radius)
	}

	for _, o := range result.Overlays {
		switch ov := o.(type) {
		case RegionPolygon:
			for _, v := range ov.Vertices {
				extend(v, 0)
			}
		case DetectionMarker:
			extend(ov.Center, mercatorRadius(r.Styles.ForTier(ov.Tier).Radius, ov.Center[1]))
		}
	}
	if bound.Min[0] > bound.Max[0] {
		return mapLayout{}, ErrNothingToRender
	}

	// Grow small extents around their center
	center := bound.Center()
	half := r.MinExtent / 2
	if bound.Max[0]-bound.Min[0] < r.MinExtent {
		bound.Min[0], bound.Max[0] = center[0]-half, center[0]+half
	}
	if bound.Max[1]-bound.Min[1] < r.MinExtent {
		bound.Min[1], bound.Max[1] = center[1]-half, center[1]+half
	}

	bound = bound.Pad(r.Padding)
	w := bound.Max[0] - bound.Min[0]
	h := bound.Max[1] - bound.Min[1]

	scale := 1.0
	if longest := math.Max(w, h); longest*scale > r.MaxCanvasSize && r.MaxCanvasSize > 0 {
		scale = r.MaxCanvasSize / longest
	}

	return mapLayout{
		minX:   bound.Min[0],
		minY:   bound.Min[1],
		scale:  scale,
		width:  w * scale,
		height: h * scale,
	}, nil
}

// RenderToSVG writes the overlays as an SVG to the provided writer
func (r *MapRenderer) RenderToSVG(w io.Writer, result RenderResult) error {
	l, err := r.layout(result)
	if err != nil {
		return err
	}

	svgRenderer := svg.New(w, l.width, l.height, nil)
	r.renderToCanvas(svgRenderer, l, result)

	return svgRenderer.Close()
}

// RenderToPNG writes the overlays as a PNG to the provided writer
func (r *MapRenderer) RenderToPNG(w io.Writer, result RenderResult) error {
	l, err := r.layout(result)
	if err != nil {
		return err
	}

	rast := rasterizer.New(l.width, l.height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, l, result)

	if r.Legend {
		drawLegend(rast, r.Styles, result)
	}

	if err := png.Encode(w, rast); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// renderToCanvas draws the background, the region, then the markers
func (r *MapRenderer) renderToCanvas(renderer canvasRenderer, l mapLayout, result RenderResult) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(l.width, l.height), bgStyle, canvas.Identity)

	if region, ok := result.Region(); ok {
		r.renderRegion(renderer, l, region)
	}

	for _, m := range result.Markers() {
		s := r.Styles.ForTier(m.Tier)

		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: s.fillColor()}
		style.Stroke = canvas.Paint{Color: s.strokeColor()}
		style.StrokeWidth = s.Weight * pxToMM

		cx, cy := l.toCanvas(m.Center)
		radius := mercatorRadius(s.Radius, m.Center[1]) * l.scale
		renderer.RenderPath(canvas.Circle(radius).Translate(cx, cy), style, canvas.Identity)
	}
}

func (r *MapRenderer) renderRegion(renderer canvasRenderer, l mapLayout, region RegionPolygon) {
	s := r.Styles.Healthy
	if len(region.Vertices) == 0 {
		return
	}

	style := canvas.DefaultStyle
	style.Stroke = canvas.Paint{Color: s.strokeColor()}
	style.StrokeWidth = s.Weight * pxToMM

	// A single vertex has no outline to stroke
	if len(region.Vertices) == 1 {
		style.Fill = canvas.Paint{Color: s.strokeColor()}
		cx, cy := l.toCanvas(region.Vertices[0])
		renderer.RenderPath(canvas.Circle(style.StrokeWidth).Translate(cx, cy), style, canvas.Identity)
		return
	}

	path := &canvas.Path{}
	for i, v := range region.Vertices {
		cx, cy := l.toCanvas(v)
		if i == 0 {
			path.MoveTo(cx, cy)
		} else {
			path.LineTo(cx, cy)
		}
	}

	if len(region.Vertices) == 2 {
		style.Fill = canvas.Paint{Color: canvas.Transparent}
	} else {
		style.Fill = canvas.Paint{Color: s.fillColor()}
		path.Close()
	}
	renderer.RenderPath(path, style, canvas.Identity)
}

// drawLegend writes a small key in the top-left corner of img
func drawLegend(img draw.Image, styles StylePolicy, result RenderResult) {
	var high, low int
	for _, m := range result.Markers() {
		if m.Tier == TierHigh {
			high++
		} else {
			low++
		}
	}

	type entry struct {
		text string
		c    color.RGBA
	}
	var entries []entry
	if _, ok := result.Region(); ok {
		entries = append(entries, entry{"healthy region", styles.Healthy.strokeColor()})
	}
	entries = append(entries,
		entry{fmt.Sprintf("high confidence (%d)", high), styles.High.strokeColor()},
		entry{fmt.Sprintf("low confidence (%d)", low), styles.Low.strokeColor()},
	)

	const lineHeight = 16
	box := image.Rect(0, 0, 170, 8+lineHeight*len(entries)).Add(img.Bounds().Min)
	draw.Draw(img, box, image.NewUniform(color.RGBA{255, 255, 255, 230}), image.Point{}, draw.Over)

	for i, e := range entries {
		y := box.Min.Y + 4 + i*lineHeight
		swatch := image.Rect(box.Min.X+6, y+2, box.Min.X+16, y+12)
		draw.Draw(img, swatch, image.NewUniform(e.c), image.Point{}, draw.Src)
		drawText(img, box.Min.X+22, y+11, e.text, color.RGBA{0, 0, 0, 255})
	}
}

func drawText(img draw.Image, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
