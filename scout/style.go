package scout

import (
	"fmt"
	"html"
	"image/color"
	"strings"
)

// OverlayStyle is how one kind of overlay is drawn.
type OverlayStyle struct {
	Color       string  `json:"color"` // hex, used for stroke and fill
	FillOpacity float64 `json:"fillOpacity"`
	Weight      float64 `json:"weight"` // stroke width in pixels
	Radius      float64 `json:"radius,omitempty"` // markers only, meters
}

// StylePolicy maps overlays to their presentation.
type StylePolicy struct {
	Healthy OverlayStyle
	High    OverlayStyle
	Low     OverlayStyle
}

// HealthyPopup is the popup text of the healthy region.
const HealthyPopup = "Healthy Region"

// DefaultStylePolicy returns the stock presentation: a green healthy region,
// large red high-confidence markers and smaller yellow low-confidence ones.
func DefaultStylePolicy() StylePolicy {
	return StylePolicy{
		Healthy: OverlayStyle{Color: "#008000", FillOpacity: 0.5, Weight: 2},
		High:    OverlayStyle{Color: "#FF0000", FillOpacity: 0.8, Weight: 2, Radius: 50},
		Low:     OverlayStyle{Color: "#FFFF00", FillOpacity: 0.6, Weight: 2, Radius: 30},
	}
}

// NewStylePolicy applies the configured overrides to the default policy.
func NewStylePolicy(cfg StyleConfig) StylePolicy {
	p := DefaultStylePolicy()
	if cfg.HealthyColor != "" {
		p.Healthy.Color = cfg.HealthyColor
	}
	if cfg.HighColor != "" {
		p.High.Color = cfg.HighColor
	}
	if cfg.LowColor != "" {
		p.Low.Color = cfg.LowColor
	}
	if cfg.HighRadius > 0 {
		p.High.Radius = cfg.HighRadius
	}
	if cfg.LowRadius > 0 {
		p.Low.Radius = cfg.LowRadius
	}
	return p
}

// ForTier returns the marker style of a tier.
func (p StylePolicy) ForTier(t Tier) OverlayStyle {
	if t == TierHigh {
		return p.High
	}
	return p.Low
}

// TreatmentGuide maps lower-cased labels to treatment advice. The "default"
// entry answers labels with no entry of their own.
type TreatmentGuide map[string]string

// Lookup returns the advice for label, or "" when the guide has neither an
// entry nor a default.
func (g TreatmentGuide) Lookup(label string) string {
	if len(g) == 0 {
		return ""
	}
	if t, ok := g[strings.ToLower(label)]; ok {
		return t
	}
	return g["default"]
}

// MarkerPopup returns the HTML popup of a detection marker.
func MarkerPopup(m DetectionMarker, guide TreatmentGuide) string {
	popup := fmt.Sprintf("<b>%s</b><br>Confidence: %.2f%%", html.EscapeString(m.Label), m.Confidence*100)
	if t := guide.Lookup(m.Label); t != "" {
		popup += "<br><b>Treatment:</b> " + html.EscapeString(t)
	}
	return popup
}

// parseHexColor parses "#RRGGBB" (the # is optional).
func parseHexColor(hex string) (color.RGBA, bool) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return color.RGBA{}, false
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{r, g, b, 255}, true
}

// fillColor returns the premultiplied fill color of a style. Unparseable
// colors fall back to red.
func (s OverlayStyle) fillColor() color.RGBA {
	c, ok := parseHexColor(s.Color)
	if !ok {
		c = color.RGBA{255, 0, 0, 255}
	}
	return nrgbaToRGBA(color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(s.FillOpacity*255 + 0.5)})
}

// strokeColor returns the opaque stroke color of a style.
func (s OverlayStyle) strokeColor() color.RGBA {
	c, ok := parseHexColor(s.Color)
	if !ok {
		return color.RGBA{255, 0, 0, 255}
	}
	return c
}

// nrgbaToRGBA premultiplies alpha; canvas expects premultiplied RGBA.
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}
