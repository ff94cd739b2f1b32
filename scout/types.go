package scout

import (
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Observation is one classified capture: where it was taken, what the model
// predicted and how sure it was.
type Observation struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Label      string  `json:"prediction"`
	Confidence float64 `json:"confidence"` // [0, 1]
}

// Point returns the observation as an orb.Point with x = longitude, y = latitude.
func (o Observation) Point() orb.Point {
	return orb.Point{o.Longitude, o.Latitude}
}

// Healthy reports whether the label is "healthy", ignoring case.
func (o Observation) Healthy() bool {
	return strings.ToLower(o.Label) == HealthyLabel
}

// Tier buckets a detection by model confidence.
type Tier string

const (
	TierHigh Tier = "high"
	TierLow  Tier = "low"
)

// RegionStyle names the presentation of a region polygon.
type RegionStyle string

const StyleHealthy RegionStyle = "healthy"

// OverlayKind distinguishes the overlay variants.
type OverlayKind string

const (
	KindRegion    OverlayKind = "region"
	KindDetection OverlayKind = "detection"
)

// Overlay is a map overlay produced by a render pass. It is either a
// RegionPolygon or a DetectionMarker.
type Overlay interface {
	Kind() OverlayKind
}

// RegionPolygon is the coverage area of the healthy observations.
// Vertices are counter-clockwise and the ring is not closed. A degenerate
// hull may carry fewer than three vertices.
type RegionPolygon struct {
	Vertices []orb.Point
	Style    RegionStyle
}

func (RegionPolygon) Kind() OverlayKind { return KindRegion }

// DetectionMarker marks a single diseased observation.
type DetectionMarker struct {
	Center     orb.Point
	Tier       Tier
	Label      string
	Confidence float64
}

func (DetectionMarker) Kind() OverlayKind { return KindDetection }

// LatLon is a geographic position in degrees.
type LatLon struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lon float64 `yaml:"lon" json:"lon"`
}

// RenderResult is the output of one render pass. Recenter is nil when there
// were no observations.
type RenderResult struct {
	Overlays []Overlay
	Recenter *LatLon
}

// Region returns the region polygon of the pass, if any.
func (r RenderResult) Region() (RegionPolygon, bool) {
	for _, o := range r.Overlays {
		if rp, ok := o.(RegionPolygon); ok {
			return rp, true
		}
	}
	return RegionPolygon{}, false
}

// Markers returns the detection markers in emission order.
func (r RenderResult) Markers() []DetectionMarker {
	var markers []DetectionMarker
	for _, o := range r.Overlays {
		if m, ok := o.(DetectionMarker); ok {
			markers = append(markers, m)
		}
	}
	return markers
}

// MapView is the viewport a map surface should show.
type MapView struct {
	Center LatLon `json:"center"`
	Zoom   int    `json:"zoom"`
}

// Config represents the full configuration file
type Config struct {
	Backend    BackendConfig     `yaml:"backend" json:"backend"`
	Capture    CaptureConfig     `yaml:"capture" json:"capture"`
	MQTT       MQTTConfig        `yaml:"mqtt" json:"mqtt"`
	Map        MapConfig         `yaml:"map" json:"map"`
	Style      StyleConfig       `yaml:"style" json:"style"`
	Treatments map[string]string `yaml:"treatments,omitempty" json:"treatments,omitempty"` // lower-cased label -> advice, "default" as fallback
}

// BackendConfig locates the classification backend
type BackendConfig struct {
	BaseURL    string        `yaml:"baseUrl" json:"baseUrl"`
	Timeout    time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries int           `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`
}

// CaptureConfig controls the periodic capture loop
type CaptureConfig struct {
	Interval    time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	FrameDir    string        `yaml:"frameDir,omitempty" json:"frameDir,omitempty"`
	MaxWidth    int           `yaml:"maxWidth,omitempty" json:"maxWidth,omitempty"` // frames wider than this are downscaled; 0 disables
	JPEGQuality int           `yaml:"jpegQuality,omitempty" json:"jpegQuality,omitempty"`
	Location    LatLon        `yaml:"location" json:"location"` // fixed position reported with every frame
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	ResultsTopic  string `yaml:"resultsTopic,omitempty" json:"resultsTopic,omitempty"`
}

// MapConfig holds the viewport defaults and the map surface geometry
type MapConfig struct {
	Center      LatLon  `yaml:"center" json:"center"`
	Zoom        int     `yaml:"zoom,omitempty" json:"zoom,omitempty"`
	FocusZoom   int     `yaml:"focusZoom,omitempty" json:"focusZoom,omitempty"`
	ShowRegions *bool   `yaml:"showRegions,omitempty" json:"showRegions,omitempty"`
	Padding     float64 `yaml:"padding,omitempty" json:"padding,omitempty"` // meters around the overlays
	Resolution  float64 `yaml:"resolution,omitempty" json:"resolution,omitempty"` // PNG DPI
}

// StyleConfig overrides the overlay presentation
type StyleConfig struct {
	HealthyColor string  `yaml:"healthyColor,omitempty" json:"healthyColor,omitempty"`
	HighColor    string  `yaml:"highColor,omitempty" json:"highColor,omitempty"`
	LowColor     string  `yaml:"lowColor,omitempty" json:"lowColor,omitempty"`
	HighRadius   float64 `yaml:"highRadius,omitempty" json:"highRadius,omitempty"` // meters
	LowRadius    float64 `yaml:"lowRadius,omitempty" json:"lowRadius,omitempty"`   // meters
}
