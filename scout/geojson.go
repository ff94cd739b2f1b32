package scout

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// GeometryType represents the GeoJSON geometry type
type GeometryType string

const (
	GeometryPoint      GeometryType = "Point"
	GeometryLineString GeometryType = "LineString"
	GeometryPolygon    GeometryType = "Polygon"
)

// Geometry represents a GeoJSON geometry object
type Geometry struct {
	Type        GeometryType    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature represents a GeoJSON feature with geometry and properties
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   *Geometry              `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// FeatureCollection represents a GeoJSON FeatureCollection. Recenter is a
// foreign member carrying the view directive of the render pass.
type FeatureCollection struct {
	Type     string     `json:"type"`
	BBox     []float64  `json:"bbox,omitempty"`
	Features []*Feature `json:"features"`
	Recenter *LatLon    `json:"recenter,omitempty"`
}

// NewFeatureCollection creates a new empty FeatureCollection
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]*Feature, 0),
	}
}

// AddFeature appends a feature to the collection
func (fc *FeatureCollection) AddFeature(f *Feature) {
	fc.Features = append(fc.Features, f)
}

// NewFeature creates a Feature with the given geometry and properties
func NewFeature(geom *Geometry, props map[string]interface{}) *Feature {
	if props == nil {
		props = make(map[string]interface{})
	}
	return &Feature{
		Type:       "Feature",
		Geometry:   geom,
		Properties: props,
	}
}

// PointGeometry converts a point to a GeoJSON Point geometry
func PointGeometry(p orb.Point) *Geometry {
	coordsJSON, _ := json.Marshal([2]float64{p[0], p[1]})
	return &Geometry{
		Type:        GeometryPoint,
		Coordinates: coordsJSON,
	}
}

// LineStringGeometry converts points to a GeoJSON LineString geometry
func LineStringGeometry(points []orb.Point) *Geometry {
	coords := make([][2]float64, len(points))
	for i, p := range points {
		coords[i] = [2]float64{p[0], p[1]}
	}

	coordsJSON, _ := json.Marshal(coords)
	return &Geometry{
		Type:        GeometryLineString,
		Coordinates: coordsJSON,
	}
}

// RingToPolygon converts an outer ring to a GeoJSON Polygon geometry,
// closing the ring if it is open.
func RingToPolygon(ring []orb.Point) *Geometry {
	coords := closeRing(ring)

	rings := make([][][2]float64, 1)
	rings[0] = make([][2]float64, len(coords))
	for i, p := range coords {
		rings[0][i] = [2]float64{p[0], p[1]}
	}

	coordsJSON, _ := json.Marshal(rings)
	return &Geometry{
		Type:        GeometryPolygon,
		Coordinates: coordsJSON,
	}
}

// RegionGeometry picks the geometry for a region outline: a Polygon for
// three or more vertices, otherwise the LineString or Point it degenerated to.
func RegionGeometry(vertices []orb.Point) *Geometry {
	switch len(vertices) {
	case 0:
		return nil
	case 1:
		return PointGeometry(vertices[0])
	case 2:
		return LineStringGeometry(vertices)
	default:
		return RingToPolygon(vertices)
	}
}

func closeRing(ring []orb.Point) orb.Ring {
	out := make(orb.Ring, len(ring), len(ring)+1)
	copy(out, ring)
	if len(out) > 0 && !out[0].Equal(out[len(out)-1]) {
		out = append(out, out[0])
	}
	return out
}

// RegionArea returns the geodesic area of a region outline in square meters.
// Degenerate outlines have no area.
func RegionArea(vertices []orb.Point) float64 {
	if len(vertices) < 3 {
		return 0
	}
	return math.Abs(geo.Area(orb.Polygon{closeRing(vertices)}))
}

// ToFeatureCollection converts a render pass into GeoJSON. Each feature
// carries the style and popup a map client needs to draw it.
func ToFeatureCollection(result RenderResult, policy StylePolicy, guide TreatmentGuide) *FeatureCollection {
	fc := NewFeatureCollection()
	fc.Recenter = result.Recenter

	var all orb.MultiPoint
	for _, o := range result.Overlays {
		switch ov := o.(type) {
		case RegionPolygon:
			geom := RegionGeometry(ov.Vertices)
			if geom == nil {
				continue
			}
			s := policy.Healthy
			fc.AddFeature(NewFeature(geom, map[string]interface{}{
				"kind":         string(KindRegion),
				"style":        string(ov.Style),
				"vertexCount":  len(ov.Vertices),
				"areaSqMeters": RegionArea(ov.Vertices),
				"color":        s.Color,
				"fillOpacity":  s.FillOpacity,
				"weight":       s.Weight,
				"popup":        HealthyPopup,
			}))
			all = append(all, ov.Vertices...)

		case DetectionMarker:
			s := policy.ForTier(ov.Tier)
			fc.AddFeature(NewFeature(PointGeometry(ov.Center), map[string]interface{}{
				"kind":        string(KindDetection),
				"tier":        string(ov.Tier),
				"label":       ov.Label,
				"confidence":  ov.Confidence,
				"radius":      s.Radius,
				"color":       s.Color,
				"fillOpacity": s.FillOpacity,
				"weight":      s.Weight,
				"popup":       MarkerPopup(ov, guide),
			}))
			all = append(all, ov.Center)
		}
	}

	if len(all) > 0 {
		b := all.Bound()
		fc.BBox = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}
	return fc
}
