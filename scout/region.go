package scout

import "github.com/paulmach/orb"

const (
	// HealthyLabel is the lower-cased label of observations that form the
	// healthy coverage region.
	HealthyLabel = "healthy"

	// RegionEpsilon is the half-width, in degrees, of the shapes synthesized
	// for one or two healthy points.
	RegionEpsilon = 0.0001

	// HighConfidenceThreshold is the lowest confidence classed as TierHigh.
	HighConfidenceThreshold = 0.95
)

// Partition splits observations into healthy and diseased sets, keeping
// input order. Every observation lands in exactly one set.
func Partition(observations []Observation) (healthy, diseased []Observation) {
	for _, o := range observations {
		if o.Healthy() {
			healthy = append(healthy, o)
		} else {
			diseased = append(diseased, o)
		}
	}
	return healthy, diseased
}

// ClassifyTier maps a confidence to its marker tier.
func ClassifyTier(confidence float64) Tier {
	if confidence >= HighConfidenceThreshold {
		return TierHigh
	}
	return TierLow
}

// SynthesizeRegion builds the healthy region outline for points.
//
// No points yield nil. A single point becomes a square of half-width
// RegionEpsilon around it; two points become a quad along their diagonal.
// Three or more points yield their convex hull.
func SynthesizeRegion(points []orb.Point) []orb.Point {
	const e = RegionEpsilon

	switch len(points) {
	case 0:
		return nil
	case 1:
		p := points[0]
		return []orb.Point{
			{p[0] - e, p[1] - e},
			{p[0] + e, p[1] - e},
			{p[0] + e, p[1] + e},
			{p[0] - e, p[1] + e},
		}
	case 2:
		p1, p2 := points[0], points[1]
		return []orb.Point{
			{p1[0] - e, p1[1] - e},
			{p1[0] + e, p1[1] + e},
			{p2[0] + e, p2[1] + e},
			{p2[0] - e, p2[1] - e},
		}
	default:
		return ComputeHull(points)
	}
}

// RecenterOn returns the mean position of observations. ok is false for an
// empty set.
func RecenterOn(observations []Observation) (LatLon, bool) {
	if len(observations) == 0 {
		return LatLon{}, false
	}

	var lat, lon float64
	for _, o := range observations {
		lat += o.Latitude
		lon += o.Longitude
	}
	n := float64(len(observations))
	return LatLon{Lat: lat / n, Lon: lon / n}, true
}

// Render turns an observation snapshot into overlays: at most one healthy
// RegionPolygon first, then one DetectionMarker per diseased observation in
// input order. It has no side effects and does not validate its input.
func Render(observations []Observation) RenderResult {
	healthy, diseased := Partition(observations)

	overlays := make([]Overlay, 0, len(diseased)+1)

	if len(healthy) > 0 {
		points := make([]orb.Point, len(healthy))
		for i, o := range healthy {
			points[i] = o.Point()
		}
		overlays = append(overlays, RegionPolygon{
			Vertices: SynthesizeRegion(points),
			Style:    StyleHealthy,
		})
	}

	for _, o := range diseased {
		overlays = append(overlays, DetectionMarker{
			Center:     o.Point(),
			Tier:       ClassifyTier(o.Confidence),
			Label:      o.Label,
			Confidence: o.Confidence,
		})
	}

	result := RenderResult{Overlays: overlays}
	if center, ok := RecenterOn(observations); ok {
		result.Recenter = &center
	}
	return result
}
