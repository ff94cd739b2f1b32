package scout

import (
	"log"
	"sync"

	"github.com/paulmach/orb"
)

const (
	DefaultZoom      = 6
	DefaultFocusZoom = 15
)

// DefaultCenter is the initial map center before any observations arrive.
var DefaultCenter = LatLon{Lat: 15.3173, Lon: 75.7139}

// RenderListener is called after each render pass with the new result and view.
type RenderListener func(result RenderResult, view MapView)

// Session owns the observation snapshot, the overlays rendered from it and
// the map view. It is safe for concurrent use.
type Session struct {
	replaceMu      sync.Mutex // serializes render, store and notify
	mu             sync.RWMutex
	observations   []Observation
	insights       string
	result         RenderResult
	view           MapView
	focusZoom      int
	regionsVisible bool
	listeners      []RenderListener
}

// NewSession creates a session showing the configured default view
func NewSession(cfg MapConfig) *Session {
	s := &Session{
		view:           MapView{Center: DefaultCenter, Zoom: DefaultZoom},
		focusZoom:      DefaultFocusZoom,
		regionsVisible: true,
	}
	if cfg.Center != (LatLon{}) {
		s.view.Center = cfg.Center
	}
	if cfg.Zoom > 0 {
		s.view.Zoom = cfg.Zoom
	}
	if cfg.FocusZoom > 0 {
		s.focusZoom = cfg.FocusZoom
	}
	if cfg.ShowRegions != nil {
		s.regionsVisible = *cfg.ShowRegions
	}
	return s
}

// OnRender registers a listener for render passes
func (s *Session) OnRender(fn RenderListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ReplaceObservations discards the current snapshot, renders the new one and
// recenters the view on it. An empty batch clears the overlays but keeps the
// current view. Concurrent calls run one at a time, so listeners see passes
// in the order they were stored. Listeners must not call ReplaceObservations.
func (s *Session) ReplaceObservations(observations []Observation, insights string) RenderResult {
	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()

	snapshot := make([]Observation, len(observations))
	copy(snapshot, observations)

	result := Render(snapshot)
	recordRender(snapshot, result)

	s.mu.Lock()
	s.observations = snapshot
	s.insights = insights
	s.result = result
	if result.Recenter != nil {
		s.view = MapView{Center: *result.Recenter, Zoom: s.focusZoom}
	}
	view := s.view
	listeners := make([]RenderListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	log.Printf("Rendered %d observations into %d overlays (view %.6f, %.6f zoom %d)",
		len(snapshot), len(result.Overlays), view.Center.Lat, view.Center.Lon, view.Zoom)

	for _, fn := range listeners {
		fn(copyResult(result), view)
	}
	return copyResult(result)
}

// Observations returns a copy of the current snapshot
func (s *Session) Observations() []Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Observation, len(s.observations))
	copy(out, s.observations)
	return out
}

// Insights returns the insights text of the current batch
func (s *Session) Insights() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.insights
}

// Result returns the overlays of the last render pass
func (s *Session) Result() RenderResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyResult(s.result)
}

// VisibleResult is Result with the overlays removed while regions are hidden
func (s *Session) VisibleResult() RenderResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.regionsVisible {
		return RenderResult{Recenter: copyLatLon(s.result.Recenter)}
	}
	return copyResult(s.result)
}

// View returns the current map view
func (s *Session) View() MapView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// SetRegionsVisible shows or hides the overlay layers
func (s *Session) SetRegionsVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regionsVisible = visible
}

// RegionsVisible reports whether the overlay layers are shown
func (s *Session) RegionsVisible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regionsVisible
}

// HasObservations returns true if the current snapshot is non-empty
func (s *Session) HasObservations() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observations) > 0
}

func copyResult(r RenderResult) RenderResult {
	out := RenderResult{Recenter: copyLatLon(r.Recenter)}
	if r.Overlays != nil {
		out.Overlays = make([]Overlay, len(r.Overlays))
		for i, o := range r.Overlays {
			if region, ok := o.(RegionPolygon); ok && region.Vertices != nil {
				region.Vertices = append([]orb.Point(nil), region.Vertices...)
				o = region
			}
			out.Overlays[i] = o
		}
	}
	return out
}

func copyLatLon(p *LatLon) *LatLon {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
