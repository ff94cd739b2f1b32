package scout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	renderPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldscout_render_passes_total",
		Help: "Total number of overlay render passes.",
	})

	observationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldscout_observations_total",
		Help: "Total number of observations rendered, by partition.",
	}, []string{"partition"})

	markersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldscout_markers_total",
		Help: "Total number of detection markers emitted, by tier.",
	}, []string{"tier"})

	captureUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldscout_capture_uploads_total",
		Help: "Total number of frame uploads to the classification backend, by status.",
	}, []string{"status"})

	regionVertices = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldscout_region_vertices",
		Help:    "Number of vertices in the healthy region outline.",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16, 32, 64},
	})
)

// recordRender updates the render metrics for one pass.
func recordRender(observations []Observation, result RenderResult) {
	renderPasses.Inc()

	healthy, diseased := Partition(observations)
	observationsTotal.WithLabelValues("healthy").Add(float64(len(healthy)))
	observationsTotal.WithLabelValues("diseased").Add(float64(len(diseased)))

	for _, m := range result.Markers() {
		markersTotal.WithLabelValues(string(m.Tier)).Inc()
	}
	if region, ok := result.Region(); ok {
		regionVertices.Observe(float64(len(region.Vertices)))
	}
}

func recordUpload(err error) {
	if err != nil {
		captureUploads.WithLabelValues("error").Inc()
		return
	}
	captureUploads.WithLabelValues("ok").Inc()
}
