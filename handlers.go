package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kwv/fieldscout/scout"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBatchBytes bounds the body of POST /results
const maxBatchBytes = 10 << 20

// ingestFunc validates a result batch and renders it into the session
type ingestFunc func(batch *scout.ResultBatch) (scout.RenderResult, error)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(session *scout.Session, renderer *scout.MapRenderer, guide scout.TreatmentGuide, ingest ingestFunc) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status          string    `json:"status"`
			Timestamp       time.Time `json:"timestamp"`
			HasObservations bool      `json:"hasObservations"`
			RegionsVisible  bool      `json:"regionsVisible"`
		}{
			Status:          "ok",
			Timestamp:       time.Now(),
			HasObservations: session.HasObservations(),
			RegionsVisible:  session.RegionsVisible(),
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("/overlays.geojson", func(w http.ResponseWriter, r *http.Request) {
		fc := scout.ToFeatureCollection(session.VisibleResult(), renderer.Styles, guide)
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(fc); err != nil {
			log.Printf("[HTTP] Error encoding overlays: %v", err)
		}
	})

	mux.HandleFunc("/map.svg", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := renderer.RenderToSVG(&buf, session.VisibleResult()); err != nil {
			renderError(w, "/map.svg", err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = buf.WriteTo(w)
	})

	mux.HandleFunc("/map.png", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := renderer.RenderToPNG(&buf, session.VisibleResult()); err != nil {
			renderError(w, "/map.png", err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = buf.WriteTo(w)
	})

	mux.HandleFunc("GET /observations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, struct {
			Observations []scout.Observation `json:"observations"`
			Insights     string              `json:"insights"`
		}{session.Observations(), session.Insights()})
	})

	mux.HandleFunc("GET /view", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, session.View())
	})

	mux.HandleFunc("POST /results", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBatchBytes))
		if err != nil {
			http.Error(w, "reading body", http.StatusBadRequest)
			return
		}
		batch, err := scout.ParseResultBatch(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := ingest(batch)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, struct {
			Overlays int           `json:"overlays"`
			View     scout.MapView `json:"view"`
		}{len(result.Overlays), session.View()})
	})

	mux.HandleFunc("POST /regions", func(w http.ResponseWriter, r *http.Request) {
		visible, err := strconv.ParseBool(r.URL.Query().Get("visible"))
		if err != nil {
			http.Error(w, "visible must be true or false", http.StatusBadRequest)
			return
		}
		session.SetRegionsVisible(visible)
		writeJSON(w, struct {
			RegionsVisible bool `json:"regionsVisible"`
		}{visible})
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		insights := session.Insights()
		if insights == "" {
			insights = scout.NoInsights
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>fieldscout</title>
<style>
body{margin:0;font-family:sans-serif;background:#f4f4f4}
img{display:block;width:100vw;height:80vh;object-fit:contain;background:#fff}
p{padding:1em}
</style>
</head>
<body>
<img src="/map.svg" alt="Field map">
<p>%s</p>
</body>
</html>`, html.EscapeString(insights))
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}

func renderError(w http.ResponseWriter, endpoint string, err error) {
	if errors.Is(err, scout.ErrNothingToRender) {
		http.Error(w, "No overlays available", http.StatusServiceUnavailable)
		return
	}
	log.Printf("[HTTP] Error rendering %s: %v", endpoint, err)
	http.Error(w, "render failed", http.StatusInternalServerError)
}
