package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kwv/fieldscout/scout"
)

// captureBackend is the part of the backend client used by capture mode
type captureBackend interface {
	scout.Uploader
	StartCapture(ctx context.Context) error
	StopCapture(ctx context.Context) (*scout.ResultBatch, error)
}

// App encapsulates the application state and dependencies
type App struct {
	Config     *scout.Config
	Session    *scout.Session
	Renderer   *scout.MapRenderer
	Guide      scout.TreatmentGuide
	MQTTClient *scout.MQTTClient
	Publisher  *scout.Publisher

	// CLI options
	ConfigFile  string
	ResultsFile string
	OutputBase  string
	Format      string
	BackendURL  string
	FrameDir    string
	HttpPort    int
	MqttMode    bool
	HttpMode    bool

	out io.Writer
}

// NewApp creates a new App instance with default configuration
func NewApp() *App {
	a := &App{out: os.Stdout}
	a.useConfig(scout.DefaultConfig())
	return a
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.ResultsFile = opts.ResultsFile
	a.OutputBase = opts.OutputBase
	a.Format = opts.Format
	a.BackendURL = opts.BackendURL
	a.FrameDir = opts.FrameDir
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// useConfig wires the session and renderer to cfg
func (a *App) useConfig(cfg *scout.Config) {
	a.Config = cfg
	a.Session = scout.NewSession(cfg.Map)
	a.Renderer = cfg.NewRenderer()
	a.Guide = cfg.TreatmentGuide()
}

// loadConfig reads the config file, if any, and applies CLI overrides
func (a *App) loadConfig() error {
	cfg := scout.DefaultConfig()
	if a.ConfigFile != "" {
		loaded, err := scout.LoadConfig(a.ConfigFile)
		if err != nil {
			return err
		}
		cfg = loaded
		log.Printf("Loaded config from %s", a.ConfigFile)
	}

	if a.BackendURL != "" {
		cfg.Backend.BaseURL = a.BackendURL
	}
	if a.FrameDir != "" {
		cfg.Capture.FrameDir = a.FrameDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.useConfig(cfg)
	return nil
}

// ingest validates a batch and renders it into the session
func (a *App) ingest(batch *scout.ResultBatch) (scout.RenderResult, error) {
	observations, err := batch.Observations()
	if err != nil {
		return scout.RenderResult{}, fmt.Errorf("rejecting result batch: %w", err)
	}
	return a.Session.ReplaceObservations(observations, batch.Insights), nil
}

// handleBatch is the MQTT batch handler
func (a *App) handleBatch(topic string, batch *scout.ResultBatch, err error) {
	if err != nil {
		log.Printf("[MQTT] Ignoring undecodable batch from %s: %v", topic, err)
		return
	}
	result, err := a.ingest(batch)
	if err != nil {
		log.Printf("[MQTT] %v", err)
		return
	}
	log.Printf("[MQTT] %s: %d results -> %d overlays", topic, len(batch.Results), len(result.Overlays))
}

// printSummary writes the result cards and insights of a batch
func printSummary(w io.Writer, batch *scout.ResultBatch) {
	summary := scout.SummarizeResults(batch)

	_, _ = fmt.Fprintf(w, "\n%d result(s)\n", len(summary.Cards))
	for i, c := range summary.Cards {
		_, _ = fmt.Fprintf(w, "\n=== Result %d ===\n", i+1)
		_, _ = fmt.Fprintf(w, "Prediction: %s\n", c.Prediction)
		_, _ = fmt.Fprintf(w, "Confidence: %s\n", c.Confidence)
		_, _ = fmt.Fprintf(w, "Location:   %s\n", c.Location)
		if c.ImageURL != "" {
			_, _ = fmt.Fprintf(w, "Image:      %s\n", c.ImageURL)
		}
	}
	_, _ = fmt.Fprintf(w, "\nInsights:\n%s\n", summary.Insights)
}

// writeOutputs renders the session's overlays to OutputBase.{geojson,svg,png}
// and returns the files written
func (a *App) writeOutputs() ([]string, error) {
	result := a.Session.VisibleResult()

	formats := []string{a.Format}
	if a.Format == "" || a.Format == "all" {
		formats = []string{"geojson", "svg", "png"}
	}

	if dir := filepath.Dir(a.OutputBase); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	var written []string
	for _, format := range formats {
		path := a.OutputBase + "." + format
		err := writeFile(path, func(w io.Writer) error {
			switch format {
			case "geojson":
				return writeGeoJSON(w, scout.ToFeatureCollection(result, a.Renderer.Styles, a.Guide))
			case "svg":
				return a.Renderer.RenderToSVG(w, result)
			case "png":
				return a.Renderer.RenderToPNG(w, result)
			}
			return fmt.Errorf("unknown format %q", format)
		})
		if errors.Is(err, scout.ErrNothingToRender) {
			log.Printf("Skipping %s: %v", path, err)
			continue
		}
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// RunRender renders a result batch file and exits
func (a *App) RunRender() {
	if err := a.loadConfig(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	batch, err := scout.ParseResultsFile(a.ResultsFile)
	if err != nil {
		log.Fatalf("Error loading %s: %v", a.ResultsFile, err)
	}

	if err := a.finish(batch); err != nil {
		log.Fatal(err)
	}
}

// finish prints, renders and writes out a completed batch
func (a *App) finish(batch *scout.ResultBatch) error {
	printSummary(a.out, batch)

	result, err := a.ingest(batch)
	if err != nil {
		return err
	}

	view := a.Session.View()
	_, _ = fmt.Fprintf(a.out, "\n%d overlay(s), view %.6f, %.6f zoom %d\n",
		len(result.Overlays), view.Center.Lat, view.Center.Lon, view.Zoom)

	written, err := a.writeOutputs()
	for _, path := range written {
		_, _ = fmt.Fprintf(a.out, "Wrote %s\n", path)
	}
	return err
}

// RunCapture captures frames until interrupted, then renders the results
func (a *App) RunCapture() {
	if err := a.loadConfig(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg := a.Config
	if cfg.Backend.BaseURL == "" {
		log.Fatal("Capture mode needs a backend URL (--backend or backend.baseUrl)")
	}
	if cfg.Capture.FrameDir == "" {
		log.Fatal("Capture mode needs a frame directory (--frames or capture.frameDir)")
	}

	backend, err := scout.NewBackendClient(cfg.Backend.BaseURL,
		scout.WithTimeout(cfg.Backend.Timeout),
		scout.WithMaxRetries(cfg.Backend.MaxRetries),
	)
	if err != nil {
		log.Fatal(err)
	}

	frames, err := scout.NewDirFrameSource(cfg.Capture.FrameDir)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Capturing; press Ctrl+C to stop and render the results")
	batch, err := a.capture(ctx, backend, frames, scout.StaticLocator{Position: cfg.Capture.Location})
	if err != nil {
		log.Fatal(err)
	}

	if err := a.finish(batch); err != nil {
		log.Fatal(err)
	}
}

// capture runs one capture session until ctx is done and returns the
// backend's results
func (a *App) capture(ctx context.Context, backend captureBackend, frames scout.FrameSource, locator scout.Locator) (*scout.ResultBatch, error) {
	if err := backend.StartCapture(ctx); err != nil {
		return nil, err
	}

	capturer := scout.NewCapturer(frames, locator, backend, a.Config.Capture)
	if err := capturer.Run(ctx); err != nil {
		return nil, err
	}

	// ctx is done by now; stopping gets its own deadline
	stopCtx, cancel := context.WithTimeout(context.Background(), a.Config.Backend.Timeout)
	defer cancel()
	return backend.StopCapture(stopCtx)
}

// RunService runs the MQTT and/or HTTP service until interrupted
func (a *App) RunService() {
	fmt.Println("Starting fieldscout service...")

	if err := a.loadConfig(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := a.Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.MqttMode {
		mqttClient, err := scout.InitMQTT(ctx, cfg.MQTT, a.handleBatch)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if mqttClient == nil {
			log.Fatal("MQTT broker not configured (mqtt.broker or MQTT_BROKER)")
		}
		a.MQTTClient = mqttClient

		a.Publisher = scout.NewPublisher(mqttClient.GetClient(), cfg.MQTT.PublishPrefix)
		a.Session.OnRender(a.Publisher.Listener(a.Session, a.Renderer.Styles, a.Guide))
		fmt.Println("MQTT overlay publisher initialized")
	}

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler:           newHTTPServer(a.Session, a.Renderer, a.Guide, a.ingest),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		fmt.Println("\nMQTT:")
		if cfg.MQTT.ResultsTopic != "" {
			fmt.Printf("  Subscribed to: %s\n", cfg.MQTT.ResultsTopic)
		}
		fmt.Printf("  Overlays: %s/overlays\n", a.Publisher.Prefix())
		fmt.Printf("  View:     %s/view\n", a.Publisher.Prefix())
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET  /health           - Health check")
		fmt.Println("  GET  /overlays.geojson - Overlays as GeoJSON")
		fmt.Println("  GET  /map.svg          - Overlay map (SVG)")
		fmt.Println("  GET  /map.png          - Overlay map with legend (PNG)")
		fmt.Println("  GET  /observations     - Current observations and insights")
		fmt.Println("  GET  /view             - Current map view")
		fmt.Println("  POST /results          - Submit a result batch")
		fmt.Println("  POST /regions?visible= - Show or hide overlays")
		fmt.Println("  GET  /metrics          - Prometheus metrics")
	}

	fmt.Println("\nPress Ctrl+C to stop")
	<-ctx.Done()

	fmt.Println("\nShutting down service...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := render(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func writeGeoJSON(w io.Writer, fc *scout.FeatureCollection) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fc)
}
