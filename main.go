package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile  string
	ResultsFile string
	OutputBase  string
	Format      string
	BackendURL  string
	FrameDir    string
	HttpPort    int
	RenderOnly  bool
	CaptureMode bool
	MqttMode    bool
	HttpMode    bool
}

// Runner is the set of modes the CLI dispatches to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunRender()
	RunCapture()
	RunService()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("fieldscout", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to configuration file (defaults are used when empty)")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render a result batch file and exit")
	fs.StringVar(&opts.ResultsFile, "results", "results.json", "Result batch JSON for --render mode")
	fs.StringVar(&opts.OutputBase, "output", "overlays", "Output path without extension")
	fs.StringVar(&opts.Format, "format", "all", "Output format: geojson, svg, png, or all")
	fs.BoolVar(&opts.CaptureMode, "capture", false, "Capture frames until interrupted, then render the results")
	fs.StringVar(&opts.BackendURL, "backend", "", "Classification backend base URL (overrides config)")
	fs.StringVar(&opts.FrameDir, "frames", "", "Directory of frames for --capture (overrides config)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for serving overlays")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")

	if err := fs.Parse(args); err != nil {
		return err
	}

	switch opts.Format {
	case "geojson", "svg", "png", "all":
	default:
		return fmt.Errorf("unknown format %q", opts.Format)
	}

	_, _ = fmt.Fprintf(out, "fieldscout version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.RenderOnly:
		app.RunRender()
	case opts.CaptureMode:
		app.RunCapture()
	case opts.MqttMode || opts.HttpMode:
		app.RunService()
	default:
		_, _ = fmt.Fprintln(out, "Use --render --results FILE to render a result batch")
		_, _ = fmt.Fprintln(out, "Use --capture to capture frames and render the results")
		_, _ = fmt.Fprintln(out, "Use --mqtt to receive result batches over MQTT")
		_, _ = fmt.Fprintln(out, "Use --http to serve overlays over HTTP")
		_, _ = fmt.Fprintln(out, "Use --mqtt --http to run both together")
	}
	return nil
}
