package scout

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tdewolff/canvas"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("FIELDSCOUT_BACKEND_URL", "")

	path := writeConfig(t, `
backend:
  baseUrl: http://backend.local:5000
  timeout: 5s
  maxRetries: 2
capture:
  interval: 10s
  frameDir: /var/frames
  maxWidth: 1280
  location:
    lat: 15.5
    lon: 75.9
mqtt:
  broker: tcp://broker:1883
  resultsTopic: fieldscout/results
map:
  center:
    lat: 12.97
    lon: 77.59
  focusZoom: 17
style:
  highColor: "#AA0000"
  highRadius: 75
treatments:
  Leaf Blight: Apply copper fungicide.
  default: Consult an agronomist.
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend.local:5000", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2, cfg.Backend.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Capture.Interval)
	assert.Equal(t, "/var/frames", cfg.Capture.FrameDir)
	assert.Equal(t, 1280, cfg.Capture.MaxWidth)
	assert.Equal(t, DefaultJPEGQuality, cfg.Capture.JPEGQuality)
	assert.Equal(t, LatLon{Lat: 15.5, Lon: 75.9}, cfg.Capture.Location)
	assert.Equal(t, "fieldscout/results", cfg.MQTT.ResultsTopic)
	assert.Equal(t, LatLon{Lat: 12.97, Lon: 77.59}, cfg.Map.Center)
	assert.Equal(t, DefaultZoom, cfg.Map.Zoom)
	assert.Equal(t, 17, cfg.Map.FocusZoom)
	assert.Equal(t, "#AA0000", cfg.Style.HighColor)
	assert.Equal(t, 75.0, cfg.Style.HighRadius)

	guide := cfg.TreatmentGuide()
	assert.Equal(t, "Apply copper fungicide.", guide.Lookup("LEAF BLIGHT"))
	assert.Equal(t, "Consult an agronomist.", guide.Lookup("Rust"))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("FIELDSCOUT_BACKEND_URL", "")

	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, DefaultBackendTimeout, cfg.Backend.Timeout)
	assert.Equal(t, DefaultMaxRetries, cfg.Backend.MaxRetries)
	assert.Equal(t, DefaultCaptureInterval, cfg.Capture.Interval)
	assert.Equal(t, DefaultCenter, cfg.Map.Center)
	assert.Equal(t, DefaultZoom, cfg.Map.Zoom)
	assert.Equal(t, DefaultFocusZoom, cfg.Map.FocusZoom)
	assert.Empty(t, cfg.Backend.BaseURL)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("FIELDSCOUT_BACKEND_URL", "https://scout.example.com")

	cfg, err := LoadConfig(writeConfig(t, "backend:\n  baseUrl: http://ignored:5000\n"))
	require.NoError(t, err)
	assert.Equal(t, "https://scout.example.com", cfg.Backend.BaseURL)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Setenv("FIELDSCOUT_BACKEND_URL", "")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")

	_, err = LoadConfig(writeConfig(t, "backend: [unclosed\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config YAML")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad backend scheme", func(c *Config) { c.Backend.BaseURL = "ftp://host" }, "backend.baseUrl"},
		{"backend without host", func(c *Config) { c.Backend.BaseURL = "http://" }, "backend.baseUrl"},
		{"negative timeout", func(c *Config) { c.Backend.Timeout = -time.Second }, "backend.timeout"},
		{"negative interval", func(c *Config) { c.Capture.Interval = -time.Second }, "capture.interval"},
		{"jpeg quality", func(c *Config) { c.Capture.JPEGQuality = 101 }, "capture.jpegQuality"},
		{"capture latitude", func(c *Config) { c.Capture.Location.Lat = 91 }, "capture.location"},
		{"center longitude", func(c *Config) { c.Map.Center.Lon = -181 }, "map.center"},
		{"zoom", func(c *Config) { c.Map.Zoom = 23 }, "map.zoom"},
		{"focus zoom", func(c *Config) { c.Map.FocusZoom = -1 }, "map.focusZoom"},
		{"padding", func(c *Config) { c.Map.Padding = -5 }, "map.padding"},
		{"color", func(c *Config) { c.Style.LowColor = "yellow" }, "style.lowColor"},
		{"radius", func(c *Config) { c.Style.HighRadius = -1 }, "style radii"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateColorsInOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Style.HealthyColor = "green"
	cfg.Style.HighColor = "red"
	cfg.Style.LowColor = "yellow"

	for i := 0; i < 50; i++ {
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "style.healthyColor")
	}

	cfg.Style.HealthyColor = ""
	for i := 0; i < 50; i++ {
		assert.Contains(t, cfg.Validate().Error(), "style.highColor")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("FIELDSCOUT_BACKEND_URL", "")

	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "http://localhost:5000"
	cfg.Treatments = map[string]string{"rust": "Remove infected leaves."}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfig_NewRenderer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Map.Padding = 40
	cfg.Map.Resolution = 192
	cfg.Style.LowRadius = 12

	r := cfg.NewRenderer()
	assert.Equal(t, 40.0, r.Padding)
	assert.Equal(t, canvas.DPI(192), r.Resolution)
	assert.Equal(t, 12.0, r.Styles.Low.Radius)
}
