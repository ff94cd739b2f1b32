package scout

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/tdewolff/canvas"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadConfig loads the configuration from a YAML file, fills in defaults and
// applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.applyDefaults()
	if backend := os.Getenv("FIELDSCOUT_BACKEND_URL"); backend != "" {
		config.Backend.BaseURL = backend
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Backend.MaxRetries == 0 {
		c.Backend.MaxRetries = DefaultMaxRetries
	}
	if c.Capture.Interval == 0 {
		c.Capture.Interval = DefaultCaptureInterval
	}
	if c.Capture.JPEGQuality == 0 {
		c.Capture.JPEGQuality = DefaultJPEGQuality
	}
	if c.Map.Center == (LatLon{}) {
		c.Map.Center = DefaultCenter
	}
	if c.Map.Zoom == 0 {
		c.Map.Zoom = DefaultZoom
	}
	if c.Map.FocusZoom == 0 {
		c.Map.FocusZoom = DefaultFocusZoom
	}
	if c.Map.Padding == 0 {
		c.Map.Padding = defaultPadding
	}
}

// Validate returns the first invalid setting
func (c *Config) Validate() error {
	if c.Backend.BaseURL != "" {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("backend.baseUrl must be an http(s) URL, got %q", c.Backend.BaseURL)
		}
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if c.Backend.MaxRetries < 0 {
		return fmt.Errorf("backend.maxRetries must not be negative")
	}

	if c.Capture.Interval < 0 {
		return fmt.Errorf("capture.interval must be positive")
	}
	if c.Capture.MaxWidth < 0 {
		return fmt.Errorf("capture.maxWidth must not be negative")
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture.jpegQuality must be between 1 and 100, got %d", c.Capture.JPEGQuality)
	}
	if err := validLatLon(c.Capture.Location); err != nil {
		return fmt.Errorf("capture.location: %w", err)
	}

	if err := validLatLon(c.Map.Center); err != nil {
		return fmt.Errorf("map.center: %w", err)
	}
	if c.Map.Zoom < 0 || c.Map.Zoom > 22 {
		return fmt.Errorf("map.zoom must be between 0 and 22, got %d", c.Map.Zoom)
	}
	if c.Map.FocusZoom < 0 || c.Map.FocusZoom > 22 {
		return fmt.Errorf("map.focusZoom must be between 0 and 22, got %d", c.Map.FocusZoom)
	}
	if c.Map.Padding < 0 {
		return fmt.Errorf("map.padding must not be negative")
	}
	if c.Map.Resolution < 0 {
		return fmt.Errorf("map.resolution must not be negative")
	}

	for _, field := range []struct{ name, hex string }{
		{"style.healthyColor", c.Style.HealthyColor},
		{"style.highColor", c.Style.HighColor},
		{"style.lowColor", c.Style.LowColor},
	} {
		if field.hex == "" {
			continue
		}
		if _, ok := parseHexColor(field.hex); !ok {
			return fmt.Errorf("%s must be a #RRGGBB color, got %q", field.name, field.hex)
		}
	}
	if c.Style.HighRadius < 0 || c.Style.LowRadius < 0 {
		return fmt.Errorf("style radii must not be negative")
	}

	return nil
}

func validLatLon(p LatLon) error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %v out of range", p.Lon)
	}
	return nil
}

// TreatmentGuide returns the configured treatment advice keyed by lower-cased label
func (c *Config) TreatmentGuide() TreatmentGuide {
	guide := make(TreatmentGuide, len(c.Treatments))
	for label, advice := range c.Treatments {
		guide[strings.ToLower(label)] = advice
	}
	return guide
}

// NewRenderer builds a map renderer from the map and style settings
func (c *Config) NewRenderer() *MapRenderer {
	r := NewMapRenderer(NewStylePolicy(c.Style))
	if c.Map.Padding > 0 {
		r.Padding = c.Map.Padding
	}
	if c.Map.Resolution > 0 {
		r.Resolution = canvas.DPI(c.Map.Resolution)
	}
	return r
}
