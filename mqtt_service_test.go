package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kwv/fieldscout/scout"
)

// TestMQTTServiceConfigLoading tests configuration loading for MQTT service
func TestMQTTServiceConfigLoading(t *testing.T) {
	t.Setenv("FIELDSCOUT_BACKEND_URL", "")

	tests := []struct {
		name        string
		configYAML  string
		shouldError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			configYAML: `mqtt:
  broker: "tcp://localhost:1883"
  publishPrefix: "fieldscout"
  clientId: "test-client"
  resultsTopic: "fieldscout/results"
`,
		},
		{
			name: "publish only",
			configYAML: `mqtt:
  broker: "tcp://localhost:1883"
`,
		},
		{
			name: "bad style color",
			configYAML: `mqtt:
  broker: "tcp://localhost:1883"
style:
  healthyColor: "green"
`,
			shouldError: true,
			errorMsg:    "style.healthyColor",
		},
		{
			name: "invalid YAML",
			configYAML: `mqtt:
  broker: [
`,
			shouldError: true,
			errorMsg:    "parsing config YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}

			app := NewApp()
			app.ConfigFile = configPath
			err := app.loadConfig()

			if tt.shouldError {
				if err == nil {
					t.Fatalf("Expected error containing %q, got nil", tt.errorMsg)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if app.Config.MQTT.Broker != "tcp://localhost:1883" {
				t.Errorf("Broker = %s", app.Config.MQTT.Broker)
			}
		})
	}
}

// newServiceApp wires an App to a connected mock broker the way RunService does
func newServiceApp(t *testing.T) (*App, *scout.MockClient) {
	t.Helper()
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	mock := scout.NewMockClient()
	mock.SetConnected(true)

	app := NewApp()
	app.Publisher = scout.NewPublisher(mock, "farm")
	app.Session.OnRender(app.Publisher.Listener(app.Session, app.Renderer.Styles, app.Guide))

	token := mock.Subscribe("farm/results", 1, func(_ mqtt.Client, msg mqtt.Message) {
		batch, err := scout.ParseResultBatch(msg.Payload())
		app.handleBatch(msg.Topic(), batch, err)
	})
	if token.Error() != nil {
		t.Fatalf("subscribe: %v", token.Error())
	}
	return app, mock
}

// TestMQTTServiceBatchFlow tests a result batch arriving over MQTT and the
// overlays and view being published back
func TestMQTTServiceBatchFlow(t *testing.T) {
	app, mock := newServiceApp(t)

	mock.SimulateMessage("farm/results", []byte(testBatch))

	if !app.Session.HasObservations() {
		t.Fatal("batch should have been ingested")
	}

	msgs := mock.GetPublishedMessages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want overlays + view", len(msgs))
	}
	if msgs[0].Topic != "farm/overlays" || msgs[1].Topic != "farm/view" {
		t.Errorf("topics = %s, %s", msgs[0].Topic, msgs[1].Topic)
	}
	for _, m := range msgs {
		if !m.Retain {
			t.Errorf("%s should be retained", m.Topic)
		}
	}

	var fc scout.FeatureCollection
	if err := json.Unmarshal(msgs[0].Payload, &fc); err != nil {
		t.Fatalf("decode overlays: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Errorf("features = %d, want 2", len(fc.Features))
	}

	var view scout.MapView
	if err := json.Unmarshal(msgs[1].Payload, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Zoom != scout.DefaultFocusZoom {
		t.Errorf("zoom = %d, want %d", view.Zoom, scout.DefaultFocusZoom)
	}
}

// TestMQTTServiceRejectsBadBatches tests that invalid payloads publish nothing
func TestMQTTServiceRejectsBadBatches(t *testing.T) {
	app, mock := newServiceApp(t)

	mock.SimulateMessage("farm/results", []byte("garbage"))
	mock.SimulateMessage("farm/results", []byte(`{"results":[{"latitude":200,"longitude":0,"prediction":"x","confidence":0.5}]}`))

	if app.Session.HasObservations() {
		t.Error("invalid batches must not be ingested")
	}
	if n := len(mock.GetPublishedMessages()); n != 0 {
		t.Errorf("published %d messages, want 0", n)
	}
}

// TestMQTTServiceDisconnected tests that a lost broker does not block ingestion
func TestMQTTServiceDisconnected(t *testing.T) {
	app, mock := newServiceApp(t)
	mock.SetConnected(false)

	if _, err := app.ingest(mustBatch(t, testBatch)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !app.Session.HasObservations() {
		t.Error("session should update while the broker is away")
	}
	if n := len(mock.GetPublishedMessages()); n != 0 {
		t.Errorf("published %d messages while disconnected", n)
	}
}
