package scout

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes rendered overlays and the map view to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
}

// viewMessage is the payload of the view topic
type viewMessage struct {
	MapView
	Timestamp int64 `json:"timestamp"`
}

// NewPublisher creates a publisher. The topic prefix comes from
// MQTT_PUBLISH_PREFIX, then prefix, then "fieldscout".
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = "fieldscout"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // late subscribers get the current overlays
	}
}

// Prefix returns the topic prefix
func (p *Publisher) Prefix() string {
	return p.publishPrefix
}

// PublishOverlays publishes a GeoJSON FeatureCollection to {prefix}/overlays
func (p *Publisher) PublishOverlays(fc *FeatureCollection) error {
	payload, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshaling overlays: %w", err)
	}
	if err := p.publish("overlays", payload); err != nil {
		return err
	}
	log.Printf("[MQTT] Published %d overlay features", len(fc.Features))
	return nil
}

// PublishView publishes the map view to {prefix}/view
func (p *Publisher) PublishView(view MapView) error {
	payload, err := json.Marshal(viewMessage{MapView: view, Timestamp: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("marshaling view: %w", err)
	}
	return p.publish("view", payload)
}

func (p *Publisher) publish(subtopic string, payload []byte) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	topic := fmt.Sprintf("%s/%s", p.publishPrefix, subtopic)
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// Listener returns a RenderListener that publishes every render pass.
// Hidden regions publish an empty collection.
func (p *Publisher) Listener(session *Session, policy StylePolicy, guide TreatmentGuide) RenderListener {
	return func(result RenderResult, view MapView) {
		if !session.RegionsVisible() {
			result = RenderResult{Recenter: result.Recenter}
		}
		if err := p.PublishOverlays(ToFeatureCollection(result, policy, guide)); err != nil {
			log.Printf("[MQTT] Error publishing overlays: %v", err)
		}
		if err := p.PublishView(view); err != nil {
			log.Printf("[MQTT] Error publishing view: %v", err)
		}
	}
}
