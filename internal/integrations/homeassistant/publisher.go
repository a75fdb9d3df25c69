package homeassistant

import (
	"fmt"
	"strings"

	"smart-attendance-go/config"
	"smart-attendance-go/internal/integrations/mqtt"

	log "github.com/sirupsen/logrus"
)

const stateTopicPrefix = "smart-attendance/presence"

// Publisher announces per-identity presence sensors to Home Assistant via
// MQTT discovery and keeps their states in sync with recorded attendance.
type Publisher struct {
	mqttClient *mqtt.Client
	cfg        *config.Config
}

// discoveryPayload is the Home Assistant MQTT discovery config for one
// presence sensor.
type discoveryPayload struct {
	Name        string        `json:"name"`
	UniqueID    string        `json:"unique_id"`
	StateTopic  string        `json:"state_topic"`
	PayloadOn   string        `json:"payload_on"`
	PayloadOff  string        `json:"payload_off"`
	DeviceClass string        `json:"device_class"`
	Device      devicePayload `json:"device"`
}

type devicePayload struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
}

// NewPublisher creates a Home Assistant publisher.
func NewPublisher(mqttClient *mqtt.Client, cfg *config.Config) *Publisher {
	return &Publisher{mqttClient: mqttClient, cfg: cfg}
}

func (p *Publisher) enabled() bool {
	return p.cfg.MQTT.Enabled && p.cfg.MQTT.HomeAssistant.Enabled && p.mqttClient != nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, slug)
	return slug
}

func (p *Publisher) discoveryTopic(name string) string {
	return fmt.Sprintf("%s/binary_sensor/smart_attendance/%s/config",
		p.cfg.MQTT.HomeAssistant.DiscoveryPrefix, slugify(name))
}

func (p *Publisher) stateTopic(name string) string {
	return fmt.Sprintf("%s/%s", stateTopicPrefix, slugify(name))
}

// PublishDiscovery announces a presence sensor for every enrolled identity.
// Retained, so Home Assistant picks the sensors up after its own restarts.
func (p *Publisher) PublishDiscovery(names []string) {
	if !p.enabled() {
		return
	}
	for _, name := range names {
		payload := discoveryPayload{
			Name:        fmt.Sprintf("%s present", name),
			UniqueID:    fmt.Sprintf("smart_attendance_%s", slugify(name)),
			StateTopic:  p.stateTopic(name),
			PayloadOn:   "ON",
			PayloadOff:  "OFF",
			DeviceClass: "presence",
			Device: devicePayload{
				Identifiers:  []string{"smart_attendance"},
				Name:         "Smart Attendance",
				Manufacturer: "smart-attendance-go",
			},
		}
		if err := p.mqttClient.PublishRetain(p.discoveryTopic(name), payload); err != nil {
			log.WithError(err).Warnf("Failed to publish HA discovery for %s", name)
		}
	}
	log.Infof("Published Home Assistant discovery for %d identities", len(names))
}

// RemoveDiscovery retracts the sensor of a deleted identity by publishing
// an empty retained config.
func (p *Publisher) RemoveDiscovery(name string) {
	if !p.enabled() {
		return
	}
	if err := p.mqttClient.PublishRetain(p.discoveryTopic(name), ""); err != nil {
		log.WithError(err).Warnf("Failed to retract HA discovery for %s", name)
	}
}

// PublishPresence updates one identity's presence state.
func (p *Publisher) PublishPresence(name string, present bool) {
	if !p.enabled() {
		return
	}
	state := "OFF"
	if present {
		state = "ON"
	}
	if err := p.mqttClient.PublishRetain(p.stateTopic(name), state); err != nil {
		log.WithError(err).Warnf("Failed to publish presence for %s", name)
	}
}

// ResetPresence marks every given identity absent, used when a new day or
// session starts.
func (p *Publisher) ResetPresence(names []string) {
	for _, name := range names {
		p.PublishPresence(name, false)
	}
}
