package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"smart-attendance-go/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Client wraps the paho MQTT connection used to publish attendance events
// to external consumers (dashboards, automations, Home Assistant).
type Client struct {
	config config.MQTTConfig
	client mqtt.Client
}

// AttendanceEvent is the JSON payload published for every recorded
// attendance.
type AttendanceEvent struct {
	Name      string    `json:"name"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// NewClient creates an MQTT client from configuration.
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{config: cfg}
}

// Start connects to the broker. Disabled configuration is a no-op.
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port))
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Errorf("MQTT connection lost: %v", err)
	})
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s:%d", c.config.Broker, c.config.Port)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}
	return nil
}

// Stop disconnects from the broker.
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		c.client.Disconnect(250)
	}
}

// IsConnected reports whether the client is connected.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// PublishMessage publishes a payload to a topic, marshaling structs to
// JSON.
func (c *Client) PublishMessage(topic string, payload interface{}, retain bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	var payloadBytes []byte
	var err error
	switch p := payload.(type) {
	case string:
		payloadBytes = []byte(p)
	case []byte:
		payloadBytes = p
	default:
		payloadBytes, err = json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling payload: %w", err)
		}
	}

	token := c.client.Publish(topic, 1, retain, payloadBytes)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Publish publishes without the retain flag.
func (c *Client) Publish(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, false)
}

// PublishRetain publishes with the retain flag set.
func (c *Client) PublishRetain(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, true)
}

// PublishAttendance publishes a recorded attendance to the configured
// event topic. Failures are logged, never propagated into the recognition
// loop.
func (c *Client) PublishAttendance(event AttendanceEvent) {
	if !c.config.Enabled {
		return
	}
	if err := c.Publish(c.config.Topic, event); err != nil {
		log.WithError(err).Warnf("Failed to publish attendance event for %s", event.Name)
	}
}
