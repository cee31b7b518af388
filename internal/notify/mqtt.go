// Package notify publishes trigger alerts to an MQTT broker.
package notify

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gcn_parser/internal/state"
)

// Config holds MQTT publishing settings.
type Config struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g. tcp://localhost:1883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// Event names.
const (
	EventTriggerNew       = "trigger_new"
	EventPositionImproved = "position_improved"
)

// Alert is the JSON payload published for a trigger event.
type Alert struct {
	Event       string     `json:"event"`
	Family      string     `json:"family"`
	TrigNum     int32      `json:"trig_num"`
	PktTypeName string     `json:"pkt_type_name"`
	PacketCount int        `json:"packet_count"`
	BurstTime   *time.Time `json:"burst_time,omitempty"`
	RA          *float64   `json:"ra_deg,omitempty"`
	Dec         *float64   `json:"dec_deg,omitempty"`
	ErrorDeg    *float64   `json:"error_deg,omitempty"`
	Timestamp   int64      `json:"timestamp"`
}

// publisher is the subset of mqtt.Client used here.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher publishes trigger alerts.
type MQTTPublisher struct {
	client  publisher
	config  Config
	timeout time.Duration
}

func generateClientID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "gcn_parser_" + hex.EncodeToString(b)
}

// NewMQTTPublisher connects to the broker and returns a publisher.
func NewMQTTPublisher(cfg Config) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID())

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Println("MQTT: Connected to broker")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT: Connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15*time.Second) {
		// ConnectRetry keeps trying in the background.
		log.Printf("MQTT: Broker %s not reachable yet, retrying in background", cfg.Broker)
	} else if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newPublisher(client, cfg), nil
}

func newPublisher(client publisher, cfg Config) *MQTTPublisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "gcn"
	}
	return &MQTTPublisher{client: client, config: cfg, timeout: 5 * time.Second}
}

// Topic returns the topic an alert for the trigger is published on:
// <prefix>/triggers/<family>/<trig_num>.
func (p *MQTTPublisher) Topic(family string, trigNum int32) string {
	return strings.TrimSuffix(p.config.TopicPrefix, "/") + "/triggers/" +
		strings.ToLower(family) + "/" + strconv.FormatInt(int64(trigNum), 10)
}

// NewAlert builds the payload for a trigger event.
func NewAlert(event string, ts *state.TriggerState) Alert {
	return Alert{
		Event:       event,
		Family:      ts.Family,
		TrigNum:     ts.TrigNum,
		PktTypeName: ts.LastType,
		PacketCount: ts.PacketCount,
		BurstTime:   ts.BurstTime,
		RA:          ts.RA,
		Dec:         ts.Dec,
		ErrorDeg:    ts.ErrorDeg,
		Timestamp:   time.Now().Unix(),
	}
}

// Publish sends one trigger event and waits for the broker to accept it.
func (p *MQTTPublisher) Publish(event string, ts *state.TriggerState) error {
	payload, err := json.Marshal(NewAlert(event, ts))
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	token := p.client.Publish(p.Topic(ts.Family, ts.TrigNum), p.config.QoS, p.config.Retain, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timed out", event)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if c, ok := p.client.(mqtt.Client); ok {
		c.Disconnect(250)
	}
}
