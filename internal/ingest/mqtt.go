// Package ingest subscribes to an MQTT broker and appends received
// telemetry through the catalog's ingest path.
//
// Topics follow <prefix>/<parameter-id>; payloads are JSON objects
// {"timestamp": RFC3339 | unix-ms, "value": float} or arrays of them. A
// missing timestamp is stamped with the receive time.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/xtxerr/satmon/config"
	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/logging"
	"github.com/xtxerr/satmon/internal/storage/types"
	"github.com/xtxerr/satmon/internal/validation"
)

var log = logging.Component("mqtt")

// Sink appends one point. *manager.Manager implements it.
type Sink interface {
	Ingest(parameterID string, timestampMs int64, value float64) (types.DataPoint, error)
}

// Config holds broker connection settings.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// DefaultConfig returns the default broker settings.
func DefaultConfig() Config {
	return Config{
		Broker:   config.DefaultMQTTBroker,
		ClientID: config.DefaultMQTTClientID,
		Topic:    config.DefaultMQTTTopic,
		QoS:      1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	errs := errors.NewValidationErrors()
	if c.Broker == "" {
		errs.AddMissing("mqtt.broker")
	}
	if c.Topic == "" {
		errs.AddMissing("mqtt.topic")
	} else if !strings.HasSuffix(c.Topic, "/+") {
		errs.AddField("mqtt.topic", "must end with /+ (the parameter id level)")
	}
	if c.QoS > 2 {
		errs.AddField("mqtt.qos", "must be 0, 1 or 2")
	}
	return errs.Err()
}

// Stats holds subscriber counters.
type Stats struct {
	Messages  int64
	Accepted  int64
	Rejected  int64
	Malformed int64
}

// Subscriber decodes telemetry messages and hands them to a Sink.
type Subscriber struct {
	cfg    Config
	sink   Sink
	client mqtt.Client
	now    func() time.Time

	messages  atomic.Int64
	accepted  atomic.Int64
	rejected  atomic.Int64
	malformed atomic.Int64
}

// NewSubscriber creates a subscriber. It does not connect.
func NewSubscriber(cfg Config, sink Sink) *Subscriber {
	if cfg.ClientID == "" {
		cfg.ClientID = config.DefaultMQTTClientID
	}
	return &Subscriber{cfg: cfg, sink: sink, now: time.Now}
}

// Start connects to the broker and subscribes to the telemetry topic.
// The subscription is restored after automatic reconnects.
func (s *Subscriber) Start() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetUsername(s.cfg.Username)
	opts.SetPassword(s.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("connection lost", "broker", s.cfg.Broker, "error", err)
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
		if token.Wait() && token.Error() != nil {
			log.Error("subscribe failed", "topic", s.cfg.Topic, "error", token.Error())
			return
		}
		log.Info("subscribed", "broker", s.cfg.Broker, "topic", s.cfg.Topic)
	})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to MQTT broker %s: %w", s.cfg.Broker, token.Error())
	}
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	if s.client == nil || !s.client.IsConnected() {
		return
	}
	s.client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	s.client.Disconnect(250)
	log.Info("disconnected", "broker", s.cfg.Broker)
}

// Stats returns a snapshot of the counters.
func (s *Subscriber) Stats() Stats {
	return Stats{
		Messages:  s.messages.Load(),
		Accepted:  s.accepted.Load(),
		Rejected:  s.rejected.Load(),
		Malformed: s.malformed.Load(),
	}
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := s.HandleMessage(msg.Topic(), msg.Payload()); err != nil {
		log.Debug("message dropped", "topic", msg.Topic(), "error", err)
	}
}

// HandleMessage decodes one message and ingests its points. Points are
// ingested in payload order; the first rejected point stops the message.
func (s *Subscriber) HandleMessage(topic string, payload []byte) error {
	s.messages.Add(1)

	parameterID, err := ParameterFromTopic(topic)
	if err != nil {
		s.malformed.Add(1)
		return err
	}

	msgs, err := decodePayload(payload)
	if err != nil {
		s.malformed.Add(1)
		return err
	}

	received := s.now()
	for _, m := range msgs {
		ts, err := m.TimestampMs(received)
		if err != nil {
			s.malformed.Add(1)
			return err
		}
		if _, err := s.sink.Ingest(parameterID, ts, m.Value); err != nil {
			s.rejected.Add(1)
			return err
		}
		s.accepted.Add(1)
	}
	return nil
}

// ParameterFromTopic returns the last topic level.
func ParameterFromTopic(topic string) (string, error) {
	i := strings.LastIndexByte(topic, '/')
	id := topic[i+1:]
	if i < 0 || id == "" {
		return "", errors.NewInvalidValue("topic", topic, "expected <prefix>/<parameter-id>")
	}
	return id, nil
}

// Message is one telemetry point on the wire.
type Message struct {
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Value     float64         `json:"value"`
}

func decodePayload(payload []byte) ([]Message, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, errors.NewMissingField("payload")
	}

	if payload[0] == '[' {
		var msgs []Message
		if err := json.Unmarshal(payload, &msgs); err != nil {
			return nil, errors.NewInvalidValue("payload", string(payload), err.Error())
		}
		return msgs, nil
	}

	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, errors.NewInvalidValue("payload", string(payload), err.Error())
	}
	return []Message{m}, nil
}

// TimestampMs returns the point timestamp in unix milliseconds, or fallback
// when the message carries none.
func (m Message) TimestampMs(fallback time.Time) (int64, error) {
	raw := bytes.TrimSpace(m.Timestamp)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fallback.UnixMilli(), nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errors.NewInvalidValue("timestamp", string(raw), err.Error())
		}
		t, err := validation.ParseTime("timestamp", s)
		if err != nil {
			return 0, err
		}
		return t.UnixMilli(), nil
	}

	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, errors.NewInvalidValue("timestamp", string(raw), "expected RFC3339 or unix milliseconds")
	}
	return ms, nil
}
