package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/avnsound/duplexd/pkg/logger"
)

// Config holds MQTT publisher configuration
type Config struct {
	Enabled     bool
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	Retained    bool
}

// Publisher handles MQTT event publishing
type Publisher struct {
	config Config
	log    *logger.Logger
}

// Event types for MQTT publishing

// GapResetEvent represents a hard resynchronization of both channels.
type GapResetEvent struct {
	GapFrames int64     `json:"gap_frames"`
	Timestamp time.Time `json:"timestamp"`
}

// LateWakeupEvent represents a scheduler wakeup that overshot its deadline.
type LateWakeupEvent struct {
	ExtraFrames int64     `json:"extra_frames"`
	Timestamp   time.Time `json:"timestamp"`
}

// RunCompletedEvent represents the outcome of a loop invocation.
type RunCompletedEvent struct {
	RunID       string    `json:"run_id"`
	Completed   uint      `json:"completed"`
	Repetitions uint      `json:"repetitions"`
	Success     bool      `json:"success"`
	Timestamp   time.Time `json:"timestamp"`
}

// New creates a new MQTT publisher
func New(config Config, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}
	
	return &Publisher{
		config: config,
		log:    log.WithComponent("mqtt"),
	}
}

// Start starts the MQTT publisher
func (p *Publisher) Start(ctx context.Context) error {
	if !p.config.Enabled {
		p.log.Info("MQTT publisher disabled")
		return nil
	}

	p.log.Info("Starting MQTT publisher",
		logger.String("broker", p.config.Broker),
		logger.String("client_id", p.config.ClientID))

	// TODO: Implement actual MQTT connection when paho.mqtt library is added
	// For now, this is a no-op stub that allows the application to start
	p.log.Warn("MQTT connection not yet implemented - events will not be published")
	
	return nil
}

// Stop stops the MQTT publisher
func (p *Publisher) Stop() {
	if !p.config.Enabled {
		return
	}

	p.log.Info("Stopping MQTT publisher")
	// TODO: Disconnect MQTT client when implemented
}

// PublishGapReset publishes a gap-reset event.
func (p *Publisher) PublishGapReset(event GapResetEvent) error {
	if !p.config.Enabled {
		return nil
	}

	topic := p.formatTopic("loop/gap_reset")
	return p.publish(topic, event)
}

// PublishLateWakeup publishes a late-wakeup event.
func (p *Publisher) PublishLateWakeup(event LateWakeupEvent) error {
	if !p.config.Enabled {
		return nil
	}

	topic := p.formatTopic("loop/late_wakeup")
	return p.publish(topic, event)
}

// PublishRunCompleted publishes a run-completion event.
func (p *Publisher) PublishRunCompleted(event RunCompletedEvent) error {
	if !p.config.Enabled {
		return nil
	}

	topic := p.formatTopic("loop/run_completed")
	return p.publish(topic, event)
}

// publish publishes an event to a topic
func (p *Publisher) publish(topic string, event interface{}) error {
	payload, err := p.serializeEvent(event)
	if err != nil {
		p.log.Error("Failed to serialize event",
			logger.String("topic", topic),
			logger.Error(err))
		return err
	}

	// TODO: Implement actual MQTT publish when paho.mqtt library is added
	p.log.Debug("Would publish MQTT event",
		logger.String("topic", topic),
		logger.Int("payload_size", len(payload)))

	return nil
}

// serializeEvent serializes an event to JSON
func (p *Publisher) serializeEvent(event interface{}) ([]byte, error) {
	return json.Marshal(event)
}

// formatTopic formats a topic with the configured prefix
func (p *Publisher) formatTopic(suffix string) string {
	prefix := strings.TrimSuffix(p.config.TopicPrefix, "/")
	if prefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s/%s", prefix, suffix)
}
