package mqtt

import (
	"context"
	"testing"
	"time"
)

// TestNewPublisher tests creating a new MQTT publisher
func TestNewPublisher(t *testing.T) {
	config := Config{
		Enabled:     true,
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "duplexd/test",
		ClientID:    "test-client",
		QoS:         1,
		Retained:    false,
	}

	pub := New(config, nil)
	if pub == nil {
		t.Fatal("Expected non-nil publisher")
	}

	if pub.config.Broker != config.Broker {
		t.Errorf("Expected broker %s, got %s", config.Broker, pub.config.Broker)
	}
}

// TestPublisher_Start tests starting the publisher (when disabled)
func TestPublisher_StartWhenDisabled(t *testing.T) {
	config := Config{
		Enabled: false,
	}

	pub := New(config, nil)
	ctx := context.Background()

	err := pub.Start(ctx)
	if err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
}

// TestPublisher_Stop tests stopping the publisher
func TestPublisher_Stop(t *testing.T) {
	config := Config{
		Enabled: false,
	}

	pub := New(config, nil)

	// Should not panic when stopping without starting
	pub.Stop()
}

// TestPublisher_PublishGapReset tests publishing gap-reset events
func TestPublisher_PublishGapReset(t *testing.T) {
	config := Config{
		Enabled:     false,
		TopicPrefix: "duplexd/test",
	}

	pub := New(config, nil)

	event := GapResetEvent{
		GapFrames: 2048,
		Timestamp: time.Now(),
	}

	err := pub.PublishGapReset(event)
	if err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
}

// TestPublisher_PublishLateWakeup tests publishing late-wakeup events
func TestPublisher_PublishLateWakeup(t *testing.T) {
	config := Config{
		Enabled:     false,
		TopicPrefix: "duplexd/test",
	}

	pub := New(config, nil)

	event := LateWakeupEvent{
		ExtraFrames: 8192,
		Timestamp:   time.Now(),
	}

	err := pub.PublishLateWakeup(event)
	if err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
}

// TestPublisher_PublishRunCompleted tests publishing run-completion events
func TestPublisher_PublishRunCompleted(t *testing.T) {
	config := Config{
		Enabled:     false,
		TopicPrefix: "duplexd/test",
	}

	pub := New(config, nil)

	event := RunCompletedEvent{
		RunID:       "11111111-1111-1111-1111-111111111111",
		Completed:   16,
		Repetitions: 16,
		Success:     true,
		Timestamp:   time.Now(),
	}

	err := pub.PublishRunCompleted(event)
	if err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
}

// TestTopicFormat tests topic formatting
func TestTopicFormat(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		suffix   string
		expected string
	}{
		{
			name:     "simple topic",
			prefix:   "duplexd",
			suffix:   "loop/gap_reset",
			expected: "duplexd/loop/gap_reset",
		},
		{
			name:     "trailing slash in prefix",
			prefix:   "duplexd/",
			suffix:   "loop/gap_reset",
			expected: "duplexd/loop/gap_reset",
		},
		{
			name:     "empty prefix",
			prefix:   "",
			suffix:   "loop/gap_reset",
			expected: "loop/gap_reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Config{
				TopicPrefix: tt.prefix,
			}
			pub := New(config, nil)
			topic := pub.formatTopic(tt.suffix)
			if topic != tt.expected {
				t.Errorf("Expected topic %s, got %s", tt.expected, topic)
			}
		})
	}
}

// TestEventSerialization tests that events can be serialized to JSON
func TestEventSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event interface{}
	}{
		{
			name: "GapResetEvent",
			event: GapResetEvent{
				GapFrames: 2048,
				Timestamp: time.Now(),
			},
		},
		{
			name: "LateWakeupEvent",
			event: LateWakeupEvent{
				ExtraFrames: 8192,
				Timestamp:   time.Now(),
			},
		},
		{
			name: "RunCompletedEvent",
			event: RunCompletedEvent{
				RunID:       "11111111-1111-1111-1111-111111111111",
				Completed:   16,
				Repetitions: 16,
				Success:     true,
				Timestamp:   time.Now(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Config{
				Enabled: false,
			}
			pub := New(config, nil)

			_, err := pub.serializeEvent(tt.event)
			if err != nil {
				t.Errorf("Failed to serialize %s: %v", tt.name, err)
			}
		})
	}
}
