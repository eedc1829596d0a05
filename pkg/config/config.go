package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config represents the application configuration for a duplexd run.
type Config struct {
	Global   GlobalConfig   `mapstructure:"global"`
	Server   ServerConfig   `mapstructure:"server"`
	Read     DeviceConfig   `mapstructure:"read"`
	Write    DeviceConfig   `mapstructure:"write"`
	Web      WebConfig      `mapstructure:"web"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
}

// GlobalConfig holds the loop driver's scheduling parameters, shared by
// both the read (record) and write (playback) channels.
type GlobalConfig struct {
	Period         uint  `mapstructure:"period"`           // Scheduling quantum, in frames
	Repetitions    uint  `mapstructure:"repetitions"`      // Total per-channel completions before the run ends
	MemoryMap      bool  `mapstructure:"memory_map"`       // Request DMA-mapped transfer; both devices must advertise support
	SimDelayEvery  uint  `mapstructure:"sim_delay_every"`  // Inject simulated late wakeups every N 1024-frame blocks (0 disables)
	SimDelayFrames int64 `mapstructure:"sim_delay_frames"` // Extra frames of delay injected per trigger
}

// ServerConfig holds instance identification, surfaced on the dashboard
// and in diagnostic events.
type ServerConfig struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// DeviceConfig describes one channel's device parameters. The read and
// write channels are configured independently but must agree on sample
// rate and stepping before a run can start; validate rejects a mismatch,
// and the loop driver checks the devices again at initialization.
type DeviceConfig struct {
	Device       string `mapstructure:"device"` // Device node or simulated-device name
	SampleRate   uint   `mapstructure:"sample_rate"`
	FrameSize    uint   `mapstructure:"frame_size"` // Bytes per frame
	Stepping     uint   `mapstructure:"stepping"`   // Minimum transfer granularity in frames
	CanMemoryMap bool   `mapstructure:"can_memory_map"`
}

// WebConfig holds web dashboard configuration.
type WebConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	AuthRequired bool   `mapstructure:"auth_required"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
}

// MQTTConfig holds MQTT diagnostic-event publisher configuration.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	QoS         byte   `mapstructure:"qos"`
	Retained    bool   `mapstructure:"retained"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics server configuration.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// DatabaseConfig holds run-history persistence configuration.
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`            // SQLite database file
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"` // SQLITE_BUSY retry window
	RetentionDays int    `mapstructure:"retention_days"`  // 0 disables the startup retention sweep
}

// Load loads configuration from file and environment variables.
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/duplexd")
	}

	viper.SetEnvPrefix("DUPLEXD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, use defaults
		} else if os.IsNotExist(err) {
			// File explicitly specified but doesn't exist - that's also OK
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	// Global loop defaults
	viper.SetDefault("global.period", 1024)
	viper.SetDefault("global.repetitions", 0)
	viper.SetDefault("global.memory_map", false)
	viper.SetDefault("global.sim_delay_every", 0)
	viper.SetDefault("global.sim_delay_frames", 0)

	// Server defaults
	viper.SetDefault("server.name", "duplexd")
	viper.SetDefault("server.description", "Full-duplex audio I/O loop driver")

	// Device defaults: 48kHz, 16-bit stereo, 16-frame stepping
	viper.SetDefault("read.sample_rate", 48000)
	viper.SetDefault("read.frame_size", 4)
	viper.SetDefault("read.stepping", 16)
	viper.SetDefault("write.sample_rate", 48000)
	viper.SetDefault("write.frame_size", 4)
	viper.SetDefault("write.stepping", 16)

	// Web defaults
	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8080)
	viper.SetDefault("web.auth_required", false)

	// MQTT defaults
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.topic_prefix", "duplexd")
	viper.SetDefault("mqtt.client_id", "duplexd")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retained", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 7)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prometheus.enabled", true)
	viper.SetDefault("metrics.prometheus.port", 9090)
	viper.SetDefault("metrics.prometheus.path", "/metrics")

	// Database defaults
	viper.SetDefault("database.path", "data/duplexd.db")
	viper.SetDefault("database.busy_timeout_ms", 5000)
	viper.SetDefault("database.retention_days", 0)
}
