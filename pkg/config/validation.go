package config

import "fmt"

// validate validates the configuration.
func validate(cfg *Config) error {
	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		if cfg.Metrics.Prometheus.Port <= 0 || cfg.Metrics.Prometheus.Port > 65535 {
			return fmt.Errorf("metrics.prometheus.port must be between 1 and 65535")
		}
	}

	if err := validateDevice("read", cfg.Read); err != nil {
		return err
	}
	if err := validateDevice("write", cfg.Write); err != nil {
		return err
	}

	if cfg.Read.SampleRate != 0 && cfg.Write.SampleRate != 0 && cfg.Read.SampleRate != cfg.Write.SampleRate {
		return fmt.Errorf("read.sample_rate (%d) must match write.sample_rate (%d)", cfg.Read.SampleRate, cfg.Write.SampleRate)
	}
	if cfg.Read.Stepping != 0 && cfg.Write.Stepping != 0 && cfg.Read.Stepping != cfg.Write.Stepping {
		return fmt.Errorf("read.stepping (%d) must match write.stepping (%d)", cfg.Read.Stepping, cfg.Write.Stepping)
	}

	if cfg.Global.MemoryMap {
		if !cfg.Read.CanMemoryMap || !cfg.Write.CanMemoryMap {
			return fmt.Errorf("global.memory_map requested but read/write device does not advertise support")
		}
	}

	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path must be set")
	}
	if cfg.Database.RetentionDays < 0 {
		return fmt.Errorf("database.retention_days must not be negative")
	}

	return nil
}

func validateDevice(name string, d DeviceConfig) error {
	if d.SampleRate == 0 {
		return fmt.Errorf("%s.sample_rate must be positive", name)
	}
	if d.FrameSize == 0 {
		return fmt.Errorf("%s.frame_size must be positive", name)
	}
	switch d.Stepping {
	case 16, 32, 64:
	case 0:
		return fmt.Errorf("%s.stepping must be set (16 at <=48kHz, 32 at 96kHz, 64 at 192kHz)", name)
	default:
		return fmt.Errorf("%s.stepping must be 16, 32, or 64, got %d", name, d.Stepping)
	}
	return nil
}
