package config

import (
	"time"

	"github.com/rbright/merion/internal/protocol"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Controller: ControllerConfig{
			Host:       "",
			Port:       protocol.DefaultPort,
			Timeout:    protocol.DefaultTimeout,
			Terminator: "lf",
		},
		Logging: LoggingConfig{Level: "info"},
		Monitor: MonitorConfig{
			Listen:   "127.0.0.1:9105",
			Interval: 5 * time.Second,
		},
	}
}
