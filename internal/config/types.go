// Package config resolves, parses, validates, and defaults merion configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by merion.
type Config struct {
	Controller ControllerConfig
	Logging    LoggingConfig
	Monitor    MonitorConfig
}

// ControllerConfig addresses one laser controller.
type ControllerConfig struct {
	Host string
	Port int
	// Timeout bounds the connect attempt and every response read.
	Timeout time.Duration
	// Terminator is "lf", "cr", or a literal receive terminator.
	Terminator string
}

// LoggingConfig controls the JSONL log sink.
type LoggingConfig struct {
	Level string
}

// MonitorConfig controls the state polling exporter.
type MonitorConfig struct {
	Listen   string
	Interval time.Duration
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Key     string
	Message string
}

// Overrides carries command-line values that take precedence over the file.
type Overrides struct {
	Host       *string
	Port       *int
	Timeout    *time.Duration
	Terminator *string
	LogLevel   *string
}

// Apply returns cfg with every set override copied in.
func (o Overrides) Apply(cfg Config) Config {
	if o.Host != nil {
		cfg.Controller.Host = *o.Host
	}
	if o.Port != nil {
		cfg.Controller.Port = *o.Port
	}
	if o.Timeout != nil {
		cfg.Controller.Timeout = *o.Timeout
	}
	if o.Terminator != nil {
		cfg.Controller.Terminator = *o.Terminator
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	return cfg
}
