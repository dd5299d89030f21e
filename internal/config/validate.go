package config

import (
	"fmt"
	"strings"

	"github.com/rbright/merion/internal/protocol"
)

var validLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Controller.Port < 1 || cfg.Controller.Port > 65535 {
		return nil, fmt.Errorf("controller.port must be within 1..65535")
	}
	if cfg.Controller.Timeout <= 0 {
		return nil, fmt.Errorf("controller.timeout must be > 0")
	}
	if _, err := protocol.ParseTerminator(cfg.Controller.Terminator); err != nil {
		return nil, fmt.Errorf("controller.terminator: %w", err)
	}
	if _, ok := validLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))]; !ok {
		return nil, fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if strings.TrimSpace(cfg.Monitor.Listen) == "" {
		return nil, fmt.Errorf("monitor.listen must not be empty")
	}
	if cfg.Monitor.Interval <= 0 {
		return nil, fmt.Errorf("monitor.interval must be > 0")
	}

	if strings.TrimSpace(cfg.Controller.Host) == "" {
		warnings = append(warnings, Warning{
			Key:     "controller.host",
			Message: "controller.host is empty; pass --host or enter it when prompted",
		})
	}

	return warnings, nil
}

// TerminatorBytes returns the resolved receive terminator bytes. Call after Validate.
func (c ControllerConfig) TerminatorBytes() []byte {
	b, err := protocol.ParseTerminator(c.Terminator)
	if err != nil {
		return []byte(protocol.TerminatorLF)
	}
	return b
}
