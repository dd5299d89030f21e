package config

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is the on-disk configuration syntax.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatForPath selects YAML for .yaml/.yml files and TOML otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

type fileConfig struct {
	Controller *fileController `toml:"controller" yaml:"controller"`
	Logging    *fileLogging    `toml:"logging" yaml:"logging"`
	Monitor    *fileMonitor    `toml:"monitor" yaml:"monitor"`
}

type fileController struct {
	Host       *string `toml:"host" yaml:"host"`
	Port       *int    `toml:"port" yaml:"port"`
	Timeout    *string `toml:"timeout" yaml:"timeout"`
	Terminator *string `toml:"terminator" yaml:"terminator"`
}

type fileLogging struct {
	Level *string `toml:"level" yaml:"level"`
}

type fileMonitor struct {
	Listen   *string `toml:"listen" yaml:"listen"`
	Interval *string `toml:"interval" yaml:"interval"`
}

var knownKeys = map[string]struct{}{
	"controller":            {},
	"controller.host":       {},
	"controller.port":       {},
	"controller.timeout":    {},
	"controller.terminator": {},
	"logging":               {},
	"logging.level":         {},
	"monitor":               {},
	"monitor.listen":        {},
	"monitor.interval":      {},
}

// Parse overlays content onto base and reports unknown keys. It does not validate: callers run
// Validate once command-line overrides have been applied.
func Parse(content string, format Format, base Config) (Config, []Warning, error) {
	var (
		fc       fileConfig
		unknown  []string
		parseErr error
	)

	switch format {
	case FormatYAML:
		unknown, parseErr = decodeYAML(content, &fc)
	default:
		unknown, parseErr = decodeTOML(content, &fc)
	}
	if parseErr != nil {
		return Config{}, nil, parseErr
	}

	cfg, err := fc.overlay(base)
	if err != nil {
		return Config{}, nil, err
	}

	warnings := make([]Warning, 0, len(unknown))
	for _, key := range unknown {
		warnings = append(warnings, Warning{Key: key, Message: fmt.Sprintf("unknown key %q ignored", key)})
	}

	return cfg, warnings, nil
}

func decodeTOML(content string, fc *fileConfig) ([]string, error) {
	md, err := toml.Decode(content, fc)
	if err != nil {
		return nil, fmt.Errorf("decode toml: %w", err)
	}
	unknown := make([]string, 0)
	for _, key := range md.Undecoded() {
		unknown = append(unknown, key.String())
	}
	sort.Strings(unknown)
	return unknown, nil
}

func decodeYAML(content string, fc *fileConfig) ([]string, error) {
	if err := yaml.NewDecoder(strings.NewReader(content)).Decode(fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	unknown := make([]string, 0)
	for key, value := range raw {
		if _, ok := knownKeys[key]; !ok {
			unknown = append(unknown, key)
			continue
		}
		nested, ok := value.(map[string]any)
		if !ok {
			continue
		}
		for sub := range nested {
			full := key + "." + sub
			if _, ok := knownKeys[full]; !ok {
				unknown = append(unknown, full)
			}
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

func (fc fileConfig) overlay(cfg Config) (Config, error) {
	if c := fc.Controller; c != nil {
		if c.Host != nil {
			cfg.Controller.Host = strings.TrimSpace(*c.Host)
		}
		if c.Port != nil {
			cfg.Controller.Port = *c.Port
		}
		if c.Timeout != nil {
			d, err := parseDuration("controller.timeout", *c.Timeout)
			if err != nil {
				return Config{}, err
			}
			cfg.Controller.Timeout = d
		}
		if c.Terminator != nil {
			cfg.Controller.Terminator = *c.Terminator
		}
	}
	if l := fc.Logging; l != nil && l.Level != nil {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*l.Level))
	}
	if m := fc.Monitor; m != nil {
		if m.Listen != nil {
			cfg.Monitor.Listen = strings.TrimSpace(*m.Listen)
		}
		if m.Interval != nil {
			d, err := parseDuration("monitor.interval", *m.Interval)
			if err != nil {
				return Config{}, err
			}
			cfg.Monitor.Interval = d
		}
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return d, nil
}
