package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaultsWarnsAboutMissingHost(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, "controller.host", warnings[0].Key)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "port zero", mutate: func(c *Config) { c.Controller.Port = 0 }, wantErr: "controller.port"},
		{name: "port too large", mutate: func(c *Config) { c.Controller.Port = 70000 }, wantErr: "controller.port"},
		{name: "timeout", mutate: func(c *Config) { c.Controller.Timeout = 0 }, wantErr: "controller.timeout"},
		{name: "terminator", mutate: func(c *Config) { c.Controller.Terminator = "" }, wantErr: "controller.terminator"},
		{name: "bad escape", mutate: func(c *Config) { c.Controller.Terminator = `\q` }, wantErr: "controller.terminator"},
		{name: "level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "listen", mutate: func(c *Config) { c.Monitor.Listen = " " }, wantErr: "monitor.listen"},
		{name: "interval", mutate: func(c *Config) { c.Monitor.Interval = -1 }, wantErr: "monitor.interval"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Controller.Host = "laser"
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestTerminatorBytesFallsBackToLF(t *testing.T) {
	cfg := Default().Controller
	cfg.Terminator = ""
	require.Equal(t, []byte("\n> "), cfg.TerminatorBytes())
}
