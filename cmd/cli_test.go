// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"tempokey/internal/config"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *config.Config)
	}{
		{"defaults", nil, func(t *testing.T, cfg *config.Config) {
			if cfg.Command != "" || cfg.Headless || !cfg.Transport.WSEnabled || cfg.Transport.UDPEnabled {
				t.Errorf("cfg = %+v", cfg)
			}
		}},
		{"run", []string{"run", "--headless", "-d", "Speakers"}, func(t *testing.T, cfg *config.Config) {
			if !cfg.Headless || cfg.Capture.Device != "Speakers" || cfg.Command != "" {
				t.Errorf("headless %v device %q command %q", cfg.Headless, cfg.Capture.Device, cfg.Command)
			}
		}},
		{"transports", []string{"--ws-addr", "0.0.0.0:9000", "--udp", "127.0.0.1:7000"}, func(t *testing.T, cfg *config.Config) {
			tr := cfg.Transport
			if !tr.WSEnabled || tr.WSAddr != "0.0.0.0:9000" || !tr.UDPEnabled || tr.UDPTargetAddress != "127.0.0.1:7000" {
				t.Errorf("transport = %+v", tr)
			}
		}},
		{"no ws", []string{"--no-ws"}, func(t *testing.T, cfg *config.Config) {
			if cfg.Transport.WSEnabled {
				t.Error("WebSocket still enabled")
			}
		}},
		{"verbose", []string{"-v"}, func(t *testing.T, cfg *config.Config) {
			if !cfg.Debug || cfg.LogLevel != "debug" {
				t.Errorf("debug %v level %q", cfg.Debug, cfg.LogLevel)
			}
		}},
		{"list", []string{"list"}, func(t *testing.T, cfg *config.Config) {
			if cfg.Command != CommandList {
				t.Errorf("command = %q", cfg.Command)
			}
		}},
		{"list tui", []string{"list", "--tui"}, func(t *testing.T, cfg *config.Config) {
			if cfg.Command != CommandListTUI {
				t.Errorf("command = %q", cfg.Command)
			}
		}},
		{"version", []string{"version"}, func(t *testing.T, cfg *config.Config) {
			if cfg.Command != CommandVersion {
				t.Errorf("command = %q", cfg.Command)
			}
		}},
		{"help", []string{"--help"}, func(t *testing.T, cfg *config.Config) {
			if cfg.Command != CommandHelp {
				t.Errorf("command = %q", cfg.Command)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseArgs(tt.args)
			if err != nil {
				t.Fatalf("ParseArgs(%v): %v", tt.args, err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestParseArgsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tempokey.yaml")
	yaml := "headless: true\ncapture:\n  device: Monitor\nkey:\n  display: camelot\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseArgs([]string{"--config", path})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Headless || cfg.Capture.Device != "Monitor" || cfg.Key.Display != "camelot" {
		t.Errorf("file values lost: %+v", cfg)
	}

	// Explicit flags win over the file.
	cfg, err = ParseArgs([]string{"--config", path, "--device", "Speakers", "--headless=false"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Headless || cfg.Capture.Device != "Speakers" {
		t.Errorf("flags did not override: headless %v device %q", cfg.Headless, cfg.Capture.Device)
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}},
		{"bad ws address", []string{"--ws-addr", "nowhere"}},
		{"unknown flag", []string{"--bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseArgs(tt.args); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
