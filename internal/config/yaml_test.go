// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Analysis.Hop != DefaultHop {
		t.Errorf("Hop = %s, want %s", cfg.Analysis.Hop, DefaultHop)
	}
	if cfg.Stabilizer.KeyLockConfidence != 0.55 || cfg.Stabilizer.TempoLockConfidence != 0.5 {
		t.Errorf("unexpected lock thresholds: %+v", cfg.Stabilizer)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
capture:
  device: "Speakers"
analysis:
  hop: 250ms
tempo:
  edm_fold: true
silence:
  timeout: 12s
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.Device != "Speakers" {
		t.Errorf("Device = %q", cfg.Capture.Device)
	}
	if cfg.Analysis.Hop != 250*time.Millisecond {
		t.Errorf("Hop = %s", cfg.Analysis.Hop)
	}
	if !cfg.Tempo.EDMFold {
		t.Error("EDMFold not applied")
	}
	if cfg.Silence.Timeout != 12*time.Second || cfg.Silence.LabelWait != DefaultSilenceWait {
		t.Errorf("silence = %+v", cfg.Silence)
	}
	if len(cfg.Capture.Backends) != len(DefaultBackends) {
		t.Errorf("Backends = %v", cfg.Capture.Backends)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"window too short", func(c *Config) { c.Analysis.WindowSeconds = 4 }, "analysis.window_seconds"},
		{"inverted bpm range", func(c *Config) { c.Tempo.MinBPM = 210 }, "tempo.min_bpm"},
		{"fft size not pow2", func(c *Config) { c.Key.FFTSize = 3000 }, "power of 2"},
		{"hysteresis inverted", func(c *Config) { c.Silence.ExitThreshold = c.Silence.EnterThreshold }, "silence.exit_threshold"},
		{"unknown profile", func(c *Config) { c.Key.Profile = "jazz" }, "key.profile"},
		{"no backends", func(c *Config) { c.Capture.Backends = nil }, "capture.backends"},
		{"ring shorter than window", func(c *Config) { c.Capture.RingSeconds = 5 }, "capture.ring_seconds"},
		{"udp without port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "udp_target_address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ENV_CAPTURE_DEVICE", "Monitor of Built-in")
	t.Setenv("ENV_CAPTURE_BACKENDS", "portaudio, malgo-capture")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "20ms")
	t.Setenv("ENV_WS_ADDR", "0.0.0.0:9999")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.Device != "Monitor of Built-in" {
		t.Errorf("Device = %q", cfg.Capture.Device)
	}
	if len(cfg.Capture.Backends) != 2 || cfg.Capture.Backends[0] != "portaudio" {
		t.Errorf("Backends = %v", cfg.Capture.Backends)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPSendInterval != 20*time.Millisecond {
		t.Errorf("udp overrides not applied: %+v", cfg.Transport)
	}
	if cfg.Transport.WSAddr != "0.0.0.0:9999" {
		t.Errorf("WSAddr = %q", cfg.Transport.WSAddr)
	}
}

func TestDerivedSizes(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	if got := cfg.WindowSamples(); got != 480000 {
		t.Errorf("WindowSamples = %d", got)
	}
	if got := cfg.HopSamples(); got != 24000 {
		t.Errorf("HopSamples = %d", got)
	}
	if got := cfg.RingCapacity(); got != 16*48000 {
		t.Errorf("RingCapacity = %d", got)
	}
}
