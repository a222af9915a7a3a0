// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"math/bits"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug      bool             `yaml:"debug"`             // Enable debug mode.
	LogLevel   string           `yaml:"log_level"`         // Logging level ("debug", "info", "warn", "error").
	Command    string           `yaml:"command,omitempty"` // One-off command instead of running the analyzer.
	Headless   bool             `yaml:"headless"`          // Log events instead of running the terminal monitor.
	Capture    CaptureConfig    `yaml:"capture"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Tempo      TempoConfig      `yaml:"tempo"`
	Key        KeyConfig        `yaml:"key"`
	Stabilizer StabilizerConfig `yaml:"stabilizer"`
	Silence    SilenceConfig    `yaml:"silence"`
	Tap        TapConfig        `yaml:"tap"`
	Transport  TransportConfig  `yaml:"transport"`
}

// CaptureConfig holds loopback capture settings.
type CaptureConfig struct {
	Device        string        `yaml:"device"`         // Substring of the device name, empty for the default output.
	Backends      []string      `yaml:"backends"`       // Fallback order of capture backends.
	SampleRate    int           `yaml:"sample_rate"`    // Internal rate every backend is resampled to.
	RingSeconds   float64       `yaml:"ring_seconds"`   // Ring buffer capacity.
	ProbeInterval time.Duration `yaml:"probe_interval"` // Default-device polling interval, 0 disables polling.
}

// AnalysisConfig holds the hop cadence and analysis window length.
type AnalysisConfig struct {
	Hop           time.Duration `yaml:"hop"`
	WindowSeconds float64       `yaml:"window_seconds"`
}

// TempoConfig holds tempo estimator settings.
type TempoConfig struct {
	MinBPM           float64 `yaml:"min_bpm"`
	MaxBPM           float64 `yaml:"max_bpm"`
	EnvelopeRate     float64 `yaml:"envelope_rate"`     // Envelope sample rate (Hz).
	MinPeakScore     float64 `yaml:"min_peak_score"`    // Peaks below this are treated as no detection.
	OctaveTolerance  float64 `yaml:"octave_tolerance"`  // Relative band around the anchor.
	AnchorConfidence float64 `yaml:"anchor_confidence"` // Minimum confidence that may set the anchor.
	AnchorTTLHops    int     `yaml:"anchor_ttl_hops"`
	AnchorSwitchHops int     `yaml:"anchor_switch_hops"`
	MinSeconds       float64 `yaml:"min_seconds"` // Minimum non-silent content.
	PriorCenter      float64 `yaml:"prior_center"`
	PriorWidth       float64 `yaml:"prior_width"`
	EDMFold          bool    `yaml:"edm_fold"` // Fold the estimate into [91, 180] by octaves.
}

// KeyConfig holds key estimator settings.
type KeyConfig struct {
	Profile     string  `yaml:"profile"` // "edm" or "krumhansl".
	Window      string  `yaml:"window"`  // STFT window function name.
	FFTSize     int     `yaml:"fft_size"`
	HopSize     int     `yaml:"hop_size"`
	MinHz       float64 `yaml:"min_hz"`
	MaxHz       float64 `yaml:"max_hz"`
	BassMaxHz   float64 `yaml:"bass_max_hz"`
	BassMix     float64 `yaml:"bass_mix"`
	TonalMin    float64 `yaml:"tonal_min"`
	EnergyFloor float64 `yaml:"energy_floor"`
	MarginFloor float64 `yaml:"margin_floor"`
	MinSeconds  float64 `yaml:"min_seconds"`
	Display     string  `yaml:"display"` // "both", "name" or "camelot".
}

// StabilizerConfig holds the display-state thresholds.
type StabilizerConfig struct {
	TempoLockConfidence float64 `yaml:"tempo_lock_confidence"`
	KeyLockConfidence   float64 `yaml:"key_lock_confidence"`
	PromoteAfter        int     `yaml:"promote_after"`
	KeySmoothing        float64 `yaml:"key_smoothing"`   // EMA alpha for key confidence.
	TempoTolerance      float64 `yaml:"tempo_tolerance"` // BPM difference still treated as the same value.
}

// SilenceConfig holds the silence monitor hysteresis and timers.
type SilenceConfig struct {
	EnterThreshold float64       `yaml:"enter_threshold"`
	ExitThreshold  float64       `yaml:"exit_threshold"`
	LabelWait      time.Duration `yaml:"label_wait"`
	Timeout        time.Duration `yaml:"timeout"`
}

// TapConfig holds manual tap limits.
type TapConfig struct {
	MaxTaps int           `yaml:"max_taps"`
	Window  time.Duration `yaml:"window"`
	MinBPM  float64       `yaml:"min_bpm"`
	MaxBPM  float64       `yaml:"max_bpm"`
}

// TransportConfig holds settings related to sending events and the visualization feed.
type TransportConfig struct {
	WSEnabled        bool          `yaml:"ws_enabled"`         // Serve events over WebSocket.
	WSAddr           string        `yaml:"ws_addr"`            // Listen address of the WebSocket server.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send the visualization feed over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
	VizPoints        int           `yaml:"viz_points"`         // Decimated samples per visualization frame.
	VizSilenceCut    float64       `yaml:"viz_silence_cut"`    // RMS below which the frame is zeroed.
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Capture: CaptureConfig{
			Device:        DefaultDevice,
			Backends:      append([]string(nil), DefaultBackends...),
			SampleRate:    DefaultSampleRate,
			RingSeconds:   DefaultRingSeconds,
			ProbeInterval: DefaultProbeInterval,
		},
		Analysis: AnalysisConfig{
			Hop:           DefaultHop,
			WindowSeconds: DefaultWindowSeconds,
		},
		Tempo: TempoConfig{
			MinBPM:           DefaultMinBPM,
			MaxBPM:           DefaultMaxBPM,
			EnvelopeRate:     DefaultEnvelopeRate,
			MinPeakScore:     DefaultMinPeakScore,
			OctaveTolerance:  DefaultOctaveTolerance,
			AnchorConfidence: DefaultAnchorConfidence,
			AnchorTTLHops:    DefaultAnchorTTLHops,
			AnchorSwitchHops: DefaultAnchorSwitchHops,
			MinSeconds:       DefaultMinTempoSeconds,
			PriorCenter:      DefaultTempoPriorCenter,
			PriorWidth:       DefaultTempoPriorWidth,
		},
		Key: KeyConfig{
			Profile:     DefaultKeyProfile,
			Window:      DefaultKeyWindow,
			FFTSize:     DefaultKeyFFTSize,
			HopSize:     DefaultKeyHopSize,
			MinHz:       DefaultKeyMinHz,
			MaxHz:       DefaultKeyMaxHz,
			BassMaxHz:   DefaultKeyBassMaxHz,
			BassMix:     DefaultKeyBassMix,
			TonalMin:    DefaultKeyTonalMin,
			EnergyFloor: DefaultKeyEnergyFloor,
			MarginFloor: DefaultKeyMarginFloor,
			MinSeconds:  DefaultKeyMinSeconds,
			Display:     DefaultKeyDisplay,
		},
		Stabilizer: StabilizerConfig{
			TempoLockConfidence: DefaultTempoLockConf,
			KeyLockConfidence:   DefaultKeyLockConf,
			PromoteAfter:        DefaultPromoteAfter,
			KeySmoothing:        DefaultKeySmoothing,
			TempoTolerance:      DefaultTempoEqualityBPMs,
		},
		Silence: SilenceConfig{
			EnterThreshold: DefaultSilenceEnter,
			ExitThreshold:  DefaultSilenceExit,
			LabelWait:      DefaultSilenceWait,
			Timeout:        DefaultSilenceTimeout,
		},
		Tap: TapConfig{
			MaxTaps: DefaultTapMaxTaps,
			Window:  DefaultTapWindow,
			MinBPM:  DefaultTapMinBPM,
			MaxBPM:  DefaultTapMaxBPM,
		},
		Transport: TransportConfig{
			WSEnabled:        true,
			WSAddr:           DefaultWSAddr,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTarget,
			UDPSendInterval:  DefaultUDPSendInterval, // ~30Hz.
			VizPoints:        DefaultVizPoints,
			VizSilenceCut:    DefaultVizSilenceCut,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. Environment overrides are applied after loading and the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		candidates := []string{"config.yaml", "tempokey.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return &cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(len(c.Capture.Backends) > 0, "capture.backends must name at least one backend")
	check(c.Capture.SampleRate >= 8000 && c.Capture.SampleRate <= 192000,
		"capture.sample_rate %d out of range [8000, 192000]", c.Capture.SampleRate)
	check(c.Capture.RingSeconds >= c.Analysis.WindowSeconds,
		"capture.ring_seconds (%.1f) must hold a full analysis window (%.1f)", c.Capture.RingSeconds, c.Analysis.WindowSeconds)

	check(c.Analysis.Hop > 0, "analysis.hop must be positive")
	check(c.Analysis.WindowSeconds >= MinWindowSeconds && c.Analysis.WindowSeconds <= MaxWindowSeconds,
		"analysis.window_seconds %.1f out of range [%.0f, %.0f]", c.Analysis.WindowSeconds, MinWindowSeconds, MaxWindowSeconds)

	check(c.Tempo.MinBPM > 0 && c.Tempo.MinBPM < c.Tempo.MaxBPM,
		"tempo.min_bpm (%.1f) must be positive and below tempo.max_bpm (%.1f)", c.Tempo.MinBPM, c.Tempo.MaxBPM)
	check(c.Tempo.EnvelopeRate >= 2*c.Tempo.MaxBPM/60*4,
		"tempo.envelope_rate %.1f too low to resolve %.0f BPM", c.Tempo.EnvelopeRate, c.Tempo.MaxBPM)
	check(c.Tempo.OctaveTolerance > 0 && c.Tempo.OctaveTolerance < 0.5, "tempo.octave_tolerance must be in (0, 0.5)")

	check(c.Key.Profile == "edm" || c.Key.Profile == "krumhansl", "key.profile %q must be edm or krumhansl", c.Key.Profile)
	check(slices.Contains([]string{"", "both", "name", "camelot"}, c.Key.Display), "key.display %q must be both, name or camelot", c.Key.Display)
	check(c.Key.FFTSize > 0 && bits.OnesCount(uint(c.Key.FFTSize)) == 1, "key.fft_size %d must be a power of 2", c.Key.FFTSize)
	check(c.Key.HopSize > 0 && c.Key.HopSize <= c.Key.FFTSize, "key.hop_size must be in (0, fft_size]")
	check(c.Key.MinHz > 0 && c.Key.MinHz < c.Key.MaxHz, "key.min_hz must be positive and below key.max_hz")
	check(c.Key.MaxHz < float64(c.Capture.SampleRate)/2, "key.max_hz must be below Nyquist")
	check(c.Key.BassMix >= 0 && c.Key.BassMix <= 1, "key.bass_mix must be in [0, 1]")

	inUnit := func(v float64) bool { return v > 0 && v <= 1 }
	check(inUnit(c.Stabilizer.TempoLockConfidence), "stabilizer.tempo_lock_confidence must be in (0, 1]")
	check(inUnit(c.Stabilizer.KeyLockConfidence), "stabilizer.key_lock_confidence must be in (0, 1]")
	check(c.Stabilizer.PromoteAfter >= 1, "stabilizer.promote_after must be at least 1")
	check(c.Stabilizer.KeySmoothing >= 0 && c.Stabilizer.KeySmoothing <= 1, "stabilizer.key_smoothing must be in [0, 1]")

	check(c.Silence.EnterThreshold > 0 && c.Silence.ExitThreshold > c.Silence.EnterThreshold,
		"silence.exit_threshold (%g) must exceed silence.enter_threshold (%g)", c.Silence.ExitThreshold, c.Silence.EnterThreshold)
	check(c.Silence.LabelWait > 0 && c.Silence.Timeout > c.Silence.LabelWait,
		"silence.timeout must exceed silence.label_wait")

	check(c.Tap.MaxTaps >= 2, "tap.max_taps must be at least 2")
	check(c.Tap.Window > 0, "tap.window must be positive")
	check(c.Tap.MinBPM > 0 && c.Tap.MinBPM < c.Tap.MaxBPM, "tap.min_bpm must be positive and below tap.max_bpm")

	if c.Transport.WSEnabled {
		check(strings.Contains(c.Transport.WSAddr, ":"), "transport.ws_addr %q appears invalid (missing port?)", c.Transport.WSAddr)
	}
	if c.Transport.UDPEnabled {
		check(strings.Contains(c.Transport.UDPTargetAddress, ":"),
			"transport.udp_target_address %q appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		check(c.Transport.UDPSendInterval > 0, "transport.udp_send_interval must be positive when UDP is enabled")
	}
	check(c.Transport.VizPoints > 0 && c.Transport.VizPoints <= 4096, "transport.viz_points must be in (0, 4096]")

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the file or defaults.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
		}
	}
	// ENV_HEADLESS
	if val, ok := os.LookupEnv("ENV_HEADLESS"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Headless = bVal
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok && val != "" {
		cfg.LogLevel = val
	}

	// ENV_CAPTURE_{...}

	// ENV_CAPTURE_DEVICE
	if val, ok := os.LookupEnv("ENV_CAPTURE_DEVICE"); ok {
		cfg.Capture.Device = val
	}
	// ENV_CAPTURE_BACKENDS (comma separated)
	if val, ok := os.LookupEnv("ENV_CAPTURE_BACKENDS"); ok && val != "" {
		var backends []string
		for _, b := range strings.Split(val, ",") {
			if b = strings.TrimSpace(b); b != "" {
				backends = append(backends, b)
			}
		}
		cfg.Capture.Backends = backends
	}

	// ENV_WS_{...}

	// ENV_WS_ENABLED
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.WSEnabled = bVal
		}
	}
	// ENV_WS_ADDR
	if val, ok := os.LookupEnv("ENV_WS_ADDR"); ok && val != "" {
		cfg.Transport.WSAddr = val
	}

	// ENV_UDP_{...}

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
		}
	}
}
