package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the analyzer.
const (
	// Capture
	DefaultDevice        = ""    // Empty hint selects the system default
	DefaultSampleRate    = 48000 // Internal analysis rate (Hz), every backend is resampled to this
	DefaultRingSeconds   = 16    // Ring buffer capacity in seconds
	DefaultProbeInterval = 2 * time.Second

	// Analysis cadence
	DefaultHop           = 500 * time.Millisecond
	DefaultWindowSeconds = 10.0
	MinWindowSeconds     = 8.0
	MaxWindowSeconds     = 12.0

	// Tempo
	DefaultMinBPM            = 60.0
	DefaultMaxBPM            = 200.0
	DefaultEnvelopeRate      = 200.0
	DefaultMinPeakScore      = 0.25
	DefaultOctaveTolerance   = 0.08
	DefaultAnchorConfidence  = 0.5
	DefaultAnchorTTLHops     = 20
	DefaultAnchorSwitchHops  = 3
	DefaultMinTempoSeconds   = 1.6
	DefaultTempoPriorCenter  = 120.0
	DefaultTempoPriorWidth   = 50.0
	DefaultEDMFoldLow        = 91.0
	DefaultEDMFoldHigh       = 180.0
	DefaultTempoLockConf     = 0.5
	DefaultTempoEqualityBPMs = 1.0

	// Key
	DefaultKeyProfile     = "edm"
	DefaultKeyWindow      = "hann"
	DefaultKeyFFTSize     = 4096
	DefaultKeyHopSize     = 2048
	DefaultKeyMinHz       = 80.0
	DefaultKeyMaxHz       = 5000.0
	DefaultKeyBassMaxHz   = 250.0
	DefaultKeyBassMix     = 0.3
	DefaultKeyTonalMin    = 0.5
	DefaultKeyEnergyFloor = 1e-3
	DefaultKeyMarginFloor = 0.01
	DefaultKeyMinSeconds  = 3.0
	DefaultKeyLockConf    = 0.55
	DefaultKeySmoothing   = 0.5
	DefaultKeyDisplay     = "both"

	// Stabilizer
	DefaultPromoteAfter = 5

	// Silence
	DefaultSilenceEnter   = 0.001
	DefaultSilenceExit    = 0.002
	DefaultSilenceWait    = 1500 * time.Millisecond
	DefaultSilenceTimeout = 10 * time.Second

	// Manual tap
	DefaultTapMaxTaps = 8
	DefaultTapWindow  = 8 * time.Second
	DefaultTapMinBPM  = 30.0
	DefaultTapMaxBPM  = 300.0

	// Debug
	DefaultVerbosity = false

	// Transport
	DefaultWSAddr          = "127.0.0.1:8787"
	DefaultUDPTarget       = "127.0.0.1:9090"
	DefaultUDPSendInterval = 33 * time.Millisecond
	DefaultVizPoints       = 192
	DefaultVizSilenceCut   = 0.015
)

// DefaultBackends is the capture fallback order.
var DefaultBackends = []string{"malgo-loopback", "malgo-capture", "portaudio"}
