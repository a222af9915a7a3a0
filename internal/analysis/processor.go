// SPDX-License-Identifier: MIT
package analysis

import "tempokey/internal/audio"

// EnvelopeExtractor produces the onset envelope the tempo estimator
// autocorrelates. Implementations must be pure functions of the window.
type EnvelopeExtractor interface {
	Envelope(w audio.Window) Envelope
}

// ToneExtractor produces the pitch-class profile the key estimator matches
// against its templates. Implementations must be pure functions of the window.
type ToneExtractor interface {
	ToneProfile(w audio.Window) ToneProfile
}

// Compile-time checks for interface implementations.
var _ EnvelopeExtractor = (*Extractor)(nil)
var _ ToneExtractor = (*Extractor)(nil)
