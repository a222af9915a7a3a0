// SPDX-License-Identifier: MIT
package fft

import (
	"fmt"
	"math/bits"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the taper applied to each frame before the transform.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "bartletthann"
	case Blackman:
		return "blackman"
	case BlackmanNuttall:
		return "blackmannuttall"
	case Hamming:
		return "hamming"
	case Lanczos:
		return "lanczos"
	case Nuttall:
		return "nuttall"
	default:
		return "hann"
	}
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc,
// returns Hann and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning", "":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// workspace holds pre-allocated buffers for one transform.
type workspace struct {
	input     []float64    // ...for windowed real input
	fftOutput []complex128 // ...for complex coefficients
	magnitude []float64    // ...for magnitudes of the last frame
	window    []float64    // ...for window coefficients
}

// Processor computes magnitude spectra of fixed-size frames. It is not safe
// for concurrent use; give each analysis goroutine its own Processor.
type Processor struct {
	size       int
	sampleRate float64
	windowType WindowFunc
	fftObj     *fourier.FFT
	ws         workspace
}

// NewProcessor pre-allocates every buffer needed to transform frames of size
// samples at sampleRate.
func NewProcessor(size int, sampleRate float64, w WindowFunc) (*Processor, error) {
	if size < 2 || bits.OnesCount(uint(size)) != 1 {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	coeffs := make([]float64, size)
	applyWindow(coeffs, w)
	bins := size/2 + 1

	return &Processor{
		size:       size,
		sampleRate: sampleRate,
		windowType: w,
		fftObj:     fourier.NewFFT(size),
		ws: workspace{
			input:     make([]float64, size),
			fftOutput: make([]complex128, bins),
			magnitude: make([]float64, bins),
			window:    coeffs,
		},
	}, nil
}

// Magnitudes windows frame, transforms it and returns the magnitude of each
// bin. Frames shorter than the size are zero-padded. The returned slice is
// owned by the Processor and overwritten by the next call.
func (p *Processor) Magnitudes(frame []float32) []float64 {
	n := min(len(frame), p.size)
	for i := range n {
		p.ws.input[i] = float64(frame[i]) * p.ws.window[i]
	}
	clear(p.ws.input[n:])

	p.fftObj.Coefficients(p.ws.fftOutput, p.ws.input)
	for i, c := range p.ws.fftOutput {
		p.ws.magnitude[i] = cmplx.Abs(c)
	}
	return p.ws.magnitude
}

// BinFrequency returns the centre frequency in Hz of bin i.
func (p *Processor) BinFrequency(i int) float64 {
	if i < 0 || i >= len(p.ws.fftOutput) {
		return 0
	}
	return p.fftObj.Freq(i) * p.sampleRate
}

// Bins returns the number of magnitude bins (size/2 + 1).
func (p *Processor) Bins() int { return len(p.ws.magnitude) }

// Size returns the frame length.
func (p *Processor) Size() int { return p.size }

// SampleRate returns the configured sample rate.
func (p *Processor) SampleRate() float64 { return p.sampleRate }

// Window returns the configured window function.
func (p *Processor) Window() WindowFunc { return p.windowType }

// applyWindow fills coeffs with the selected window, Hann for unknown types.
func applyWindow(coeffs []float64, w WindowFunc) {
	// gonum windows scale in place, so start from a rectangle.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
}
