// SPDX-License-Identifier: MIT

// Package engine runs the analysis pipeline: a hop ticker snapshots the
// capture ring, independent tempo and key workers estimate from the
// snapshot, and a single display loop owns every piece of display state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tempokey/internal/analysis"
	"tempokey/internal/audio"
	"tempokey/internal/config"
	"tempokey/internal/key"
	applog "tempokey/internal/log"
	"tempokey/internal/silence"
	"tempokey/internal/stabilizer"
	"tempokey/internal/tap"
	"tempokey/internal/tempo"
	"tempokey/internal/transport"
)

// vizSpan is how many of the newest samples a visualization frame covers.
const vizSpan = 1024

// Source supplies sample windows. *audio.Capture implements it.
type Source interface {
	Snapshot(n int) audio.Window
	Latest(dst []float32) int
	Discard()
	Report() audio.Report
}

var _ Source = (*audio.Capture)(nil)

// job is one hop's snapshot, stamped with the reset epoch it was taken in.
type job struct {
	window audio.Window
	epoch  uint64
	at     time.Time
}

type levelMsg struct {
	rms    float64
	report audio.Report
	at     time.Time
}

type tempoMsg struct {
	est   tempo.Estimate
	epoch uint64
	at    time.Time
}

type keyMsg struct {
	est   key.Estimate
	epoch uint64
	at    time.Time
}

type cmdKind int

const (
	cmdReset cmdKind = iota
	cmdTap
	cmdExitManual
	cmdDisplayMode
)

type command struct {
	kind cmdKind
	at   time.Time
	mode key.DisplayMode
}

// Engine wires capture to estimators, stabilizers and transports.
type Engine struct {
	cfg *config.Config
	src Source
	out *transport.Multi
	log zerolog.Logger

	windowLen int
	hopLen    int

	tempoW *tempoWorker
	keyW   *keyWorker

	tempoJobs chan job
	keyJobs   chan job
	msgs      chan any
	cmds      chan command
	epoch     atomic.Uint64

	// Owned by the display loop.
	tempoStab  *stabilizer.Stabilizer[float64]
	keyStab    *stabilizer.Stabilizer[key.Key]
	manualStab *stabilizer.Stabilizer[float64]
	tap        *tap.Session
	silence    *silence.Monitor
	keyMode    key.DisplayMode
	lastChoice tempo.Choice
	lastReport audio.Report
	haveReport bool

	vizMu   sync.Mutex
	vizBuf  []float32
	vizGate *audio.Gate

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an engine reading from src and publishing to outs.
func New(cfg *config.Config, src Source, outs ...transport.Transport) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: nil config")
	}
	if src == nil {
		return nil, errors.New("engine: nil source")
	}
	acfg, err := analysis.ConfigFrom(cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	envX, err := analysis.NewExtractor(acfg)
	if err != nil {
		return nil, fmt.Errorf("engine: envelope extractor: %w", err)
	}
	toneX, err := analysis.NewExtractor(acfg)
	if err != nil {
		return nil, fmt.Errorf("engine: tone extractor: %w", err)
	}
	kcfg, err := key.ConfigFrom(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	mode, err := key.ParseDisplayMode(cfg.Key.Display)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	sc := cfg.Stabilizer
	tol := sc.TempoTolerance
	e := &Engine{
		cfg:       cfg,
		src:       src,
		out:       transport.NewMulti(outs...),
		log:       applog.Component("engine"),
		windowLen: cfg.WindowSamples(),
		hopLen:    cfg.HopSamples(),
		tempoW:    &tempoWorker{env: envX, est: tempo.NewEstimator(tempo.ConfigFrom(cfg.Tempo))},
		keyW:      &keyWorker{est: key.NewEstimator(kcfg, toneX)},
		tempoJobs: make(chan job, 1),
		keyJobs:   make(chan job, 1),
		msgs:      make(chan any, 16),
		cmds:      make(chan command, 16),
		tempoStab: stabilizer.New(stabilizer.Config{
			HighThreshold: sc.TempoLockConfidence,
			PromoteAfter:  sc.PromoteAfter,
		}, func(a, b float64) bool { return math.Abs(a-b) <= tol }),
		keyStab: stabilizer.New(stabilizer.Config{
			HighThreshold: sc.KeyLockConfidence,
			PromoteAfter:  sc.PromoteAfter,
			Smoothing:     sc.KeySmoothing,
		}, func(a, b key.Key) bool { return a == b }),
		manualStab: stabilizer.New(stabilizer.Config{
			HighThreshold: sc.TempoLockConfidence,
			PromoteAfter:  sc.PromoteAfter,
		}, func(a, b float64) bool { return math.Abs(a-b) <= tol }),
		tap:     tap.NewSession(cfg.Tap),
		silence: silence.NewMonitor(cfg.Silence),
		keyMode: mode,
		vizBuf:  make([]float32, vizSpan),
		vizGate: audio.NewGate(cfg.Transport.VizSilenceCut),
	}
	return e, nil
}

// Start launches the hop ticker, both estimator workers and the display
// loop. They run until ctx is cancelled or Close is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return errors.New("engine already started")
	}
	ctx, e.cancel = context.WithCancel(ctx)

	applog.Infof("Engine: starting (hop %s, window %.1fs)", e.cfg.Analysis.Hop, e.cfg.Analysis.WindowSeconds)
	e.wg.Add(4)
	go e.hopLoop(ctx)
	go e.tempoLoop(ctx)
	go e.keyLoop(ctx)
	go e.displayLoop(ctx)
	return nil
}

// Close stops every goroutine and closes the transports.
func (e *Engine) Close() error {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	applog.Infof("Engine: stopped")
	return e.out.Close()
}

// Reset performs a soft reset: both displays return to Analyzing, held
// values and manual mode are dropped, and accumulated history is discarded.
func (e *Engine) Reset() { e.command(command{kind: cmdReset, at: time.Now()}) }

// Tap records a manual tap, entering manual tempo mode.
func (e *Engine) Tap(now time.Time) { e.command(command{kind: cmdTap, at: now}) }

// ExitManualMode hands tempo display back to the estimator.
func (e *Engine) ExitManualMode() { e.command(command{kind: cmdExitManual, at: time.Now()}) }

// SetKeyDisplayMode changes how resolved keys are rendered.
func (e *Engine) SetKeyDisplayMode(mode key.DisplayMode) {
	e.command(command{kind: cmdDisplayMode, at: time.Now(), mode: mode})
}

func (e *Engine) command(c command) {
	select {
	case e.cmds <- c:
	default:
		e.log.Warn().Int("kind", int(c.kind)).Msg("command queue full, dropping")
	}
}

// Viz returns the current level and points decimated samples of the newest
// audio. Safe to call from any goroutine.
func (e *Engine) Viz(points int) VizFrame {
	frame := VizFrame{Samples: make([]float32, max(points, 0)), Timestamp: time.Now()}

	e.vizMu.Lock()
	defer e.vizMu.Unlock()
	n := e.src.Latest(e.vizBuf)
	recent := e.vizBuf[len(e.vizBuf)-n:]
	rms := math.Min(analysis.RMS(recent), 1)
	if !e.vizGate.Open(rms) {
		return frame
	}
	frame.RMS = rms
	analysis.Decimate(frame.Samples, recent)
	return frame
}

func (e *Engine) hopLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.Analysis.Hop)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			j, lvl := e.hop(now)
			select {
			case e.msgs <- lvl:
			case <-ctx.Done():
				return
			}
			e.post(e.tempoJobs, j, "tempo")
			e.post(e.keyJobs, j, "key")
		}
	}
}

// hop takes the snapshot for one analysis step and measures the newest
// hop's level.
func (e *Engine) hop(now time.Time) (job, levelMsg) {
	w := e.src.Snapshot(e.windowLen)
	recent := w.Samples[max(len(w.Samples)-e.hopLen, 0):]
	return job{window: w, epoch: e.epoch.Load(), at: now},
		levelMsg{rms: analysis.RMS(recent), report: e.src.Report(), at: now}
}

// post hands j to a worker without waiting; a busy worker skips this hop.
func (e *Engine) post(ch chan<- job, j job, name string) {
	select {
	case ch <- j:
	default:
		e.log.Debug().Str("worker", name).Msg("estimator busy, skipping hop")
	}
}

func (e *Engine) tempoLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.tempoJobs:
			e.deliver(ctx, e.tempoW.run(j))
		}
	}
}

func (e *Engine) keyLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.keyJobs:
			e.deliver(ctx, e.keyW.run(j))
		}
	}
}

func (e *Engine) deliver(ctx context.Context, msg any) {
	select {
	case e.msgs <- msg:
	case <-ctx.Done():
	}
}

func (e *Engine) displayLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-e.msgs:
			e.handle(m)
		case c := <-e.cmds:
			e.handle(c)
		}
	}
}

// handle applies one message to the display state. Only the display loop
// calls it.
func (e *Engine) handle(m any) {
	switch m := m.(type) {
	case levelMsg:
		e.onLevel(m)
	case tempoMsg:
		if m.epoch != e.epoch.Load() {
			return
		}
		if m.est.Valid {
			e.lastChoice = m.est.Choice
		}
		e.tempoStab.Update(stabilizer.Estimate[float64]{
			Value:      m.est.BPM,
			Valid:      m.est.Valid,
			Confidence: m.est.Confidence,
			Timestamp:  m.at,
		})
	case keyMsg:
		if m.epoch != e.epoch.Load() {
			return
		}
		e.keyStab.Update(stabilizer.Estimate[key.Key]{
			Value:      m.est.Key,
			Valid:      m.est.Valid && !m.est.Atonal,
			Atonal:     m.est.Atonal,
			Confidence: m.est.Confidence,
			Timestamp:  m.at,
		})
	case command:
		e.onCommand(m)
	}
}

func (e *Engine) onLevel(m levelMsg) {
	if !e.haveReport || reportChanged(e.lastReport, m.report) {
		e.lastReport, e.haveReport = m.report, true
		e.emit(newCaptureEvent(m.report, m.at))
	}

	ev := e.silence.Observe(m.rms, m.at)
	if ev.WaitingChanged {
		e.emit(SilenceEvent{Type: TypeSilence, Waiting: ev.Waiting, Timestamp: m.at})
	}
	if ev.Reset {
		applog.Infof("Engine: %s of silence, resetting", e.cfg.Silence.Timeout)
		e.softReset()
	}

	e.emit(e.tempoEvent(m.at))
	e.emit(e.keyEvent(m.at))
}

func (e *Engine) onCommand(c command) {
	switch c.kind {
	case cmdReset:
		applog.Infof("Engine: reset requested")
		e.softReset()
	case cmdTap:
		if bpm, ok := e.tap.Tap(c.at); ok {
			e.manualStab.Update(stabilizer.Estimate[float64]{
				Value:      bpm,
				Valid:      true,
				Confidence: e.tap.Confidence(),
				Timestamp:  c.at,
			})
		}
	case cmdExitManual:
		e.tap.Exit()
		e.manualStab.Reset()
	case cmdDisplayMode:
		e.keyMode = c.mode
		e.emit(e.keyEvent(c.at))
		return
	}
	e.emit(e.tempoEvent(c.at))
	if c.kind == cmdReset {
		e.emit(e.keyEvent(c.at))
	}
}

// softReset invalidates in-flight results, discards ring history and clears
// every display. Workers drop their own history when they see the new epoch.
func (e *Engine) softReset() {
	e.epoch.Add(1)
	e.src.Discard()
	e.tempoStab.Reset()
	e.keyStab.Reset()
	e.manualStab.Reset()
	e.tap.Exit()
}

func (e *Engine) tempoEvent(now time.Time) TempoEvent {
	if e.tap.Active() {
		st := e.manualStab.State()
		ev := TempoEvent{
			Type:       TypeTempo,
			Manual:     true,
			Taps:       e.tap.Taps(),
			Confidence: st.Confidence,
			State:      st.State,
			Band:       st.Band,
			Timestamp:  now,
		}
		if st.HasValue {
			ev.BPM, ev.HasBPM = math.Round(st.Value*10)/10, true
		}
		return ev
	}

	st := e.tempoStab.State()
	ev := TempoEvent{
		Type:       TypeTempo,
		Confidence: st.Confidence,
		State:      st.State,
		Band:       st.Band,
		Timestamp:  now,
	}
	if st.HasValue {
		ev.BPM, ev.HasBPM = math.Round(st.Value*10)/10, true
		ev.Choice = e.lastChoice.String()
	}
	return ev
}

func (e *Engine) keyEvent(now time.Time) KeyEvent {
	st := e.keyStab.State()
	ev := KeyEvent{
		Type:        TypeKey,
		Confidence:  st.Confidence,
		State:       st.State,
		Band:        st.Band,
		DisplayMode: e.keyMode,
		Timestamp:   now,
	}
	if st.HasValue {
		ev.Key = st.Value.String()
		ev.Camelot = st.Value.Camelot()
		ev.Display = e.keyMode.Format(st.Value)
	}
	return ev
}

func (e *Engine) emit(ev any) {
	if err := e.out.Send(ev); err != nil {
		e.log.Debug().Err(err).Msg("transport send failed")
	}
}

func reportChanged(a, b audio.Report) bool {
	if a.Status != b.Status || a.Backend != b.Backend || a.Generation != b.Generation {
		return true
	}
	return (a.Err == nil) != (b.Err == nil)
}
