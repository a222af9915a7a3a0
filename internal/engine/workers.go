// SPDX-License-Identifier: MIT
package engine

import (
	"tempokey/internal/analysis"
	"tempokey/internal/key"
	"tempokey/internal/tempo"
)

// history tracks which epoch and ring generation a worker's estimator state
// belongs to.
type history struct {
	epoch      uint64
	generation uint64
}

// stale records j's epoch and generation and reports whether they differ
// from the previous job's.
func (h *history) stale(j job) bool {
	changed := j.epoch != h.epoch || j.window.Generation != h.generation
	h.epoch, h.generation = j.epoch, j.window.Generation
	return changed
}

// tempoWorker is owned by the tempo goroutine.
type tempoWorker struct {
	env analysis.EnvelopeExtractor
	est *tempo.Estimator
	history
}

func (w *tempoWorker) run(j job) tempoMsg {
	if w.stale(j) {
		w.est.Reset()
	}
	return tempoMsg{est: w.est.Estimate(w.env.Envelope(j.window)), epoch: j.epoch, at: j.at}
}

// keyWorker is owned by the key goroutine. The key estimator keeps no
// history of its own, so only the stamping matters here.
type keyWorker struct {
	est *key.Estimator
}

func (w *keyWorker) run(j job) keyMsg {
	return keyMsg{est: w.est.Estimate(j.window), epoch: j.epoch, at: j.at}
}
