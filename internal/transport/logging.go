// SPDX-License-Identifier: MIT
package transport

import (
	"sync"

	"github.com/rs/zerolog"

	applog "tempokey/internal/log"
)

// Describer turns an event into a kind and a one-line summary. Returning an
// empty kind skips the event.
type Describer func(data any) (kind, summary string)

// LoggingTransport implements Transport by logging events. It is the output
// of headless mode, so it only logs a kind of event when its summary changes.
type LoggingTransport struct {
	log      zerolog.Logger
	describe Describer

	mu   sync.Mutex
	last map[string]string
}

// NewLoggingTransport creates a logging transport using describe.
func NewLoggingTransport(describe Describer) *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{
		log:      applog.Component("events"),
		describe: describe,
		last:     make(map[string]string),
	}
}

// Send logs data if its summary differs from the previous one of its kind.
func (lt *LoggingTransport) Send(data any) error {
	kind, summary := lt.describe(data)
	if kind == "" {
		return nil
	}
	lt.mu.Lock()
	changed := lt.last[kind] != summary
	lt.last[kind] = summary
	lt.mu.Unlock()

	if changed {
		lt.log.Info().Str("type", kind).Msg(summary)
	}
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LoggingTransport: Close called")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
