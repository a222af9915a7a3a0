// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"sync"
)

// Transport defines a generic interface for publishing analyzer events.
// Implementations must be safe for concurrent use and must not block the
// caller for long; slow consumers drop events instead.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans every event out to a fixed set of transports.
type Multi struct {
	outs []Transport
}

// NewMulti creates a fan-out over outs, skipping nil entries.
func NewMulti(outs ...Transport) *Multi {
	m := &Multi{}
	for _, t := range outs {
		if t != nil {
			m.outs = append(m.outs, t)
		}
	}
	return m
}

// Send delivers data to every transport and joins their errors.
func (m *Multi) Send(data any) error {
	var errs []error
	for _, t := range m.outs {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, t := range m.outs {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChannelTransport hands events to an in-process consumer such as the TUI.
// When the consumer falls behind, new events are dropped.
type ChannelTransport struct {
	mu     sync.RWMutex
	ch     chan any
	closed bool
}

// NewChannelTransport creates a channel transport buffering up to size events.
func NewChannelTransport(size int) *ChannelTransport {
	return &ChannelTransport{ch: make(chan any, max(size, 1))}
}

// C returns the receive side. It is closed by Close.
func (c *ChannelTransport) C() <-chan any { return c.ch }

// Send queues data without blocking.
func (c *ChannelTransport) Send(data any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.ch <- data:
	default:
	}
	return nil
}

// Close closes the channel. Later sends return ErrClosed.
func (c *ChannelTransport) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

var (
	_ Transport = (*Multi)(nil)
	_ Transport = (*ChannelTransport)(nil)
)
