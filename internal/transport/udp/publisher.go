// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	applog "tempokey/internal/log"
)

// Frame is one visualization frame: level plus decimated samples.
type Frame struct {
	RMS       float64
	Samples   []float32
	Timestamp time.Time
}

// FrameSource produces visualization frames on demand.
type FrameSource interface {
	Frame(points int) Frame
}

// FrameFunc adapts a function to FrameSource.
type FrameFunc func(points int) Frame

// Frame calls f.
func (f FrameFunc) Frame(points int) Frame { return f(points) }

// PacketSender is the part of UDPSender the publisher needs.
type PacketSender interface {
	Send(data []byte) error
}

// UDPPublisher periodically fetches a visualization frame, packs it into the
// binary format below and sends it with a PacketSender.
// It runs in a separate goroutine managed by Start and Stop.
type UDPPublisher struct {
	sender   PacketSender
	source   FrameSource
	interval time.Duration
	points   int

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum  uint32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates a publisher sending points-sample frames from
// source every interval. An invalid interval defaults to 33ms (~30 FPS).
func NewUDPPublisher(interval time.Duration, points int, sender PacketSender, source FrameSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: frame source cannot be nil")
	}
	if points <= 0 || points > math.MaxUint16 {
		return nil, fmt.Errorf("UDPPublisher: %d points per frame out of range", points)
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	applog.Infof("UDPPublisher: Initializing (Interval: %s, Points: %d)", interval, points)
	return &UDPPublisher{
		sender:       sender,
		source:       source,
		interval:     interval,
		points:       points,
		packetBuffer: bytes.NewBuffer(make([]byte, 0, headerSize+4*points)),
	}, nil
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; later calls are no-ops while running.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Publisher goroutine finished.")
	return nil
}

/*
UDP Packet Structure (BigEndian)

+---------------------------------------------------------------------------+
| Field           | Data Type | Size (Bytes) | Description                  |
|-----------------|-----------|--------------|------------------------------|
| Sequence Number | uint32    | 4            | Monotonically increasing     |
| Timestamp       | int64     | 8            | Nanoseconds since epoch      |
| RMS             | float32   | 4            | Level, 0 when silent         |
| Sample Count    | uint16    | 2            | Number of samples (N)        |
| Samples         | []float32 | N * 4        | Decimated mono, in [-1, 1]   |
+---------------------------------------------------------------------------+
*/

const headerSize = 4 + 8 + 4 + 2

// EncodePacket appends one frame to buf in the wire format above.
func EncodePacket(buf *bytes.Buffer, seq uint32, f Frame) error {
	err := binary.Write(buf, binary.BigEndian, seq)
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, f.Timestamp.UnixNano())
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, float32(f.RMS))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint16(len(f.Samples)))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, f.Samples)
	}
	return err
}

// publish builds and sends one packet.
func (p *UDPPublisher) publish() {
	frame := p.source.Frame(p.points)
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}

	p.sequenceNum++
	p.packetBuffer.Reset()
	if err := EncodePacket(p.packetBuffer, p.sequenceNum, frame); err != nil {
		applog.Errorf("UDPPublisher: Error packing frame: %v", err)
		return
	}
	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		applog.Debugf("UDPPublisher: Send failed: %v", err)
	}
}

// Close implements the io.Closer interface. It stops the publisher goroutine.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
