// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package wsmirror mirrors client traffic to a websocket endpoint.
//
// Every frame and error becomes one binary message holding a CBOR array
// [kind, payload_map]. Frame payloads use the keys below; error payloads
// carry the time and message. Messages are queued and written by a
// separate goroutine; when the queue is full new events are dropped and
// counted so the client never waits on the network.
package wsmirror

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/Thermoquad/knxstat/internal/logger"
	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

var log = logger.Logger("wsmirror")

// Event kinds
const (
	KindFrame uint8 = 1
	KindError uint8 = 2
)

// Directions of mirrored frames
const (
	DirectionIncoming uint8 = 0
	DirectionOutgoing uint8 = 1
)

// Payload map keys
const (
	KeyDirection = 0
	KeyTime      = 1 // unix milliseconds
	KeyService   = 2
	KeyRaw       = 3
	KeyMessage   = 4
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Options configures Dial.
type Options struct {
	URL           string
	Username      string
	Password      string
	SkipTLSVerify bool
	// QueueSize bounds pending events; 0 uses 256
	QueueSize int
}

// Mirror is a plugin forwarding frames and errors to a websocket.
type Mirror struct {
	conn *websocket.Conn
	now  func() time.Time

	mu      sync.RWMutex
	closed  bool
	events  chan []byte
	dropped atomic.Uint64
	failed  atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to opts.URL with optional HTTP Basic auth and starts the
// writer.
func Dial(ctx context.Context, opts Options) (*Mirror, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.SkipTLSVerify}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, opts.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}

	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	m := newMirror(conn, size)
	go m.writeLoop()
	go m.discardReads()
	log.Infow("mirroring traffic", "url", opts.URL)
	return m, nil
}

func newMirror(conn *websocket.Conn, queue int) *Mirror {
	return &Mirror{
		conn:   conn,
		now:    time.Now,
		events: make(chan []byte, queue),
		done:   make(chan struct{}),
	}
}

// OnIncomingFrame mirrors a received frame
func (m *Mirror) OnIncomingFrame(f knxnet.Frame) {
	m.frame(DirectionIncoming, f)
}

// OnOutgoingFrame mirrors a sent frame
func (m *Mirror) OnOutgoingFrame(f knxnet.Frame) {
	m.frame(DirectionOutgoing, f)
}

// OnError mirrors a session error
func (m *Mirror) OnError(err error) {
	m.enqueue(KindError, map[int]any{
		KeyTime:    m.now().UnixMilli(),
		KeyMessage: err.Error(),
	})
}

// OnShutdown flushes and closes the connection
func (m *Mirror) OnShutdown() error {
	return m.Close()
}

func (m *Mirror) frame(dir uint8, f knxnet.Frame) {
	m.enqueue(KindFrame, map[int]any{
		KeyDirection: dir,
		KeyTime:      m.now().UnixMilli(),
		KeyService:   uint16(f.Service()),
		KeyRaw:       knxnet.Encode(f.Body),
	})
}

func (m *Mirror) enqueue(kind uint8, payload map[int]any) {
	data, err := cbor.Marshal([]any{kind, payload})
	if err != nil {
		log.Warnw("encoding mirror event", "err", err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed || m.failed.Load() {
		m.dropped.Add(1)
		return
	}
	select {
	case m.events <- data:
	default:
		m.dropped.Add(1)
	}
}

// Dropped returns the number of events that were not delivered
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Mirror) writeLoop() {
	defer close(m.done)
	for data := range m.events {
		if m.failed.Load() {
			m.dropped.Add(1)
			continue
		}
		if err := m.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err == nil {
			err = m.conn.WriteMessage(websocket.BinaryMessage, data)
		}
		if err != nil {
			log.Warnw("mirror write failed, dropping further events", "err", err)
			m.failed.Store(true)
			m.dropped.Add(1)
		}
	}
}

// discardReads services control frames until the connection closes
func (m *Mirror) discardReads() {
	for {
		if _, _, err := m.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close drains queued events and closes the connection
func (m *Mirror) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.events)
		m.mu.Unlock()

		<-m.done
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = m.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = m.conn.Close()
		if n := m.Dropped(); n > 0 {
			log.Warnw("mirror dropped events", "count", n)
		}
	})
	return err
}
