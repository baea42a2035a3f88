package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/voicedesk/messages"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	readLimit       = 512 * 1024
)

// wsConn is the part of *websocket.Conn the downstream adapters use.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// Downstream is the client half of a relay session. Sends never fail: once
// the connection is closed they are no-ops.
type Downstream interface {
	Start(h Handlers)
	SendAudio(data string)
	SendText(text string)
	SendTurnComplete()
	SendInterrupted()
	Close()
	Done() <-chan struct{}
	LastActivity() time.Time
	Transport() string
}

// Handlers receive decoded client input. They run on the read goroutine, in
// receipt order; the next frame is not read until they return.
type Handlers struct {
	OnAudio func(data string) // base64 PCM16 mono 16 kHz
	OnText  func(text string)
	OnClose func()
}

// socket is the write side shared by the downstream adapters. writePump is
// the only goroutine that writes to conn.
type socket struct {
	conn      wsConn
	logger    *slog.Logger
	keepAlive time.Duration

	out  chan []byte
	done chan struct{}

	mu           sync.RWMutex
	started      bool
	closed       bool
	lastActivity time.Time
	onClose      func()

	closeOnce sync.Once
}

func newSocket(conn wsConn, logger *slog.Logger, keepAlive time.Duration) *socket {
	if logger == nil {
		logger = slog.Default()
	}
	conn.SetReadLimit(readLimit)
	return &socket{
		conn:         conn,
		logger:       logger,
		keepAlive:    keepAlive,
		out:          make(chan []byte, writeBufferSize),
		done:         make(chan struct{}),
		lastActivity: time.Now(),
	}
}

func (s *socket) start(onClose func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return false
	}
	s.started = true
	s.onClose = onClose
	go s.writePump()
	return true
}

// enqueue hands a frame to the write pump. It blocks while the queue is full
// so frames are neither dropped nor reordered, and returns immediately once
// the socket is closed.
func (s *socket) enqueue(v any) {
	if s.isClosed() {
		return
	}
	data, err := messages.Encode(v)
	if err != nil {
		s.logger.Error("failed to encode client frame", "err", err)
		return
	}
	select {
	case s.out <- data:
		s.touch()
	case <-s.done:
	}
}

func (s *socket) writePump() {
	defer func() {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = s.conn.Close()
	}()

	var ping <-chan time.Time
	if s.keepAlive > 0 {
		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-s.done:
			return
		case data := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Error("client write failed", "err", err)
				s.shutdown()
				return
			}
		case <-ping:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Error("client ping failed", "err", err)
				s.shutdown()
				return
			}
		}
	}
}

// shutdown marks the socket closed and fires onClose once. The write pump
// closes the connection on its way out; an unstarted socket is closed here.
func (s *socket) shutdown() {
	var onClose func()
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		started := s.started
		onClose = s.onClose
		s.mu.Unlock()

		close(s.done)
		if !started {
			_ = s.conn.Close()
		}
	})
	if onClose != nil {
		onClose()
	}
}

func (s *socket) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *socket) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity is the time of the most recent frame in either direction.
func (s *socket) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *socket) Close() {
	s.shutdown()
}

func (s *socket) Done() <-chan struct{} {
	return s.done
}
