package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/room4-2/voicedesk/gemini"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLive stands in for a Gemini Live connection.
type fakeLive struct {
	incoming chan *genai.LiveServerMessage
	sent     chan any

	mu     sync.Mutex
	closes int
	closed chan struct{}
	hungUp chan struct{}
}

func newFakeLive() *fakeLive {
	return &fakeLive{
		incoming: make(chan *genai.LiveServerMessage, 16),
		sent:     make(chan any, 256),
		closed:   make(chan struct{}),
		hungUp:   make(chan struct{}),
	}
}

// hangUp ends the stream from the provider side.
func (f *fakeLive) hangUp() { close(f.hungUp) }

func (f *fakeLive) Receive() (*genai.LiveServerMessage, error) {
	select {
	case msg := <-f.incoming:
		return msg, nil
	case <-f.closed:
		return nil, io.EOF
	case <-f.hungUp:
		return nil, io.EOF
	}
}

func (f *fakeLive) SendClientContent(in genai.LiveClientContentInput) error {
	f.sent <- in
	return nil
}

func (f *fakeLive) SendRealtimeInput(in genai.LiveRealtimeInput) error {
	f.sent <- in
	return nil
}

func (f *fakeLive) SendToolResponse(in genai.LiveToolResponseInput) error {
	f.sent <- in
	return nil
}

func (f *fakeLive) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if f.closes == 1 {
		close(f.closed)
	}
	return nil
}

func (f *fakeLive) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeLive) dial(context.Context, string, *genai.LiveConnectConfig) (gemini.LiveConn, error) {
	return f, nil
}

func failingDial(context.Context, string, *genai.LiveConnectConfig) (gemini.LiveConn, error) {
	return nil, errors.New("provider unreachable")
}

// fakeDown is a Downstream that records what the relay sends.
type fakeDown struct {
	sent    chan string
	started chan struct{}
	done    chan struct{}
	last    time.Time

	mu     sync.Mutex
	h      Handlers
	closes int
}

func newFakeDown() *fakeDown {
	return &fakeDown{
		sent:    make(chan string, 256),
		started: make(chan struct{}),
		done:    make(chan struct{}),
		last:    time.Now(),
	}
}

func (f *fakeDown) Start(h Handlers) {
	f.mu.Lock()
	f.h = h
	f.mu.Unlock()
	close(f.started)
}

func (f *fakeDown) handlers() Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

func (f *fakeDown) SendAudio(data string) { f.sent <- "audio:" + data }
func (f *fakeDown) SendText(text string)  { f.sent <- "text:" + text }
func (f *fakeDown) SendTurnComplete()     { f.sent <- "turnComplete" }
func (f *fakeDown) SendInterrupted()      { f.sent <- "interrupted" }
func (f *fakeDown) Transport() string     { return TransportBrowser }
func (f *fakeDown) Done() <-chan struct{} { return f.done }

func (f *fakeDown) LastActivity() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeDown) setLastActivity(t time.Time) {
	f.mu.Lock()
	f.last = t
	f.mu.Unlock()
}

// Close mimics the real adapters: OnClose fires once, on the first close.
func (f *fakeDown) Close() {
	f.mu.Lock()
	f.closes++
	first := f.closes == 1
	onClose := f.h.OnClose
	f.mu.Unlock()
	if !first {
		return
	}
	close(f.done)
	if onClose != nil {
		onClose()
	}
}

func (f *fakeDown) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// fakeTools records tool calls; calls block on gate when it is set.
type fakeTools struct {
	gate   chan struct{}
	result any
	calls  chan string
}

func newFakeTools() *fakeTools {
	return &fakeTools{calls: make(chan string, 16), result: map[string]any{"ok": true}}
}

func (f *fakeTools) Execute(ctx context.Context, name string, args map[string]any) any {
	f.calls <- name
	if f.gate != nil {
		<-f.gate
	}
	return f.result
}

// fakeWS stands in for a gorilla websocket connection.
type fakeWS struct {
	incoming chan wsFrame
	written  chan wsFrame

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

type wsFrame struct {
	kind int
	data []byte
	err  error
}

func newFakeWS() *fakeWS {
	return &fakeWS{
		incoming: make(chan wsFrame, 64),
		written:  make(chan wsFrame, 256),
		done:     make(chan struct{}),
	}
}

func (f *fakeWS) ReadMessage() (int, []byte, error) {
	select {
	case fr := <-f.incoming:
		return fr.kind, fr.data, fr.err
	case <-f.done:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeWS) WriteMessage(kind int, data []byte) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return websocket.ErrCloseSent
	}
	f.written <- wsFrame{kind: kind, data: data}
	return nil
}

func (f *fakeWS) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeWS) SetReadLimit(int64)               {}

func (f *fakeWS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeWS) send(data string) {
	f.incoming <- wsFrame{kind: websocket.TextMessage, data: []byte(data)}
}

// nextText returns the next text frame written, skipping control frames.
func (f *fakeWS) nextText(timeout time.Duration) (string, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case fr := <-f.written:
			if fr.kind == websocket.TextMessage {
				return string(fr.data), true
			}
		case <-deadline:
			return "", false
		}
	}
}
