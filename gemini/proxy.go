// Package gemini owns the upstream half of a relay session: one Gemini Live
// connection, its setup handshake and the classification of what it sends.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/room4-2/voicedesk/metrics"
)

const (
	// DefaultModel is used when Setup.Model is empty.
	DefaultModel = "models/gemini-2.0-flash-exp"

	inputMIMEType = "audio/pcm;rate=16000"

	// Consecutive undecodable frames tolerated before the stream is treated
	// as broken.
	maxProtocolErrors = 16
)

// ErrNotOpen is returned by sends attempted before the connection is open or
// after it has closed.
var ErrNotOpen = errors.New("gemini: connection not open")

// LiveConn is the part of *genai.Session the proxy uses.
type LiveConn interface {
	Receive() (*genai.LiveServerMessage, error)
	SendClientContent(genai.LiveClientContentInput) error
	SendRealtimeInput(genai.LiveRealtimeInput) error
	SendToolResponse(genai.LiveToolResponseInput) error
	Close() error
}

// DialFunc opens a Live connection and transmits the setup frame.
type DialFunc func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (LiveConn, error)

// NewDialer returns a DialFunc backed by the Gemini API.
func NewDialer(ctx context.Context, apiKey string) (DialFunc, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (LiveConn, error) {
		session, err := client.Live.Connect(ctx, model, cfg)
		if err != nil {
			return nil, err
		}
		return session, nil
	}, nil
}

// Setup is the per-session configuration sent once when the connection
// opens.
type Setup struct {
	Model             string
	Voice             string
	SystemInstruction string
	Tools             []*genai.Tool

	// Greeting is the line the agent is asked to say as soon as setup
	// completes. Empty disables the scripted opening turn.
	Greeting      string
	GreetingDelay time.Duration
}

// ConnectConfig renders the setup frame.
func (s Setup) ConnectConfig() *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		Tools:              s.Tools,
	}
	if s.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: s.SystemInstruction}},
		}
	}
	if s.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.Voice},
			},
		}
	}
	return cfg
}

func (s Setup) model() string {
	if s.Model == "" {
		return DefaultModel
	}
	return s.Model
}

type state int

const (
	stateConnecting state = iota
	stateOpen
	stateClosed
)

// Proxy manages one connection to the Gemini Live API. Callbacks run on the
// receive goroutine, one frame at a time, in the order events were
// classified. Set them before Open.
type Proxy struct {
	dial   DialFunc
	setup  Setup
	logger *slog.Logger

	OnAudio         func(data string) // base64 PCM16
	OnText          func(text string)
	OnToolCall      func(call ToolCall)
	OnTurnComplete  func()
	OnInterrupted   func()
	OnSetupComplete func()
	OnClose         func()
	OnError         func(err error)

	mu    sync.RWMutex
	state state
	conn  LiveConn

	// gorilla connections allow a single concurrent writer.
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// NewProxy creates a proxy in the connecting state. Nothing is dialed until
// Open.
func NewProxy(dial DialFunc, setup Setup, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		dial:   dial,
		setup:  setup,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Open dials the provider and sends the setup frame. No audio or text can be
// sent before it returns successfully.
func (p *Proxy) Open(ctx context.Context) error {
	if p.dial == nil {
		return errors.New("gemini: no dialer configured")
	}
	model := p.setup.model()
	conn, err := p.dial(ctx, model, p.setup.ConnectConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to Live API: %w", err)
	}

	p.mu.Lock()
	if p.state != stateConnecting {
		p.mu.Unlock()
		_ = conn.Close()
		return ErrNotOpen
	}
	p.conn = conn
	p.state = stateOpen
	p.mu.Unlock()

	p.logger.Info("connected to Gemini Live", "model", model)
	return nil
}

// StartReceiving reads provider frames until the connection ends, then
// closes the proxy. A frame that fails to decode is logged, reported to
// OnError and skipped; the stream is only abandoned after
// maxProtocolErrors (16) such frames in a row, or on any transport error.
func (p *Proxy) StartReceiving() {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil {
		return
	}
	go p.receiveLoop(conn)
}

func (p *Proxy) receiveLoop(conn LiveConn) {
	defer p.shutdown()

	failures := 0
	for {
		msg, err := conn.Receive()
		if err != nil {
			if p.isClosed() {
				return
			}
			if isTransportError(err) {
				p.logger.Error("Gemini connection lost", "err", err)
				p.reportError(err)
				return
			}
			failures++
			metrics.ProtocolErrors.WithLabelValues(metrics.Upstream).Inc()
			p.logger.Warn("dropping malformed Gemini frame", "err", err)
			p.reportError(err)
			if failures >= maxProtocolErrors {
				p.logger.Error("too many malformed Gemini frames", "count", failures)
				return
			}
			continue
		}
		failures = 0
		p.dispatch(Classify(msg))
	}
}

func (p *Proxy) dispatch(frame Frame) {
	if frame.IgnoredCalls > 0 {
		p.logger.Warn("ignoring extra tool calls in frame", "count", frame.IgnoredCalls)
	}
	for _, ev := range frame.Events {
		switch ev.Kind {
		case EventToolCall:
			p.logger.Info("tool call from Gemini", "tool", ev.ToolCall.Name, "id", ev.ToolCall.ID)
			if p.OnToolCall != nil {
				p.OnToolCall(ev.ToolCall)
			}
		case EventSetupComplete:
			p.logger.Info("Gemini setup complete")
			if p.OnSetupComplete != nil {
				p.OnSetupComplete()
			}
			p.scheduleGreeting()
		case EventAudio:
			p.logger.Debug("audio from Gemini", "bytes", base64.StdEncoding.DecodedLen(len(ev.Audio)))
			if p.OnAudio != nil {
				p.OnAudio(ev.Audio)
			}
		case EventText:
			p.logger.Debug("text from Gemini", "text", ev.Text)
			if p.OnText != nil {
				p.OnText(ev.Text)
			}
		case EventInterrupted:
			p.logger.Debug("Gemini turn interrupted")
			if p.OnInterrupted != nil {
				p.OnInterrupted()
			}
		case EventTurnComplete:
			p.logger.Debug("Gemini turn complete")
			if p.OnTurnComplete != nil {
				p.OnTurnComplete()
			}
		}
	}
}

// scheduleGreeting asks the model to open the conversation once setup has
// completed, so the agent speaks before the caller does.
func (p *Proxy) scheduleGreeting() {
	if p.setup.Greeting == "" {
		return
	}
	prompt := fmt.Sprintf("User connected. Say exactly: '%s'", p.setup.Greeting)
	go func() {
		if p.setup.GreetingDelay > 0 {
			timer := time.NewTimer(p.setup.GreetingDelay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-p.done:
				return
			}
		}
		if err := p.sendTurn(prompt, "greeting"); err != nil && !errors.Is(err, ErrNotOpen) {
			p.logger.Warn("failed to send greeting", "err", err)
		}
	}()
}

// SendAudio forwards one base64 PCM16 16 kHz chunk.
func (p *Proxy) SendAudio(data string) error {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("invalid base64: %w", err)
	}
	err = p.write(func(conn LiveConn) error {
		return conn.SendRealtimeInput(genai.LiveRealtimeInput{
			Media: &genai.Blob{MIMEType: inputMIMEType, Data: raw},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	metrics.FramesForwarded.WithLabelValues(metrics.Upstream, "audio").Inc()
	return nil
}

// SendText sends a complete user turn.
func (p *Proxy) SendText(text string) error {
	return p.sendTurn(text, "text")
}

func (p *Proxy) sendTurn(text, kind string) error {
	turnComplete := true
	err := p.write(func(conn LiveConn) error {
		return conn.SendClientContent(genai.LiveClientContentInput{
			Turns: []*genai.Content{{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: text}},
			}},
			TurnComplete: &turnComplete,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", kind, err)
	}
	metrics.FramesForwarded.WithLabelValues(metrics.Upstream, kind).Inc()
	p.logger.Debug("sent text to Gemini", "kind", kind, "text", text)
	return nil
}

// SendToolResult answers the tool call with the given id.
func (p *Proxy) SendToolResult(id, name string, result any) error {
	err := p.write(func(conn LiveConn) error {
		return conn.SendToolResponse(genai.LiveToolResponseInput{
			FunctionResponses: []*genai.FunctionResponse{{
				ID:       id,
				Name:     name,
				Response: map[string]any{"result": result},
			}},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to send tool response: %w", err)
	}
	metrics.FramesForwarded.WithLabelValues(metrics.Upstream, "toolResponse").Inc()
	p.logger.Info("sent tool response to Gemini", "tool", name, "id", id)
	return nil
}

func (p *Proxy) write(send func(LiveConn) error) error {
	p.mu.RLock()
	conn, st := p.conn, p.state
	p.mu.RUnlock()
	if st != stateOpen || conn == nil {
		return ErrNotOpen
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return send(conn)
}

// Close terminates the connection. OnClose fires once, whichever side ends
// the connection first.
func (p *Proxy) Close() error {
	return p.shutdown()
}

// Done is closed once the proxy has shut down.
func (p *Proxy) Done() <-chan struct{} {
	return p.done
}

// shutdown runs OnClose outside the once so the callback may call Close.
func (p *Proxy) shutdown() error {
	var err error
	fired := false
	p.closeOnce.Do(func() {
		fired = true
		p.mu.Lock()
		conn := p.conn
		p.state = stateClosed
		p.mu.Unlock()

		close(p.done)
		if conn != nil {
			err = conn.Close()
		}
		p.logger.Info("Gemini connection closed")
	})
	if fired && p.OnClose != nil {
		p.OnClose()
	}
	return err
}

func (p *Proxy) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == stateClosed
}

func (p *Proxy) reportError(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}

func isTransportError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
