package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/room4-2/voicedesk/functions"
	"github.com/room4-2/voicedesk/gemini"
	"github.com/room4-2/voicedesk/metrics"
)

// State is the lifecycle position of a relay session.
type State int

const (
	StateConnecting State = iota
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ToolExecutor runs a tool call and always produces a result payload.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) any
}

// Relay pairs one downstream client with one Gemini connection. Client
// frames are forwarded upstream in receipt order while READY; provider
// output goes back down the same way. Tool calls run on their own goroutines
// so forwarding continues while they are pending.
type Relay struct {
	ID        string
	CreatedAt time.Time

	down   Downstream
	up     *gemini.Proxy
	tools  ToolExecutor
	logger *slog.Logger

	mu         sync.RWMutex
	state      State
	turnActive bool

	toolCtx context.Context
	pending sync.WaitGroup
	done    chan struct{}
}

// NewRelay wires a session. Nothing is dialed until Run.
func NewRelay(id string, down Downstream, up *gemini.Proxy, tools ToolExecutor, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		ID:        id,
		CreatedAt: time.Now(),
		down:      down,
		up:        up,
		tools:     tools,
		logger:    logger,
		toolCtx:   context.Background(),
		done:      make(chan struct{}),
	}
}

// Run opens the provider connection and starts both pumps. A connection
// failure closes the client and is returned; the client is expected to
// reconnect.
func (r *Relay) Run(ctx context.Context) error {
	r.up.OnAudio = func(data string) {
		if r.setTurn(true) {
			r.down.SendAudio(data)
		}
	}
	r.up.OnText = func(text string) {
		if r.setTurn(true) {
			r.down.SendText(text)
		}
	}
	r.up.OnTurnComplete = func() {
		if r.setTurn(false) {
			r.down.SendTurnComplete()
		}
	}
	r.up.OnInterrupted = func() {
		if r.setTurn(false) {
			r.down.SendInterrupted()
		}
	}
	r.up.OnToolCall = r.handleToolCall
	r.up.OnError = func(err error) {
		r.logger.Warn("gemini error", "err", err)
	}
	r.up.OnClose = func() { r.teardown("provider closed") }

	// Tool calls outlive the request that created the session.
	r.toolCtx = context.WithoutCancel(ctx)

	if err := r.up.Open(ctx); err != nil {
		r.logger.Error("failed to connect to provider", "err", err)
		r.teardown("provider connect failed")
		return err
	}

	if !r.transition(StateConnecting, StateReady) {
		return fmt.Errorf("session %s closed while connecting", r.ID)
	}
	r.logger.Info("session ready")

	r.down.Start(Handlers{
		OnAudio: r.forwardAudio,
		OnText:  r.forwardText,
		OnClose: func() { r.teardown("client closed") },
	})
	r.up.StartReceiving()
	return nil
}

// setTurn records whether the model is mid-turn and reports whether the
// session is READY.
func (r *Relay) setTurn(active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReady {
		return false
	}
	r.turnActive = active
	return true
}

func (r *Relay) forwardAudio(data string) {
	if r.State() != StateReady {
		return
	}
	if err := r.up.SendAudio(data); err != nil {
		r.logSendError("audio", err)
	}
}

func (r *Relay) forwardText(text string) {
	if r.State() != StateReady {
		return
	}
	r.logger.Info("client text", "text", text)
	if err := r.up.SendText(text); err != nil {
		r.logSendError("text", err)
	}
}

func (r *Relay) logSendError(kind string, err error) {
	if errors.Is(err, gemini.ErrNotOpen) {
		r.logger.Debug("dropping client frame, provider not open", "kind", kind)
		return
	}
	metrics.ProtocolErrors.WithLabelValues(metrics.Downstream).Inc()
	r.logger.Warn("failed to forward client frame", "kind", kind, "err", err)
}

func (r *Relay) handleToolCall(call gemini.ToolCall) {
	// Registered under the lock so teardown never races a late Add.
	r.mu.RLock()
	ready := r.state == StateReady
	if ready {
		r.pending.Add(1)
	}
	r.mu.RUnlock()
	if !ready {
		return
	}
	if call.Name != functions.GetCurrentTime {
		r.down.SendText(fmt.Sprintf("📅 Accessing Outlook for %s...", call.Name))
	}

	go func() {
		defer r.pending.Done()

		result := r.tools.Execute(r.toolCtx, call.Name, call.Args)
		if r.State() != StateReady {
			r.logger.Info("discarding tool result for closed session", "tool", call.Name, "id", call.ID)
			return
		}
		if err := r.up.SendToolResult(call.ID, call.Name, result); err != nil {
			r.logger.Error("failed to send tool result", "tool", call.Name, "err", err)
		}
	}()
}

// Close ends the session from the server side.
func (r *Relay) Close() {
	r.teardown("closed by server")
}

// teardown moves to CLOSING, closes whichever side is still open and ends
// in CLOSED. Re-entrant calls from the close callbacks return immediately.
func (r *Relay) teardown(reason string) {
	r.mu.Lock()
	if r.state >= StateClosing {
		r.mu.Unlock()
		return
	}
	r.state = StateClosing
	r.mu.Unlock()

	r.logger.Info("closing session", "reason", reason)
	if err := r.up.Close(); err != nil {
		r.logger.Debug("provider close", "err", err)
	}
	r.down.Close()

	r.mu.Lock()
	r.state = StateClosed
	r.mu.Unlock()
	close(r.done)
}

func (r *Relay) transition(from, to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != from {
		return false
	}
	r.state = to
	return true
}

// State reports the current lifecycle state.
func (r *Relay) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Done is closed once the session reaches CLOSED.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// WaitTools blocks until in-flight tool calls have returned or ctx ends.
// After Close no new calls are started, so a nil return means every
// side effect the session triggered has finished.
func (r *Relay) WaitTools(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TurnActive reports whether the model is producing a response that has
// not yet completed or been interrupted.
func (r *Relay) TurnActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.turnActive
}

// Transport names the downstream kind, browser or twilio.
func (r *Relay) Transport() string {
	return r.down.Transport()
}

// LastActivity is the last time the client sent anything.
func (r *Relay) LastActivity() time.Time {
	return r.down.LastActivity()
}
