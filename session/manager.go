package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/room4-2/voicedesk/gemini"
	"github.com/room4-2/voicedesk/metrics"
)

const activeSessionsKey = "active_sessions"

// ErrMaxSessions is returned by Create when the session cap is reached.
var ErrMaxSessions = errors.New("maximum sessions reached")

// ManagerOptions tunes a Manager.
type ManagerOptions struct {
	MaxSessions    int
	SessionTimeout time.Duration
	// Redis mirrors the active sessions for operators. Nil disables it.
	Redis  *redis.Client
	Logger *slog.Logger
}

// Manager owns every live relay session.
type Manager struct {
	dial  gemini.DialFunc
	setup func() gemini.Setup
	tools ToolExecutor
	opts  ManagerOptions

	mu       sync.RWMutex
	sessions map[string]*Relay
	logger   *slog.Logger
}

// NewManager creates a manager. setup is called once per session so the
// system instruction carries the date the session opened.
func NewManager(dial gemini.DialFunc, setup func() gemini.Setup, tools ToolExecutor, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dial:     dial,
		setup:    setup,
		tools:    tools,
		opts:     opts,
		sessions: make(map[string]*Relay),
		logger:   logger,
	}
}

// ConnectRedis returns a client for addr, or nil when addr is empty or the
// server does not answer. addr is either host:port or a redis:// URL.
func ConnectRedis(ctx context.Context, addr, password string, logger *slog.Logger) *redis.Client {
	if addr == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := &redis.Options{Addr: addr, Password: password}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			logger.Warn("invalid REDIS_URL, session registry disabled", "err", err)
			return nil
		}
		if password != "" {
			parsed.Password = password
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, session registry disabled", "err", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Create registers a session for down and connects it upstream. The
// returned relay is READY. On ErrMaxSessions the caller still owns down;
// on any other error it has already been closed.
func (m *Manager) Create(ctx context.Context, down Downstream) (*Relay, error) {
	id := uuid.New().String()
	logger := m.logger.With("session", id[:8], "transport", down.Transport())

	m.mu.Lock()
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, ErrMaxSessions
	}
	proxy := gemini.NewProxy(m.dial, m.setup(), logger)
	relay := NewRelay(id, down, proxy, m.tools, logger)
	m.sessions[id] = relay
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.WithLabelValues(down.Transport()).Inc()
	m.store(ctx, relay)

	go func() {
		<-relay.Done()
		m.remove(context.WithoutCancel(ctx), id)
	}()

	if err := relay.Run(ctx); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	logger.Info("session created")
	return relay, nil
}

func (m *Manager) store(ctx context.Context, relay *Relay) {
	if m.opts.Redis == nil {
		return
	}
	key := "session:" + relay.ID
	pipe := m.opts.Redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"created_at":    relay.CreatedAt.Format(time.RFC3339),
		"last_activity": relay.LastActivity().Format(time.RFC3339),
		"status":        "active",
		"transport":     relay.Transport(),
	})
	pipe.SAdd(ctx, activeSessionsKey, relay.ID)
	if m.opts.SessionTimeout > 0 {
		pipe.Expire(ctx, key, m.opts.SessionTimeout)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.Warn("failed to record session in redis", "session", relay.ID, "err", err)
	}
}

// remove forgets a session. It is idempotent.
func (m *Manager) remove(ctx context.Context, id string) {
	m.mu.Lock()
	relay, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	relay.Close()
	metrics.SessionsActive.Dec()

	if m.opts.Redis != nil {
		pipe := m.opts.Redis.TxPipeline()
		pipe.Del(ctx, "session:"+id)
		pipe.SRem(ctx, activeSessionsKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			m.logger.Warn("failed to remove session from redis", "session", id, "err", err)
		}
	}
	m.logger.Info("session removed", "session", id[:8])
}

func (m *Manager) get(id string) (*Relay, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	relay, ok := m.sessions[id]
	return relay, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupInactive closes sessions idle for longer than the session timeout
// and refreshes the registry entry of the others.
func (m *Manager) CleanupInactive(ctx context.Context) {
	if m.opts.SessionTimeout <= 0 {
		return
	}
	now := time.Now()

	m.mu.RLock()
	var idle, active []*Relay
	for _, relay := range m.sessions {
		if now.Sub(relay.LastActivity()) > m.opts.SessionTimeout {
			idle = append(idle, relay)
		} else {
			active = append(active, relay)
		}
	}
	m.mu.RUnlock()

	for _, relay := range idle {
		m.logger.Info("closing idle session", "session", relay.ID[:8])
		m.remove(ctx, relay.ID)
	}
	for _, relay := range active {
		if relay.State() == StateReady {
			m.store(ctx, relay)
		}
	}
}

// StartCleanupRoutine runs CleanupInactive every interval until ctx ends.
func (m *Manager) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupInactive(ctx)
		}
	}
}

// Shutdown closes every session, then waits for their in-flight tool calls
// (bookings in particular) until ctx ends, and closes the registry
// connection. Results of those calls are not delivered.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	relays := make([]*Relay, 0, len(m.sessions))
	for _, relay := range m.sessions {
		relays = append(relays, relay)
	}
	m.mu.RUnlock()

	for _, relay := range relays {
		m.remove(ctx, relay.ID)
	}
	for _, relay := range relays {
		if err := relay.WaitTools(ctx); err != nil {
			m.logger.Warn("abandoning in-flight tool calls", "session", relay.ID[:8], "err", err)
		}
	}
	if m.opts.Redis != nil {
		_ = m.opts.Redis.Close()
	}
}
