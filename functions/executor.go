// Package functions executes the tool calls the voice model makes mid-call:
// reading the clock, checking calendar availability and booking appointments.
package functions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/room4-2/voicedesk/calendar"
	"github.com/room4-2/voicedesk/metrics"
)

// Tool names exposed to the model.
const (
	GetCurrentTime    = "getCurrentTime"
	CheckAvailability = "checkAvailability"
	BookAppointment   = "bookAppointment"
)

const (
	DefaultTimeout = 9 * time.Second

	msgUnknownFunction = "Unknown function"
	msgServiceBusy     = "Service busy, try again."

	notifyTimeout = 30 * time.Second
)

// Calendar is the availability and booking half of the scheduling backend.
type Calendar interface {
	ListEvents(ctx context.Context, start, end time.Time) ([]calendar.Event, error)
	CreateEvent(ctx context.Context, ev calendar.NewEvent) (string, error)
}

// Notifier delivers booking confirmations.
type Notifier interface {
	SendMail(ctx context.Context, m calendar.Mail) error
}

// ErrorResult is the payload handed back to the model when a tool fails.
type ErrorResult struct {
	Error string `json:"error"`
}

// Options tunes an Executor. Zero values pick the defaults.
type Options struct {
	Timeout       time.Duration
	Location      *time.Location
	LocationLabel string
	BusinessName  string
	NotifyTo      string
	Now           func() time.Time
	Logger        *slog.Logger
}

// Executor maps a tool name and its arguments onto the scheduling backend.
// It owns argument normalization, the per-call timeout and the error shape;
// it never returns a Go error to its caller.
type Executor struct {
	cal      Calendar
	notifier Notifier

	timeout  time.Duration
	loc      *time.Location
	label    string
	business string
	notifyTo string
	now      func() time.Time
	logger   *slog.Logger

	background sync.WaitGroup
}

type toolFunc func(ctx context.Context, args map[string]any) (any, error)

// NewExecutor creates an executor. notifier may be nil to skip confirmations.
func NewExecutor(cal Calendar, notifier Notifier, opts Options) *Executor {
	e := &Executor{
		cal:      cal,
		notifier: notifier,
		timeout:  opts.Timeout,
		loc:      opts.Location,
		label:    opts.LocationLabel,
		business: opts.BusinessName,
		notifyTo: opts.NotifyTo,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.label == "" {
		e.label = e.loc.String()
	}
	if e.business == "" {
		e.business = "GC Pro West"
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

func (e *Executor) lookup(name string) (toolFunc, bool) {
	switch name {
	case GetCurrentTime:
		return e.getCurrentTime, true
	case CheckAvailability:
		return e.checkAvailability, true
	case BookAppointment:
		return e.bookAppointment, true
	}
	return nil, false
}

type outcome struct {
	result any
	err    error
}

// Execute runs one tool call. The result is either the tool's payload or an
// ErrorResult. A call still running when the timeout fires is cancelled
// through its context and its eventual result is discarded.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) any {
	fn, ok := e.lookup(name)
	if !ok {
		e.logger.Warn("unknown tool", "tool", name)
		metrics.ToolCalls.WithLabelValues(name, "unknown").Inc()
		return ErrorResult{Error: msgUnknownFunction}
	}
	if args == nil {
		args = map[string]any{}
	}

	started := time.Now()
	defer func() {
		metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Buffered so an abandoned call can still deliver and exit.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", name, r)}
			}
		}()
		result, err := fn(ctx, args)
		done <- outcome{result: result, err: err}
	}()

	e.logger.Debug("executing tool", "tool", name, "args", args)

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return e.busy(name)
			}
			e.logger.Error("tool failed", "tool", name, "err", out.err)
			metrics.ToolCalls.WithLabelValues(name, "error").Inc()
			return ErrorResult{Error: out.err.Error()}
		}
		metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
		return out.result
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return e.busy(name)
		}
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
		return ErrorResult{Error: ctx.Err().Error()}
	}
}

func (e *Executor) busy(name string) ErrorResult {
	e.logger.Warn("tool timed out", "tool", name, "timeout", e.timeout)
	metrics.ToolCalls.WithLabelValues(name, "timeout").Inc()
	return ErrorResult{Error: msgServiceBusy}
}

// Wait blocks until detached background work (confirmation emails) is done
// or ctx ends.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// normalizeDate reduces v to a calendar date in the business timezone. Any
// time or zone suffix after a 'T' or space is discarded. Missing or
// unparseable input means today.
func (e *Executor) normalizeDate(v any) time.Time {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[:i]
	}
	if d, err := time.ParseInLocation(time.DateOnly, s, e.loc); err == nil {
		return d
	}
	now := e.now().In(e.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
