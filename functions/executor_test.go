package functions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/voicedesk/calendar"
)

type fakeCalendar struct {
	mu       sync.Mutex
	events   []calendar.Event
	ranges   [][2]time.Time
	created  []calendar.NewEvent
	block    chan struct{}
	finished chan struct{}
}

func (f *fakeCalendar) ListEvents(ctx context.Context, start, end time.Time) ([]calendar.Event, error) {
	f.mu.Lock()
	f.ranges = append(f.ranges, [2]time.Time{start, end})
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
		if f.finished != nil {
			close(f.finished)
		}
	}
	return f.events, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, ev calendar.NewEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, ev)
	return "evt-1", nil
}

func (f *fakeCalendar) createdEvents() []calendar.NewEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calendar.NewEvent(nil), f.created...)
}

type fakeNotifier struct {
	err  error
	sent chan calendar.Mail
}

func (f *fakeNotifier) SendMail(ctx context.Context, m calendar.Mail) error {
	f.sent <- m
	return f.err
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func newTestExecutor(t *testing.T, cal Calendar, n Notifier) *Executor {
	loc := newYork(t)
	return NewExecutor(cal, n, Options{
		Location:      loc,
		LocationLabel: "Naples, FL",
		BusinessName:  "GC Pro West",
		Now:           func() time.Time { return time.Date(2026, 2, 3, 15, 4, 0, 0, loc) },
	})
}

func TestExecuteUnknownFunction(t *testing.T) {
	e := newTestExecutor(t, &fakeCalendar{}, nil)

	for _, name := range []string{"", "deleteEverything", "GetCurrentTime"} {
		assert.Equal(t, ErrorResult{Error: "Unknown function"}, e.Execute(context.Background(), name, nil))
	}
}

func TestExecuteGetCurrentTime(t *testing.T) {
	e := newTestExecutor(t, &fakeCalendar{}, nil)

	got := e.Execute(context.Background(), GetCurrentTime, nil)

	assert.Equal(t, TimeResult{
		CurrentTime: "Tuesday, February 3 at 03:04 PM",
		Message:     "The current time and date in Naples, FL is Tuesday, February 3 at 03:04 PM.",
	}, got)
}

func TestCheckAvailabilityTruncatesTimeComponent(t *testing.T) {
	cal := &fakeCalendar{}
	e := newTestExecutor(t, cal, nil)
	loc := newYork(t)

	got := e.Execute(context.Background(), CheckAvailability, map[string]any{"date": "2026-02-01T10:00:00Z"})

	require.Len(t, cal.ranges, 1)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, loc), cal.ranges[0][0])
	assert.Equal(t, time.Date(2026, 2, 2, 0, 0, 0, 0, loc), cal.ranges[0][1])
	assert.Equal(t, "2026-02-01", cal.ranges[0][0].Format("2006-01-02"))
	assert.Equal(t, AvailabilityResult{Message: "Found 0 appointments.", BusyTimes: []BusyInterval{}}, got)
}

func TestCheckAvailabilityDefaultsToToday(t *testing.T) {
	loc := newYork(t)
	for _, args := range []map[string]any{nil, {"date": "next tuesday"}, {"date": 42.0}} {
		cal := &fakeCalendar{}
		e := newTestExecutor(t, cal, nil)

		e.Execute(context.Background(), CheckAvailability, args)

		require.Len(t, cal.ranges, 1)
		assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, loc), cal.ranges[0][0])
	}
}

func TestCheckAvailabilityReportsLocalBusyTimes(t *testing.T) {
	cal := &fakeCalendar{events: []calendar.Event{{
		Subject: "Kitchen walkthrough",
		Start:   time.Date(2026, 2, 1, 14, 0, 0, 0, time.UTC),
		End:     time.Date(2026, 2, 1, 15, 30, 0, 0, time.UTC),
	}}}
	e := newTestExecutor(t, cal, nil)

	got := e.Execute(context.Background(), CheckAvailability, map[string]any{"date": "2026-02-01"})

	assert.Equal(t, AvailabilityResult{
		Message:   "Found 1 appointments.",
		BusyTimes: []BusyInterval{{Start: "09:00", End: "10:30", Subject: "Kitchen walkthrough"}},
	}, got)
}

func TestAvailabilityResultJSON(t *testing.T) {
	data, err := sonic.ConfigStd.Marshal(AvailabilityResult{Message: "Found 0 appointments.", BusyTimes: []BusyInterval{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"Found 0 appointments.","busyTimes":[]}`, string(data))
}

func TestBackendErrorBecomesErrorResult(t *testing.T) {
	e := newTestExecutor(t, calendar.Unconfigured{Missing: []string{"MS_CLIENT_ID"}}, nil)

	got := e.Execute(context.Background(), CheckAvailability, map[string]any{"date": "2026-02-01"})

	res, ok := got.(ErrorResult)
	require.True(t, ok)
	assert.Contains(t, res.Error, "calendar backend not configured")
}

func TestBookAppointmentRejectsInvalidTime(t *testing.T) {
	cal := &fakeCalendar{}
	e := newTestExecutor(t, cal, nil)

	got := e.Execute(context.Background(), BookAppointment, map[string]any{
		"date": "2026-02-01", "time": "not-a-time", "name": "A", "address": "B",
	})

	res, ok := got.(ErrorResult)
	require.True(t, ok)
	assert.Equal(t, `The provided time "not-a-time" is not in a valid format. Please use HH:mm (e.g., 14:00).`, res.Error)
	assert.Empty(t, cal.createdEvents())
}

func TestBookAppointmentCreatesOneHourEventAndNotifies(t *testing.T) {
	cal := &fakeCalendar{}
	n := &fakeNotifier{sent: make(chan calendar.Mail, 1)}
	e := newTestExecutor(t, cal, n)
	loc := newYork(t)

	got := e.Execute(context.Background(), BookAppointment, map[string]any{
		"date": "2026-02-01T00:00:00Z", "time": "2:30 pm", "name": "Ana <Lee>", "phone": 2395550100.0, "address": "1 Main St",
	})

	assert.Equal(t, BookingResult{Status: "confirmed", ID: "evt-1", Message: "Appointment booked."}, got)
	created := cal.createdEvents()
	require.Len(t, created, 1)
	assert.Equal(t, time.Date(2026, 2, 1, 14, 30, 0, 0, loc), created[0].Start)
	assert.Equal(t, time.Hour, created[0].End.Sub(created[0].Start))
	assert.Equal(t, "GC Pro West Appointment: Ana <Lee>", created[0].Subject)
	assert.Contains(t, created[0].BodyHTML, "Ana &lt;Lee&gt;")
	assert.Contains(t, created[0].BodyHTML, "2395550100")
	assert.Equal(t, "1 Main St", created[0].Location)

	select {
	case m := <-n.sent:
		assert.Equal(t, "Appointment Confirmed: GC Pro West", m.Subject)
		assert.Contains(t, m.BodyHTML, "2:30 PM")
	case <-time.After(time.Second):
		t.Fatal("confirmation email not sent")
	}
	require.NoError(t, e.Wait(context.Background()))
}

func TestBookAppointmentSurvivesNotificationFailure(t *testing.T) {
	n := &fakeNotifier{err: errors.New("smtp down"), sent: make(chan calendar.Mail, 1)}
	e := newTestExecutor(t, &fakeCalendar{}, n)

	got := e.Execute(context.Background(), BookAppointment, map[string]any{
		"date": "2026-02-01", "time": "09:00", "name": "A", "address": "B",
	})

	assert.IsType(t, BookingResult{}, got)
	<-n.sent
	require.NoError(t, e.Wait(context.Background()))
}

func TestBookAppointmentRequiresNameAndAddress(t *testing.T) {
	cal := &fakeCalendar{}
	e := newTestExecutor(t, cal, nil)

	got := e.Execute(context.Background(), BookAppointment, map[string]any{"date": "2026-02-01", "time": "09:00"})

	assert.IsType(t, ErrorResult{}, got)
	assert.Empty(t, cal.createdEvents())
}

func TestExecuteTimeoutAbandonsCall(t *testing.T) {
	cal := &fakeCalendar{block: make(chan struct{}), finished: make(chan struct{}), events: []calendar.Event{{}}}
	e := NewExecutor(cal, nil, Options{Timeout: 20 * time.Millisecond})

	got := e.Execute(context.Background(), CheckAvailability, map[string]any{"date": "2026-02-01"})
	assert.Equal(t, ErrorResult{Error: "Service busy, try again."}, got)

	// The abandoned call completes later without blocking or leaking a result.
	close(cal.block)
	select {
	case <-cal.finished:
	case <-time.After(time.Second):
		t.Fatal("abandoned call never finished")
	}
}

func TestParseClock(t *testing.T) {
	cases := map[string][2]int{
		"14:00":    {14, 0},
		"9:15":     {9, 15},
		"2:30 PM":  {14, 30},
		"2:30pm":   {14, 30},
		"11 a.m.":  {11, 0},
		"12:00 AM": {0, 0},
		"08:45:00": {8, 45},
	}
	for in, want := range cases {
		h, m, err := parseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, [2]int{h, m}, in)
	}

	for _, in := range []string{"", "25:00", "noon-ish"} {
		_, _, err := parseClock(in)
		var ite *InvalidTimeError
		assert.ErrorAs(t, err, &ite, in)
	}
}
