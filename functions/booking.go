package functions

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/room4-2/voicedesk/calendar"
	"github.com/room4-2/voicedesk/metrics"
)

// Accepted spellings once dots and spaces are stripped and letters upper-cased.
var clockLayouts = []string{"15:04", "15:04:05", "3:04PM", "3:04:05PM", "3PM"}

// InvalidTimeError reports a time of day that could not be parsed.
type InvalidTimeError struct {
	Value string
}

func (e *InvalidTimeError) Error() string {
	return fmt.Sprintf("The provided time %q is not in a valid format. Please use HH:mm (e.g., 14:00).", e.Value)
}

// BookingResult answers bookAppointment.
type BookingResult struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

type appointment struct {
	name, phone, address string
	start, end           time.Time
}

func parseClock(s string) (hour, minute int, err error) {
	clean := strings.ToUpper(strings.NewReplacer(".", "", " ", "").Replace(s))
	for _, layout := range clockLayouts {
		if t, perr := time.Parse(layout, clean); perr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, &InvalidTimeError{Value: s}
}

// bookAppointment creates a one-hour event and fires the confirmation email
// in the background. Nothing is written to the calendar when the arguments
// do not describe a valid slot.
func (e *Executor) bookAppointment(ctx context.Context, args map[string]any) (any, error) {
	day := e.normalizeDate(args["date"])
	timeArg := stringArg(args, "time")
	appt := appointment{
		name:    stringArg(args, "name"),
		phone:   stringArg(args, "phone"),
		address: stringArg(args, "address"),
	}

	hour, minute, err := parseClock(timeArg)
	if err != nil {
		return nil, err
	}
	if appt.name == "" || appt.address == "" {
		return nil, fmt.Errorf("name and address are required to book an appointment")
	}

	appt.start = time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, e.loc)
	appt.end = appt.start.Add(time.Hour)

	e.logger.Info("booking appointment", "name", appt.name, "start", appt.start.Format(time.RFC3339))

	id, err := e.cal.CreateEvent(ctx, calendar.NewEvent{
		Subject: fmt.Sprintf("%s Appointment: %s", e.business, appt.name),
		BodyHTML: fmt.Sprintf("<b>Customer:</b> %s<br><b>Phone:</b> %s<br><b>Address:</b> %s",
			html.EscapeString(appt.name), html.EscapeString(appt.phone), html.EscapeString(appt.address)),
		Location: appt.address,
		Start:    appt.start,
		End:      appt.end,
	})
	if err != nil {
		return nil, fmt.Errorf("book appointment: %w", err)
	}

	e.logger.Info("appointment booked", "id", id)
	e.notify(ctx, appt)

	return BookingResult{Status: "confirmed", ID: id, Message: "Appointment booked."}, nil
}

// notify sends the confirmation email on a detached goroutine. It is best
// effort: it never blocks the booking and its failure does not undo it.
func (e *Executor) notify(ctx context.Context, appt appointment) {
	if e.notifier == nil {
		return
	}

	mail := calendar.Mail{
		To:      e.notifyTo,
		Subject: fmt.Sprintf("Appointment Confirmed: %s", e.business),
		BodyHTML: fmt.Sprintf(`<h2>Hi %s,</h2>
<p>Your consultation with %s is confirmed!</p>
<p><b>Date:</b> %s<br><b>Time:</b> %s<br><b>Address:</b> %s</p>
<p>We look forward to seeing you then!</p>`,
			html.EscapeString(appt.name), html.EscapeString(e.business),
			appt.start.Format("Monday, January 2, 2006"), appt.start.Format("3:04 PM"),
			html.EscapeString(appt.address)),
	}

	// Detached from the tool deadline; the booking has already happened.
	bg := context.WithoutCancel(ctx)

	e.background.Add(1)
	go func() {
		defer e.background.Done()

		ctx, cancel := context.WithTimeout(bg, notifyTimeout)
		defer cancel()

		if err := e.notifier.SendMail(ctx, mail); err != nil {
			e.logger.Error("confirmation email failed", "err", err)
			metrics.Notifications.WithLabelValues("error").Inc()
			return
		}
		e.logger.Info("confirmation email sent")
		metrics.Notifications.WithLabelValues("ok").Inc()
	}()
}
