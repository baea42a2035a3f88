package functions

import (
	"context"
	"fmt"
)

// BusyInterval is an occupied slot, in business-local wall time.
type BusyInterval struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Subject string `json:"subject,omitempty"`
}

// AvailabilityResult answers checkAvailability.
type AvailabilityResult struct {
	Message   string         `json:"message"`
	BusyTimes []BusyInterval `json:"busyTimes"`
}

// checkAvailability lists the busy intervals of one business-local day.
func (e *Executor) checkAvailability(ctx context.Context, args map[string]any) (any, error) {
	day := e.normalizeDate(args["date"])
	end := day.AddDate(0, 0, 1)

	e.logger.Info("checking availability", "date", day.Format("2006-01-02"))

	events, err := e.cal.ListEvents(ctx, day, end)
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}

	busy := make([]BusyInterval, 0, len(events))
	for _, ev := range events {
		busy = append(busy, BusyInterval{
			Start:   ev.Start.In(e.loc).Format("15:04"),
			End:     ev.End.In(e.loc).Format("15:04"),
			Subject: ev.Subject,
		})
	}

	return AvailabilityResult{
		Message:   fmt.Sprintf("Found %d appointments.", len(events)),
		BusyTimes: busy,
	}, nil
}
