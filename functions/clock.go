package functions

import (
	"context"
	"fmt"
)

const clockLayout = "Monday, January 2 at 03:04 PM"

// TimeResult answers getCurrentTime.
type TimeResult struct {
	CurrentTime string `json:"currentTime"`
	Message     string `json:"message"`
}

func (e *Executor) getCurrentTime(context.Context, map[string]any) (any, error) {
	formatted := e.now().In(e.loc).Format(clockLayout)
	return TimeResult{
		CurrentTime: formatted,
		Message:     fmt.Sprintf("The current time and date in %s is %s.", e.label, formatted),
	}, nil
}
