package functions

import (
	"log/slog"

	"github.com/room4-2/voicedesk/calendar"
	"github.com/room4-2/voicedesk/config"
)

// FromConfig builds the executor the process runs with: Microsoft Graph
// when its credentials are set, otherwise a backend whose every call fails
// naming the missing variables.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Executor {
	var (
		cal      Calendar
		notifier Notifier
	)
	if cfg.GraphConfigured() {
		graph := calendar.NewGraph(calendar.GraphConfig{
			TenantID:     cfg.MSTenantID,
			ClientID:     cfg.MSClientID,
			ClientSecret: cfg.MSClientSecret,
			Mailbox:      cfg.MSUserEmail,
		})
		cal, notifier = graph, graph
	} else {
		cal = calendar.Unconfigured{Missing: cfg.MissingGraph()}
	}

	return NewExecutor(cal, notifier, Options{
		Timeout:       cfg.ToolTimeout,
		Location:      cfg.Location(),
		LocationLabel: cfg.BusinessLocation,
		BusinessName:  cfg.BusinessName,
		NotifyTo:      cfg.NotifyEmail,
		Logger:        logger,
	})
}
