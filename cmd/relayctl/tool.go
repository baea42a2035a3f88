package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/room4-2/voicedesk/config"
	"github.com/room4-2/voicedesk/functions"
)

var (
	toolArgs    string
	toolVerbose bool
)

var toolCmd = &cobra.Command{
	Use:   "tool <name>",
	Short: "Run a tool in-process against the configured calendar",
	Long: `Run one tool through the executor, with the same timeout and error shapes
the agent sees, using the Microsoft Graph settings from the environment.

Examples:
  relayctl tool getCurrentTime
  relayctl tool checkAvailability --args '{"date":"2026-02-01"}'
  relayctl tool bookAppointment --args '{"name":"Jane Doe","phone":"239-555-0100","address":"1 Main St","date":"2026-02-02","time":"14:30"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		level := slog.LevelWarn
		if toolVerbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		for _, w := range cfg.Warnings() {
			logger.Warn(w)
		}

		var toolInput map[string]any
		if err := json.UnmarshalFromString(toolArgs, &toolInput); err != nil {
			return fmt.Errorf("--args is not a JSON object: %w", err)
		}

		executor := functions.FromConfig(cfg, logger)
		result := executor.Execute(cmd.Context(), args[0], toolInput)
		if err := printJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}

		// Booking confirmations are sent after the result.
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return executor.Wait(ctx)
	},
}

func init() {
	toolCmd.Flags().StringVar(&toolArgs, "args", "{}", "tool arguments as a JSON object")
	toolCmd.Flags().BoolVarP(&toolVerbose, "verbose", "v", false, "log executor activity")
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
