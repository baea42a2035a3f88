package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/room4-2/voicedesk/messages"
)

var (
	webhookURL  string
	webhookName string
	webhookArgs string
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Post a tool call to the webhook bridge",
	Long: `Post a single tool-calls message to the webhook bridge, the way the
telephony platform does, and print each result.

Examples:
  relayctl webhook --name checkAvailability --args '{"date":"2026-02-01"}'
  relayctl webhook --url https://relay.example.com/webhook --name getCurrentTime`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := webhookBody(uuid.NewString(), webhookName, webhookArgs)
		if err != nil {
			return err
		}

		client := &http.Client{Timeout: timeout}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("post webhook: %w", err)
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("webhook answered %s: %s", resp.Status, raw)
		}
		return printResults(cmd.OutOrStdout(), raw)
	},
}

func init() {
	webhookCmd.Flags().StringVar(&webhookURL, "url", "http://localhost:8080/webhook", "webhook endpoint")
	webhookCmd.Flags().StringVar(&webhookName, "name", "getCurrentTime", "tool to call")
	webhookCmd.Flags().StringVar(&webhookArgs, "args", "{}", "tool arguments as a JSON object")
}

// webhookBody builds a tool-calls message carrying one call. Arguments are
// sent as a JSON string, which the bridge accepts alongside objects.
func webhookBody(id, name, args string) ([]byte, error) {
	var parsed map[string]any
	if err := json.UnmarshalFromString(args, &parsed); err != nil {
		return nil, fmt.Errorf("--args is not a JSON object: %w", err)
	}
	req := messages.WebhookRequest{Message: &messages.WebhookMessage{
		Type: messages.WebhookToolCalls,
		ToolCalls: []messages.WebhookToolCall{{
			ID:       id,
			Function: messages.WebhookFunction{Name: name, Arguments: args},
		}},
	}}
	return json.Marshal(req)
}

func printResults(out io.Writer, raw []byte) error {
	var resp messages.WebhookResults
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Results == nil {
		fmt.Fprintf(out, "%s\n", raw)
		return nil
	}
	for _, r := range resp.Results {
		fmt.Fprintf(out, "🔧 %s\n", r.ToolCallID)
		var pretty bytes.Buffer
		if err := indentJSON(&pretty, r.Result); err != nil {
			fmt.Fprintln(out, r.Result)
			continue
		}
		fmt.Fprintln(out, pretty.String())
	}
	return nil
}

func indentJSON(w io.Writer, s string) error {
	var v any
	if err := json.UnmarshalFromString(s, &v); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
