package server

import (
	"context"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/room4-2/voicedesk/messages"
	"github.com/room4-2/voicedesk/metrics"
)

const maxWebhookBody = 1 << 20

// handleWebhook is the tool bridge for the telephony platform. It always
// answers 200 so the platform never retries.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		metrics.WebhookRequests.WithLabelValues("invalid").Inc()
		s.logger.Warn("failed to read webhook body", "err", err)
		writeJSON(w, s.logger, messages.WebhookStatus{Status: "ignored"})
		return
	}
	req, err := messages.DecodeWebhook(body)
	if err != nil {
		metrics.WebhookRequests.WithLabelValues("invalid").Inc()
		s.logger.Warn("ignoring webhook", "err", err)
		writeJSON(w, s.logger, messages.WebhookStatus{Status: "ignored"})
		return
	}

	var msgType string
	if req.Message != nil {
		msgType = req.Message.Type
	}

	switch msgType {
	case messages.WebhookAssistantRequest, messages.WebhookConversationStart, messages.WebhookVapiRequest:
		metrics.WebhookRequests.WithLabelValues(msgType).Inc()
		s.logger.Info("injecting instructions", "type", msgType)
		writeJSON(w, s.logger, messages.NewAssistantResponse(s.instruct()))
	case messages.WebhookToolCalls:
		metrics.WebhookRequests.WithLabelValues(msgType).Inc()
		results := s.runToolCalls(r.Context(), req.Message.ToolCalls)
		writeJSON(w, s.logger, messages.WebhookResults{Results: results})
	default:
		metrics.WebhookRequests.WithLabelValues("other").Inc()
		writeJSON(w, s.logger, messages.WebhookStatus{Status: "processed"})
	}
}

// runToolCalls executes a batch concurrently. Results keep the order of the
// request.
func (s *Server) runToolCalls(ctx context.Context, calls []messages.WebhookToolCall) []messages.WebhookResult {
	results := make([]messages.WebhookResult, len(calls))

	g, ctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			s.logger.Info("webhook tool call", "tool", call.Function.Name, "id", call.ID)
			result := s.tools.Execute(ctx, call.Function.Name, call.Function.Args())

			encoded, err := json.MarshalToString(result)
			if err != nil {
				s.logger.Error("failed to encode tool result", "tool", call.Function.Name, "err", err)
				encoded = `{"error":"Unencodable result"}`
			}
			results[i] = messages.WebhookResult{ToolCallID: call.ID, Result: encoded}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
