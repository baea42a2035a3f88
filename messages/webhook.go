package messages

import "fmt"

// Webhook message types.
const (
	WebhookToolCalls         = "tool-calls"
	WebhookAssistantRequest  = "assistant-request"
	WebhookConversationStart = "conversation-start"
	WebhookVapiRequest       = "vapi-request"
)

// WebhookRequest is the envelope posted by the telephony platform.
type WebhookRequest struct {
	Message *WebhookMessage `json:"message"`
}

type WebhookMessage struct {
	Type      string            `json:"type"`
	ToolCalls []WebhookToolCall `json:"toolCalls,omitempty"`
}

type WebhookToolCall struct {
	ID       string          `json:"id"`
	Function WebhookFunction `json:"function"`
}

// WebhookFunction names the tool. Arguments is either an object or a
// JSON-encoded string holding one.
type WebhookFunction struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

// Args returns the arguments as a map. Undecodable arguments yield an empty
// map so the tool sees its defaults.
func (f WebhookFunction) Args() map[string]any {
	switch v := f.Arguments.(type) {
	case map[string]any:
		return v
	case string:
		var args map[string]any
		if err := json.Unmarshal([]byte(v), &args); err == nil && args != nil {
			return args
		}
	}
	return map[string]any{}
}

// DecodeWebhook parses a webhook body.
func DecodeWebhook(raw []byte) (*WebhookRequest, error) {
	var req WebhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	return &req, nil
}

// WebhookResult pairs a tool call id with its JSON-encoded result.
type WebhookResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
}

type WebhookResults struct {
	Results []WebhookResult `json:"results"`
}

type WebhookStatus struct {
	Status string `json:"status"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AssistantModel struct {
	Model struct {
		Messages []ChatMessage `json:"messages"`
	} `json:"model"`
}

// AssistantResponse injects the system instruction into the platform's
// assistant. Both keys carry the same model so either is honored.
type AssistantResponse struct {
	Assistant          AssistantModel `json:"assistant"`
	AssistantOverrides AssistantModel `json:"assistantOverrides"`
}

func NewAssistantResponse(instructions string) *AssistantResponse {
	var m AssistantModel
	m.Model.Messages = []ChatMessage{{Role: "system", Content: instructions}}
	return &AssistantResponse{Assistant: m, AssistantOverrides: m}
}
