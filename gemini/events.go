package gemini

import (
	"encoding/base64"

	"google.golang.org/genai"
)

// EventKind tags one signal extracted from a provider frame.
type EventKind int

const (
	EventToolCall EventKind = iota + 1
	EventSetupComplete
	EventAudio
	EventText
	EventInterrupted
	EventTurnComplete
)

func (k EventKind) String() string {
	switch k {
	case EventToolCall:
		return "toolCall"
	case EventSetupComplete:
		return "setupComplete"
	case EventAudio:
		return "audio"
	case EventText:
		return "text"
	case EventInterrupted:
		return "interrupted"
	case EventTurnComplete:
		return "turnComplete"
	}
	return "unknown"
}

// ToolCall is a function invocation requested by the model. ID must be
// echoed back with the result.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Event is one classified signal. Only the field matching Kind is set.
type Event struct {
	Kind     EventKind
	Audio    string // base64 PCM16
	Text     string
	ToolCall ToolCall
}

// Frame is the classification of one provider message.
type Frame struct {
	Events []Event
	// IgnoredCalls counts tool calls beyond the first one in the frame.
	IgnoredCalls int
}

// Classify splits a provider message into its events, in dispatch order:
// tool call, setup complete, content parts, interrupted, turn complete.
// Only the first tool call found is kept, whether it arrives in the toolCall
// envelope or as a part of the model turn.
func Classify(msg *genai.LiveServerMessage) Frame {
	var f Frame
	if msg == nil {
		return f
	}

	var calls []*genai.FunctionCall
	if msg.ToolCall != nil {
		calls = append(calls, msg.ToolCall.FunctionCalls...)
	}
	var parts []*genai.Part
	if msg.ServerContent != nil && msg.ServerContent.ModelTurn != nil {
		parts = msg.ServerContent.ModelTurn.Parts
	}
	for _, part := range parts {
		if part != nil && part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}

	var first *genai.FunctionCall
	for _, fc := range calls {
		if fc == nil {
			continue
		}
		if first == nil {
			first = fc
			continue
		}
		f.IgnoredCalls++
	}
	if first != nil {
		args := first.Args
		if args == nil {
			args = map[string]any{}
		}
		f.Events = append(f.Events, Event{
			Kind:     EventToolCall,
			ToolCall: ToolCall{ID: first.ID, Name: first.Name, Args: args},
		})
	}

	if msg.SetupComplete != nil {
		f.Events = append(f.Events, Event{Kind: EventSetupComplete})
	}

	for _, part := range parts {
		if part == nil {
			continue
		}
		switch {
		case part.InlineData != nil && len(part.InlineData.Data) > 0:
			f.Events = append(f.Events, Event{
				Kind:  EventAudio,
				Audio: base64.StdEncoding.EncodeToString(part.InlineData.Data),
			})
		case part.Text != "" && !part.Thought:
			f.Events = append(f.Events, Event{Kind: EventText, Text: part.Text})
		}
	}

	if msg.ServerContent != nil {
		if msg.ServerContent.Interrupted {
			f.Events = append(f.Events, Event{Kind: EventInterrupted})
		}
		if msg.ServerContent.TurnComplete {
			f.Events = append(f.Events, Event{Kind: EventTurnComplete})
		}
	}

	return f
}
