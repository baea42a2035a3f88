package messages

import "fmt"

// ServerMessage is a frame sent to the browser widget.
type ServerMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Text string `json:"text,omitempty"`
}

// NewAudioMessage wraps a base64 PCM16 chunk from the model.
func NewAudioMessage(data string) *ServerMessage {
	return &ServerMessage{Type: TypeAudio, Data: data}
}

func NewTextMessage(text string) *ServerMessage {
	return &ServerMessage{Type: TypeText, Text: text}
}

// NewTurnCompleteMessage tells the client the agent finished speaking.
func NewTurnCompleteMessage() *ServerMessage {
	return &ServerMessage{Type: TypeTurnComplete}
}

// NewInterruptedMessage tells the client to drop queued playback.
func NewInterruptedMessage() *ServerMessage {
	return &ServerMessage{Type: TypeInterrupted}
}

// DecodeServer parses a frame sent to the browser widget.
func DecodeServer(raw []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("decode server frame: %w", err)
	}
	return msg, nil
}
