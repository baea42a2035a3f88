package messages

import "fmt"

// Twilio media stream events.
const (
	TwilioConnected = "connected"
	TwilioStart     = "start"
	TwilioMedia     = "media"
	TwilioMark      = "mark"
	TwilioClear     = "clear"
	TwilioStop      = "stop"
)

// TwilioMessage is a frame on a Twilio media stream, in either direction.
type TwilioMessage struct {
	Event     string             `json:"event"`
	StreamSid string             `json:"streamSid,omitempty"`
	Start     *TwilioStartInfo   `json:"start,omitempty"`
	Media     *TwilioMediaChunk  `json:"media,omitempty"`
	Mark      *TwilioMarkPayload `json:"mark,omitempty"`
}

type TwilioStartInfo struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid,omitempty"`
}

// TwilioMediaChunk carries base64 mu-law 8 kHz audio.
type TwilioMediaChunk struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

type TwilioMarkPayload struct {
	Name string `json:"name"`
}

// DecodeTwilio parses one inbound Twilio frame.
func DecodeTwilio(raw []byte) (TwilioMessage, error) {
	var msg TwilioMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("decode twilio frame: %w", err)
	}
	if msg.Event == "" {
		return msg, fmt.Errorf("%w: twilio frame without event", ErrUnsupported)
	}
	return msg, nil
}

func NewTwilioMedia(streamSid, payload string) *TwilioMessage {
	return &TwilioMessage{
		Event:     TwilioMedia,
		StreamSid: streamSid,
		Media:     &TwilioMediaChunk{Payload: payload},
	}
}

// NewTwilioMark asks Twilio to echo name back once preceding audio has played.
func NewTwilioMark(streamSid, name string) *TwilioMessage {
	return &TwilioMessage{
		Event:     TwilioMark,
		StreamSid: streamSid,
		Mark:      &TwilioMarkPayload{Name: name},
	}
}

// NewTwilioClear flushes audio Twilio has buffered but not yet played.
func NewTwilioClear(streamSid string) *TwilioMessage {
	return &TwilioMessage{Event: TwilioClear, StreamSid: streamSid}
}
