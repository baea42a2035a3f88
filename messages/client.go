// Package messages defines the JSON frames exchanged with downstream clients
// (browser widget, Twilio media streams) and the webhook bodies.
package messages

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var json = sonic.ConfigStd

// Message types shared by both directions of the client protocol.
const (
	TypeAudio        = "audio"
	TypeText         = "text"
	TypeTurnComplete = "turnComplete"
	TypeInterrupted  = "interrupted"
)

// ErrUnsupported marks a well-formed frame the relay does not act on.
var ErrUnsupported = errors.New("unsupported frame")

// ClientMessage is a frame sent by the browser widget.
type ClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"` // base64 PCM16 mono 16 kHz
	Text string `json:"text,omitempty"`
}

// DecodeClient parses one inbound frame. Only audio and text frames are
// accepted; anything else yields ErrUnsupported.
func DecodeClient(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("decode client frame: %w", err)
	}
	switch msg.Type {
	case TypeAudio:
		if msg.Data == "" {
			return msg, fmt.Errorf("%w: audio frame without data", ErrUnsupported)
		}
	case TypeText:
		if msg.Text == "" {
			return msg, fmt.Errorf("%w: empty text frame", ErrUnsupported)
		}
	default:
		return msg, fmt.Errorf("%w: type %q", ErrUnsupported, msg.Type)
	}
	return msg, nil
}

// Encode serializes an outbound frame.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
