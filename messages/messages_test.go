package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClient(t *testing.T) {
	msg, err := DecodeClient([]byte(`{"type":"audio","data":"AAEC"}`))
	require.NoError(t, err)
	assert.Equal(t, ClientMessage{Type: TypeAudio, Data: "AAEC"}, msg)

	msg, err = DecodeClient([]byte(`{"type":"text","text":"What time is it?"}`))
	require.NoError(t, err)
	assert.Equal(t, "What time is it?", msg.Text)
}

func TestDecodeClientRejectsOtherShapes(t *testing.T) {
	for _, raw := range []string{
		`{"type":"control","payload":{"action":"ping"}}`,
		`{"type":"audio"}`,
		`{"type":"text","text":""}`,
		`{}`,
	} {
		_, err := DecodeClient([]byte(raw))
		assert.ErrorIs(t, err, ErrUnsupported, raw)
	}

	_, err := DecodeClient([]byte(`{not json`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupported)
}

func TestEncodeServerMessages(t *testing.T) {
	cases := map[string]*ServerMessage{
		`{"type":"audio","data":"AAEC"}`: NewAudioMessage("AAEC"),
		`{"type":"text","text":"hello"}`: NewTextMessage("hello"),
		`{"type":"turnComplete"}`:        NewTurnCompleteMessage(),
		`{"type":"interrupted"}`:         NewInterruptedMessage(),
	}
	for want, msg := range cases {
		data, err := Encode(msg)
		require.NoError(t, err)
		assert.JSONEq(t, want, string(data))
	}
}

func TestTwilioFrames(t *testing.T) {
	msg, err := DecodeTwilio([]byte(`{"event":"start","start":{"streamSid":"MZ1","callSid":"CA1"}}`))
	require.NoError(t, err)
	require.NotNil(t, msg.Start)
	assert.Equal(t, "MZ1", msg.Start.StreamSid)

	msg, err = DecodeTwilio([]byte(`{"event":"media","media":{"track":"inbound","payload":"//8="}}`))
	require.NoError(t, err)
	assert.Equal(t, "//8=", msg.Media.Payload)

	_, err = DecodeTwilio([]byte(`{"streamSid":"MZ1"}`))
	assert.ErrorIs(t, err, ErrUnsupported)

	data, err := Encode(NewTwilioMedia("MZ1", "//8="))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"media","streamSid":"MZ1","media":{"payload":"//8="}}`, string(data))

	data, err = Encode(NewTwilioMark("MZ1", "turn-1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"mark","streamSid":"MZ1","mark":{"name":"turn-1"}}`, string(data))

	data, err = Encode(NewTwilioClear("MZ1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"clear","streamSid":"MZ1"}`, string(data))
}

func TestWebhookArguments(t *testing.T) {
	req, err := DecodeWebhook([]byte(`{"message":{"type":"tool-calls","toolCalls":[
		{"id":"a","function":{"name":"checkAvailability","arguments":{"date":"2026-02-01"}}},
		{"id":"b","function":{"name":"checkAvailability","arguments":"{\"date\":\"2026-02-02\"}"}},
		{"id":"c","function":{"name":"getCurrentTime","arguments":"not json"}},
		{"id":"d","function":{"name":"getCurrentTime"}}
	]}}`))
	require.NoError(t, err)
	require.NotNil(t, req.Message)
	calls := req.Message.ToolCalls
	require.Len(t, calls, 4)

	assert.Equal(t, map[string]any{"date": "2026-02-01"}, calls[0].Function.Args())
	assert.Equal(t, map[string]any{"date": "2026-02-02"}, calls[1].Function.Args())
	assert.Equal(t, map[string]any{}, calls[2].Function.Args())
	assert.Equal(t, map[string]any{}, calls[3].Function.Args())
}

func TestAssistantResponse(t *testing.T) {
	data, err := Encode(NewAssistantResponse("be helpful"))
	require.NoError(t, err)

	model := `{"model":{"messages":[{"role":"system","content":"be helpful"}]}}`
	assert.JSONEq(t, `{"assistant":`+model+`,"assistantOverrides":`+model+`}`, string(data))
}

func TestDecodeServer(t *testing.T) {
	msg, err := DecodeServer([]byte(`{"type":"text","text":"📅 Accessing Outlook for checkAvailability..."}`))
	require.NoError(t, err)
	assert.Equal(t, ServerMessage{Type: TypeText, Text: "📅 Accessing Outlook for checkAvailability..."}, msg)

	_, err = DecodeServer([]byte(`{"type":`))
	assert.Error(t, err)
}
