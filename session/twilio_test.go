package session

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/voicedesk/audio"
	"github.com/room4-2/voicedesk/messages"
)

func decodeTwilioFrame(t *testing.T, raw string) messages.TwilioMessage {
	t.Helper()
	var msg messages.TwilioMessage
	require.NoError(t, sonic.ConfigStd.UnmarshalFromString(raw, &msg))
	return msg
}

func TestTwilioConnTranscodesCallerAudio(t *testing.T) {
	ws := newFakeWS()
	rec := newRecorder()
	tc := NewTwilioConn(ws, discardLogger())
	tc.Start(rec.handlers())

	mulaw := []byte{0xff, 0x7f, 0x00, 0x80}
	ws.send(`{"event":"connected","protocol":"Call","version":"1.0.0"}`)
	ws.send(`{"event":"start","streamSid":"MZ123","start":{"streamSid":"MZ123","callSid":"CA456"}}`)
	ws.send(`{"event":"media","streamSid":"MZ123","media":{"track":"inbound","payload":"` + base64.StdEncoding.EncodeToString(mulaw) + `"}}`)
	ws.send(`{"event":"media","streamSid":"MZ123","media":{"payload":"%%%"}}`)
	ws.send(`{"event":"stop","streamSid":"MZ123"}`)

	rec.waitClosed(t)
	assert.Equal(t, "MZ123", tc.StreamSid())

	got, _, _ := rec.snapshot()
	require.Len(t, got, 1)
	pcm, err := base64.StdEncoding.DecodeString(got[0])
	require.NoError(t, err)
	assert.Equal(t, audio.MuLaw8kToPCM16k(mulaw), pcm)
	assert.Len(t, pcm, len(mulaw)*4)
}

func TestTwilioConnDropsAudioBeforeStart(t *testing.T) {
	ws := newFakeWS()
	tc := NewTwilioConn(ws, discardLogger())
	tc.Start(newRecorder().handlers())
	defer tc.Close()

	tc.SendAudio(base64.StdEncoding.EncodeToString(make([]byte, 12)))
	tc.SendTurnComplete()
	tc.SendInterrupted()

	_, ok := ws.nextText(50 * time.Millisecond)
	assert.False(t, ok)
}

func TestTwilioConnWritesMediaMarksAndClears(t *testing.T) {
	ws := newFakeWS()
	tc := NewTwilioConn(ws, discardLogger())
	tc.Start(newRecorder().handlers())
	defer tc.Close()

	ws.send(`{"event":"start","start":{"streamSid":"MZ9"}}`)
	require.Eventually(t, func() bool { return tc.StreamSid() == "MZ9" }, waitFor, 5*time.Millisecond)

	pcm := make([]byte, 12) // six silent samples at 24 kHz
	tc.SendAudio(base64.StdEncoding.EncodeToString(pcm))
	tc.SendText("not spoken on a phone line")
	tc.SendTurnComplete()
	tc.SendInterrupted()
	tc.SendTurnComplete()

	raw, ok := ws.nextText(waitFor)
	require.True(t, ok)
	media := decodeTwilioFrame(t, raw)
	assert.Equal(t, messages.TwilioMedia, media.Event)
	assert.Equal(t, "MZ9", media.StreamSid)
	require.NotNil(t, media.Media)
	assert.Equal(t, base64.StdEncoding.EncodeToString(audio.PCM24kToMuLaw8k(pcm)), media.Media.Payload)

	raw, ok = ws.nextText(waitFor)
	require.True(t, ok)
	mark := decodeTwilioFrame(t, raw)
	assert.Equal(t, messages.TwilioMark, mark.Event)
	require.NotNil(t, mark.Mark)
	assert.Equal(t, "turn-1", mark.Mark.Name)

	raw, ok = ws.nextText(waitFor)
	require.True(t, ok)
	assert.Equal(t, messages.TwilioClear, decodeTwilioFrame(t, raw).Event)

	raw, ok = ws.nextText(waitFor)
	require.True(t, ok)
	assert.Equal(t, "turn-2", decodeTwilioFrame(t, raw).Mark.Name)
}

func TestTwilioConnIgnoresStartWithoutSid(t *testing.T) {
	ws := newFakeWS()
	rec := newRecorder()
	tc := NewTwilioConn(ws, discardLogger())
	tc.Start(rec.handlers())

	ws.send(`{"event":"start","start":{}}`)
	ws.send(`{}`)
	ws.send(`{"event":"stop"}`)

	rec.waitClosed(t)
	assert.Empty(t, tc.StreamSid())
	assert.Equal(t, TransportTwilio, tc.Transport())
}
