package session

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/room4-2/voicedesk/audio"
	"github.com/room4-2/voicedesk/messages"
	"github.com/room4-2/voicedesk/metrics"
)

// TwilioConn adapts a Twilio media stream. Audio is transcoded between the
// phone network's mu-law 8 kHz and the provider's PCM16; text has no channel
// on a phone call and is only logged.
type TwilioConn struct {
	*socket

	sidMu     sync.RWMutex
	streamSid string
	marks     int
}

func NewTwilioConn(conn wsConn, logger *slog.Logger) *TwilioConn {
	return &TwilioConn{socket: newSocket(conn, logger, 0)}
}

func (t *TwilioConn) Transport() string { return TransportTwilio }

func (t *TwilioConn) Start(h Handlers) {
	if !t.start(h.OnClose) {
		return
	}
	go t.readLoop(h)
}

// StreamSid is empty until Twilio sends the start event.
func (t *TwilioConn) StreamSid() string {
	t.sidMu.RLock()
	defer t.sidMu.RUnlock()
	return t.streamSid
}

func (t *TwilioConn) readLoop(h Handlers) {
	defer t.shutdown()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if !t.isClosed() {
				t.logger.Error("twilio read failed", "err", err)
			}
			return
		}
		t.touch()

		msg, err := messages.DecodeTwilio(data)
		if err != nil {
			metrics.ProtocolErrors.WithLabelValues(metrics.Downstream).Inc()
			t.logger.Warn("dropping twilio frame", "err", err)
			continue
		}

		switch msg.Event {
		case messages.TwilioConnected:
			t.logger.Info("twilio stream connected")
		case messages.TwilioStart:
			if msg.Start == nil || msg.Start.StreamSid == "" {
				metrics.ProtocolErrors.WithLabelValues(metrics.Downstream).Inc()
				t.logger.Warn("twilio start event without streamSid")
				continue
			}
			t.sidMu.Lock()
			t.streamSid = msg.Start.StreamSid
			t.sidMu.Unlock()
			t.logger.Info("twilio stream started", "stream_sid", msg.Start.StreamSid, "call_sid", msg.Start.CallSid)
		case messages.TwilioMedia:
			if msg.Media == nil {
				continue
			}
			mulaw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				metrics.ProtocolErrors.WithLabelValues(metrics.Downstream).Inc()
				t.logger.Warn("undecodable twilio audio", "err", err)
				continue
			}
			if h.OnAudio != nil {
				h.OnAudio(base64.StdEncoding.EncodeToString(audio.MuLaw8kToPCM16k(mulaw)))
			}
		case messages.TwilioMark:
			t.logger.Debug("twilio mark played", "mark", msg.Mark)
		case messages.TwilioStop:
			t.logger.Info("twilio stream stopped")
			return
		default:
			t.logger.Debug("ignoring twilio event", "event", msg.Event)
		}
	}
}

// SendAudio transcodes a base64 PCM16 24 kHz chunk for the phone line.
func (t *TwilioConn) SendAudio(data string) {
	sid := t.StreamSid()
	if sid == "" || t.isClosed() {
		t.logger.Debug("dropping audio before twilio stream start")
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		t.logger.Error("undecodable provider audio", "err", err)
		return
	}
	t.enqueue(messages.NewTwilioMedia(sid, base64.StdEncoding.EncodeToString(audio.PCM24kToMuLaw8k(pcm))))
	metrics.FramesForwarded.WithLabelValues(metrics.Downstream, "audio").Inc()
}

func (t *TwilioConn) SendText(text string) {
	t.logger.Debug("text on twilio session", "text", text)
}

// SendTurnComplete places a mark after the turn's audio.
func (t *TwilioConn) SendTurnComplete() {
	sid := t.StreamSid()
	if sid == "" || t.isClosed() {
		return
	}
	t.sidMu.Lock()
	t.marks++
	name := fmt.Sprintf("turn-%d", t.marks)
	t.sidMu.Unlock()

	t.enqueue(messages.NewTwilioMark(sid, name))
	metrics.FramesForwarded.WithLabelValues(metrics.Downstream, "turnComplete").Inc()
}

// SendInterrupted clears audio Twilio has not played yet.
func (t *TwilioConn) SendInterrupted() {
	sid := t.StreamSid()
	if sid == "" || t.isClosed() {
		return
	}
	t.enqueue(messages.NewTwilioClear(sid))
	metrics.FramesForwarded.WithLabelValues(metrics.Downstream, "interrupted").Inc()
}

var _ Downstream = (*TwilioConn)(nil)
var _ Downstream = (*ClientConn)(nil)
