package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/voicedesk/messages"
	"github.com/room4-2/voicedesk/metrics"
)

// Downstream transports.
const (
	TransportBrowser = "browser"
	TransportTwilio  = "twilio"
)

// ClientConn adapts a browser widget websocket.
type ClientConn struct {
	*socket
}

// NewClientConn wraps conn. Nothing is read or written until Start.
func NewClientConn(conn wsConn, logger *slog.Logger, keepAlive time.Duration) *ClientConn {
	return &ClientConn{socket: newSocket(conn, logger, keepAlive)}
}

func (c *ClientConn) Transport() string { return TransportBrowser }

// Start launches the read loop and the write pump.
func (c *ClientConn) Start(h Handlers) {
	if !c.start(h.OnClose) {
		return
	}
	go c.readLoop(h)
}

func (c *ClientConn) readLoop(h Handlers) {
	defer c.shutdown()

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Error("client read failed", "err", err)
			}
			return
		}
		c.touch()

		if mt != websocket.TextMessage {
			metrics.ProtocolErrors.WithLabelValues(metrics.Downstream).Inc()
			c.logger.Warn("ignoring non-text client frame", "bytes", len(data))
			continue
		}

		msg, err := messages.DecodeClient(data)
		if err != nil {
			metrics.ProtocolErrors.WithLabelValues(metrics.Downstream).Inc()
			if errors.Is(err, messages.ErrUnsupported) {
				c.logger.Debug("ignoring client frame", "err", err)
			} else {
				c.logger.Warn("dropping malformed client frame", "err", err)
			}
			continue
		}

		switch msg.Type {
		case messages.TypeAudio:
			if h.OnAudio != nil {
				h.OnAudio(msg.Data)
			}
		case messages.TypeText:
			if h.OnText != nil {
				h.OnText(msg.Text)
			}
		}
	}
}

// SendAudio queues a base64 PCM chunk for the browser. Like every send it
// is a no-op once the socket is closed.
func (c *ClientConn) SendAudio(data string) {
	c.send(messages.NewAudioMessage(data), "audio")
}

// SendText queues a transcript or notice line.
func (c *ClientConn) SendText(text string) {
	c.send(messages.NewTextMessage(text), "text")
}

func (c *ClientConn) SendTurnComplete() {
	c.send(messages.NewTurnCompleteMessage(), "turnComplete")
}

func (c *ClientConn) SendInterrupted() {
	c.send(messages.NewInterruptedMessage(), "interrupted")
}

func (c *ClientConn) send(msg *messages.ServerMessage, kind string) {
	if c.isClosed() {
		return
	}
	c.enqueue(msg)
	metrics.FramesForwarded.WithLabelValues(metrics.Downstream, kind).Inc()
}
