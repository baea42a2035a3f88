package server

import (
	"fmt"
	"html"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/room4-2/voicedesk/session"
)

// Twilio connections don't send browser Origin headers and don't support
// compression.
var twilioUpgrader = websocket.Upgrader{
	ReadBufferSize:    64 * 1024,
	WriteBufferSize:   64 * 1024,
	EnableCompression: false,
	CheckOrigin:       func(r *http.Request) bool { return true },
}

func (s *Server) handleTwilioStream(w http.ResponseWriter, r *http.Request) {
	conn, err := twilioUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("twilio websocket upgrade failed", "err", err)
		return
	}
	s.serveSession(r.Context(), conn, session.NewTwilioConn(conn, s.logger))
}

// handleVoiceCall answers Twilio's incoming-call webhook with TwiML that
// connects the call to the media stream.
func (s *Server) handleVoiceCall(w http.ResponseWriter, r *http.Request) {
	wsURL := "wss://" + r.Host + "/twilio/stream"

	xmlResponse := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
	<Say>Connecting to the assistant now.</Say>
	<Connect>
		<Stream url="%s" />
	</Connect>
</Response>`, html.EscapeString(wsURL))

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(xmlResponse))
}
