package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/room4-2/voicedesk/messages"
)

var chatCmd = &cobra.Command{
	Use:   "chat <text>",
	Short: "Send one text turn and print the agent's reply",
	Long: `Send one text turn over the widget socket and print text frames until the
agent completes its turn.

Examples:
  relayctl chat "What time is it?"
  relayctl chat --server ws://relay.example.com/ws "Is Tuesday free?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		conn, err := dial(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := sendFrame(conn, messages.ClientMessage{Type: messages.TypeText, Text: args[0]}); err != nil {
			return err
		}
		return readTurns(ctx, conn, cmd.OutOrStdout(), nil)
	},
}

func dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", serverURL, err)
	}
	return conn, nil
}

func sendFrame(conn *websocket.Conn, msg messages.ClientMessage) error {
	data, err := messages.Encode(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readTurns waits for the configured number of agent turns. The scripted
// greeting is a turn of its own.
func readTurns(ctx context.Context, conn *websocket.Conn, out io.Writer, play func([]byte)) error {
	for i := 0; i < turns; i++ {
		if err := readTurn(ctx, conn, out, play); err != nil {
			return err
		}
	}
	return nil
}

// readTurn prints server frames until turnComplete. Audio goes to play when
// it is set.
func readTurn(ctx context.Context, conn *websocket.Conn, out io.Writer, play func([]byte)) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	audioBytes := 0
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return fmt.Errorf("no turnComplete within %s", timeout)
			}
			return fmt.Errorf("read: %w", err)
		}
		msg, err := messages.DecodeServer(raw)
		if err != nil {
			fmt.Fprintln(out, "⚠️ ", err)
			continue
		}

		switch msg.Type {
		case messages.TypeText:
			fmt.Fprintf(out, "📝 %s\n", msg.Text)
		case messages.TypeAudio:
			pcm, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				continue
			}
			audioBytes += len(pcm)
			if play != nil {
				play(pcm)
			}
		case messages.TypeInterrupted:
			fmt.Fprintln(out, "✋ interrupted")
		case messages.TypeTurnComplete:
			if audioBytes > 0 {
				fmt.Fprintf(out, "🔊 %d bytes of audio (%.1fs)\n", audioBytes, float64(audioBytes)/48000)
			}
			fmt.Fprintln(out, "--- turn complete ---")
			return nil
		}
	}
}
