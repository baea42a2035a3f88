package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/room4-2/voicedesk/messages"
)

// 100ms of PCM16 mono at 16kHz.
const chunkSize = 3200

var (
	audioFile string
	playAudio bool
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream an audio file to the relay and play the reply",
	Long: `Stream a PCM16 mono 16 kHz file (raw or WAV) in real-time 100 ms chunks,
then wait for the agent's turn. Replies are played through sox when it is
installed.

Examples:
  relayctl stream --file user.pcm
  relayctl stream --file question.wav --play=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		audio, err := loadAudioFile(audioFile)
		if err != nil {
			return fmt.Errorf("load audio: %w", err)
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		conn, err := dial(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✅ connected to %s\n", serverURL)

		var play func([]byte)
		if playAudio {
			if player := NewAudioPlayer(); player != nil {
				defer player.Close()
				play = player.Play
			} else {
				fmt.Fprintln(out, "⚠️  sox not available, audio will not be played")
			}
		}

		sent := make(chan error, 1)
		go func() { sent <- streamChunks(ctx, conn, audio, out) }()

		turnCtx, turnCancel := context.WithTimeout(ctx, timeout+chunkDuration(len(audio)))
		defer turnCancel()
		readErr := make(chan error, 1)
		go func() { readErr <- readTurns(turnCtx, conn, out, play) }()

		select {
		case err := <-sent:
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "✅ audio sent, waiting for response...")
			return <-readErr
		case err := <-readErr:
			return err
		case <-ctx.Done():
			<-sent
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	},
}

func init() {
	streamCmd.Flags().StringVarP(&audioFile, "file", "f", "user.pcm", "audio file to send (PCM or WAV)")
	streamCmd.Flags().BoolVar(&playAudio, "play", true, "play the reply through sox")
}

func chunkDuration(n int) time.Duration {
	return time.Duration(n/chunkSize+1) * 100 * time.Millisecond
}

// streamChunks paces the file at real time, as a microphone would.
func streamChunks(ctx context.Context, conn *websocket.Conn, audio []byte, out io.Writer) error {
	total := (len(audio) + chunkSize - 1) / chunkSize
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for i, chunk := range splitChunks(audio, chunkSize) {
		msg := messages.ClientMessage{Type: messages.TypeAudio, Data: base64.StdEncoding.EncodeToString(chunk)}
		if err := sendFrame(conn, msg); err != nil {
			return fmt.Errorf("send chunk %d: %w", i+1, err)
		}
		if (i+1)%10 == 0 || i+1 == total {
			fmt.Fprintf(out, "📤 sent chunk %d/%d\n", i+1, total)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func splitChunks(data []byte, size int) [][]byte {
	var chunks [][]byte
	for i := 0; i < len(data); i += size {
		end := min(i+size, len(data))
		chunks = append(chunks, data[i:end])
	}
	return chunks
}

// loadAudioFile returns raw PCM, skipping a canonical 44-byte WAV header.
func loadAudioFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > 44 && string(data[0:4]) == "RIFF" {
		return data[44:], nil
	}
	return data, nil
}

// AudioPlayer streams 24 kHz PCM16 to the default output via sox.
type AudioPlayer struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	mu     sync.Mutex
	closed bool
}

func NewAudioPlayer() *AudioPlayer {
	if _, err := exec.LookPath("sox"); err != nil {
		return nil
	}
	cmd := exec.Command("sox",
		"-t", "raw",
		"-r", "24000",
		"-b", "16",
		"-c", "1",
		"-e", "signed-integer",
		"-",
		"-d",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil
	}
	if err := cmd.Start(); err != nil {
		return nil
	}
	return &AudioPlayer{cmd: cmd, stdin: stdin}
}

func (p *AudioPlayer) Play(pcm []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	_, _ = p.stdin.Write(pcm)
}

func (p *AudioPlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	_ = p.stdin.Close()
	_ = p.cmd.Wait()
}
