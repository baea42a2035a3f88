// Command relayctl exercises a running relay from the terminal: text and
// audio sessions, the webhook bridge and the tool executor itself.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

var json = sonic.ConfigStd

var (
	serverURL string
	timeout   time.Duration
	turns     int
)

var rootCmd = &cobra.Command{
	Use:           "relayctl",
	Short:         "Operator tool for the voice relay",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "ws://localhost:8080/ws", "relay websocket URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the agent")
	rootCmd.PersistentFlags().IntVar(&turns, "turns", 2, "agent turns to wait for, greeting included")

	rootCmd.AddCommand(chatCmd, streamCmd, webhookCmd, toolCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}
