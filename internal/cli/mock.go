// internal/cli/mock.go
package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rpchat/internal/mockserver"
)

func (a *app) mockCmd() *cobra.Command {
	var (
		addr  string
		delay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "run a local mock backend",
		Long: `Serve an in-memory backend that speaks the chat session API.

It starts with one character and an empty chat session, and answers
every message in character, streamed word by word.`,
		Example: `  $ rpchat mock --addr :8000
  $ rpchat chat 2 --backend http://localhost:8000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := mockserver.New(mockserver.WithChunkDelay(delay))
			sessionID := srv.Seed()

			printSuccess(cmd.OutOrStdout(), "Mock backend on %s with chat session %d", addr, sessionID)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().DurationVar(&delay, "delay", 60*time.Millisecond, "pause between streamed chunks")
	return cmd
}
