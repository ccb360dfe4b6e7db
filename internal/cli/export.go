// internal/cli/export.go
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rpchat/internal/export"
	"rpchat/internal/logger"
	"rpchat/internal/render"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		dir     string
		preview bool
	)

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "export a chat session as markdown",
		Long: `Write the transcript of a chat session to a markdown file.

Formatting spans become markdown emphasis where one exists, so the
file reads well in any markdown viewer.`,
		Example: `  $ rpchat export 12
  $ rpchat export 12 --dir ~/transcripts --preview`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.Export.Dir
			}

			t, err := a.loadTranscript(cmd.Context(), id)
			if err != nil {
				return err
			}

			path, err := export.Write(t, dir)
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Exported %d messages to %s", len(t.Messages), path)

			if preview {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				rendered, err := export.Preview(string(data), 80)
				if err != nil {
					// fall back to the raw markdown
					rendered = string(data)
				}
				fmt.Fprintln(cmd.OutOrStdout(), rendered)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "output directory (default from config)")
	cmd.Flags().BoolVarP(&preview, "preview", "p", false, "print the rendered transcript")
	return cmd
}

func (a *app) loadTranscript(ctx context.Context, id int64) (*export.Transcript, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := a.newClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	session, err := c.GetChatSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}

	character := session.Character
	if character == nil && session.CharacterID != 0 {
		if character, err = c.GetCharacter(ctx, session.CharacterID); err != nil {
			return nil, fmt.Errorf("failed to load character: %w", err)
		}
	}

	messages, err := c.GetMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	defaults := a.cfg.Formatting
	if settings, err := c.GetSettings(ctx); err != nil {
		logger.WithComponent("cli").WithError(err).Warn("application settings unavailable, using local formatting defaults")
	} else if settings.FormattingSettings != nil {
		defaults = settings.FormattingSettings
	}

	return &export.Transcript{
		Session:   *session,
		Character: character,
		Messages:  messages,
		Settings:  render.Resolve(session, defaults),
	}, nil
}
