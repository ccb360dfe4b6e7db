// internal/cli/chat.go
package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"rpchat/internal/chat"
	"rpchat/internal/logger"
	"rpchat/internal/ui"
)

func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <session-id>",
		Short: "open a chat session",
		Long: `Open an existing chat session in the terminal.

Replies stream in as they are generated. Press Esc to stop a reply,
Ctrl+R to retry a failed one and F1 for the full list of keys and commands.`,
		Example: `  $ rpchat chat 12
  $ rpchat chat 12 --backend http://localhost:8000`,
		Args: cobra.ExactArgs(1),
		RunE: a.runChat,
	}
}

func (a *app) runChat(cmd *cobra.Command, args []string) error {
	id, err := parseSessionID(args[0])
	if err != nil {
		return err
	}

	c, err := a.newClient()
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	var (
		opts    []chat.Option
		journal ui.RunLister
	)
	if a.cfg.Journal.Enabled {
		store, err := a.openJournal()
		if err != nil {
			printWarning(cmd.ErrOrStderr(), "journal unavailable, replies will not be recorded: %v", err)
			logger.WithComponent("cli").WithError(err).Warn("failed to open journal")
		} else {
			defer store.Close()
			opts = append(opts, chat.WithRecorder(store))
			journal = store
		}
	}

	model := ui.New(ui.Config{
		SessionID: id,
		Backend:   c,
		Chats:     chat.NewManager(c, opts...),
		Journal:   journal,
		Defaults:  a.cfg.Formatting,
		ExportDir: a.cfg.Export.Dir,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run chat TUI: %w", err)
	}
	return nil
}
