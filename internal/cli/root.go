// Package cli holds the rpchat command tree.
package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rpchat/internal/client"
	"rpchat/internal/config"
	"rpchat/internal/db"
	"rpchat/internal/logger"
)

const version = "0.1.0"

// app carries the persistent flags and the config they resolve to
type app struct {
	configPath string
	backendURL string
	logLevel   string

	cfg *config.Config
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "rpchat",
		Short:   "Terminal client for roleplay chat sessions",
		Version: version,
		Long: `Chat with roleplay characters from the terminal.

Replies stream in as they are generated, styled by the session's formatting
rules (*actions*, "speech", ~thoughts~, _emphasis_). Every reply is recorded in
a local journal so failed and cancelled streams can be looked at later.`,
		Example: `  # Open chat session 12
  $ rpchat chat 12

  # Try the formatting rules on some text
  $ rpchat format '*waves* "Hello there!"'

  # Export a transcript and preview it
  $ rpchat export 12 --preview

  # Run a local mock backend for development
  $ rpchat mock --addr :8000`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+config.ConfigPath()+")")
	root.PersistentFlags().StringVarP(&a.backendURL, "backend", "b", "", "backend URL, overrides the config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		a.chatCmd(),
		a.formatCmd(),
		a.exportCmd(),
		a.runsCmd(),
		a.mockCmd(),
	)

	root.SetVersionTemplate(fmt.Sprintf("rpchat version %s\n", version))
	return root
}

// Execute runs the command tree and reports a failure on stderr
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		printError(root.ErrOrStderr(), "%v", err)
	}
	return err
}

// setup loads the config and starts logging before any subcommand runs
func (a *app) setup(cmd *cobra.Command, args []string) error {
	path := a.configPath
	if path == "" {
		path = config.ConfigPath()
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.backendURL != "" {
		cfg.Backend.URL = a.backendURL
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		return fmt.Errorf("failed to start logging: %w", err)
	}
	logger.WithComponent("cli").WithField("command", cmd.Name()).Debug("starting")

	a.cfg = cfg
	return nil
}

func (a *app) newClient() (*client.Client, error) {
	b := a.cfg.Backend
	retry := client.DefaultRetryConfig()
	retry.MaxAttempts = b.RetryAttempts
	retry.BaseDelay = b.RetryDelayDuration()

	return client.New(b.URL,
		client.WithTimeout(b.TimeoutDuration()),
		client.WithRetry(retry),
	)
}

func (a *app) openJournal() (*db.Store, error) {
	if a.cfg.Journal.Path != "" {
		return db.OpenPath(a.cfg.Journal.Path)
	}
	return db.Open()
}

func parseSessionID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid session id %q: must be a positive integer", arg)
	}
	return id, nil
}
