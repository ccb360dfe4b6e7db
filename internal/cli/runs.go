// internal/cli/runs.go
package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"rpchat/internal/models"
)

func (a *app) runsCmd() *cobra.Command {
	var (
		limit int
		prune time.Duration
	)

	cmd := &cobra.Command{
		Use:   "runs [session-id]",
		Short: "list recorded reply streams",
		Long: `List the reply streams recorded in the local journal, newest first.

Every message sent from the chat screen is recorded with its outcome:
done, errored or cancelled. Pass a session id to narrow the list.`,
		Example: `  $ rpchat runs
  $ rpchat runs 12 --limit 5
  $ rpchat runs --prune 720h`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sessionID int64
			if len(args) == 1 {
				id, err := parseSessionID(args[0])
				if err != nil {
					return err
				}
				sessionID = id
			}

			store, err := a.openJournal()
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if prune > 0 {
				n, err := store.Prune(time.Now().Add(-prune))
				if err != nil {
					return fmt.Errorf("failed to prune journal: %w", err)
				}
				printSuccess(out, "Pruned %d runs older than %s", n, prune)
				return nil
			}

			runs, err := store.ListRuns(sessionID, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, dimStyle.Render("No runs recorded yet."))
				return nil
			}

			fmt.Fprintln(out, boldStyle.Render(fmt.Sprintf("%-8s  %-7s  %-16s  %-10s  %-6s  %s",
				"RUN", "SESSION", "STARTED", "PHASE", "TOOK", "PROMPT")))
			for _, r := range runs {
				fmt.Fprintln(out, runLine(r))
			}

			counts, err := store.PhaseCounts(sessionID)
			if err != nil {
				return fmt.Errorf("failed to count runs: %w", err)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, dimStyle.Render(summarize(counts)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete runs older than this instead of listing")
	return cmd
}

func runLine(r models.Run) string {
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}

	took := "-"
	if d := r.Duration(); d > 0 {
		took = d.Round(100 * time.Millisecond).String()
	}

	prompt := strings.ReplaceAll(r.Prompt, "\n", " ")
	line := fmt.Sprintf("%-8s  %-7d  %-16s  %-10s  %-6s  %s",
		id, r.SessionID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Phase, took,
		runewidth.Truncate(prompt, 40, ".."))
	if r.Error != "" {
		line += "\n" + errorStyle.Render("          "+runewidth.Truncate(r.Error, 70, ".."))
	}
	return line
}

func summarize(counts map[string]int) string {
	phases := make([]string, 0, len(counts))
	total := 0
	for phase, n := range counts {
		phases = append(phases, phase)
		total += n
	}
	sort.Strings(phases)

	parts := make([]string, 0, len(phases))
	for _, phase := range phases {
		parts = append(parts, fmt.Sprintf("%d %s", counts[phase], phase))
	}
	return fmt.Sprintf("%d runs: %s", total, strings.Join(parts, ", "))
}
