// internal/cli/format.go
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"rpchat/internal/formatting"
	"rpchat/internal/render"
)

func (a *app) formatCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "format [text]",
		Short: "apply the formatting rules to text",
		Long: `Apply the configured formatting rules to text and print the result.

Text is read from the arguments, or from stdin when none are given.
With --plain the segments are listed one per line with the rule that matched.`,
		Example: `  $ rpchat format '*waves* "Hello there!"'
  $ echo '~Not again.~' | rpchat format --plain`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = strings.TrimRight(string(data), "\n")
			}

			segments := formatting.Parse(text, a.cfg.Formatting)
			out := cmd.OutOrStdout()
			if plain {
				for _, seg := range segments {
					label := "text"
					if seg.Rule != nil {
						label = seg.Rule.ID
					}
					fmt.Fprintf(out, "%-10s %q\n", label, seg.Content)
				}
				return nil
			}

			fmt.Fprintln(out, render.Styled(segments))
			return nil
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "list segments instead of styling them")
	return cmd
}
