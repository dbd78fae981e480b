package cmds

import (
	"fmt"

	"github.com/go-go-golems/quanda/pkg/conversation"
	"github.com/go-go-golems/quanda/pkg/tokens"
	"github.com/spf13/cobra"
)

func NewHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <file>",
		Short: "Show the context of the current node of a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			s, err := loadSettings()
			if err != nil {
				return err
			}
			counter, err := tokens.NewCounterFor(s.Encoding, s.Model)
			if err != nil {
				return err
			}

			session, err := conversation.LoadSession(ctx, args[0], nil)
			if err != nil {
				return err
			}
			current := session.Current()
			if current == nil {
				_, _ = fmt.Fprintln(w, "empty session")
				return nil
			}

			records, err := conversation.DefaultContextBuilder.Collect(ctx, current)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "Session %s, %d nodes, %d roots\n\n", session.ID, session.Len(), len(session.Roots()))
			printRecords(w, records)

			stats, err := counter.CountRecords(records)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "\nTokens (%s): %d\n", counter.Name(), stats.Total)
			for _, d := range stats.Distances() {
				_, _ = fmt.Fprintf(w, "  distance %s: %d\n", d, stats.ByDistance[d])
			}
			return nil
		},
	}
}
