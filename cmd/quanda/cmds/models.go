package cmds

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/go-go-golems/quanda/pkg/sources/ollama"
	"github.com/spf13/cobra"
)

func NewModelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models installed on the Ollama server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			output, _ := cmd.Flags().GetString("write")

			s, err := loadSettings()
			if err != nil {
				return err
			}
			client, err := ollama.NewClient(s.Host)
			if err != nil {
				return err
			}

			models, err := ollama.ListModels(cmd.Context(), client, filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "MODEL\tSIZE")
			for _, m := range models {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", m.Model, humanize.Bytes(uint64(m.Size)))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if output != "" {
				if err := ollama.WriteModelsConfig(output, models); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d models to %s\n", len(models), output)
			}
			return nil
		},
	}
	cmd.Flags().String("filter", "", "Only list models whose name matches this glob")
	cmd.Flags().String("write", "", "Write the listed models as a models config file")
	return cmd
}
