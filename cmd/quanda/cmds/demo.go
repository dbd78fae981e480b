package cmds

import (
	"context"
	"fmt"
	"io"

	"github.com/go-go-golems/quanda/pkg/conversation"
	"github.com/spf13/cobra"
)

func NewDemoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk through a canned two question conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runDemo(ctx context.Context, w io.Writer) error {
	root := conversation.NewRoot("What is my name?",
		conversation.FromStrings("You ", "are ", "anonymous."))
	child := root.Ask("What makes it anonymous?",
		conversation.FromStrings("No ", "login."))

	_, _ = fmt.Fprintf(w, "Created %s and %s, nothing generated yet (%s, %s)\n\n",
		root.Question, child.Question, root.State(), child.State())

	_, _ = fmt.Fprintf(w, "Q: %s\nA: ", root.Question)
	if err := printStream(ctx, w, root.Drive()); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\nQ: %s\n", child.Question)
	fragment, err := child.Drive().Next(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "first fragment %q, partial answer %q (%s)\n", fragment, child.Partial(), child.State())
	_, _ = fmt.Fprintf(w, "A: %s", child.Partial())
	if err := printStream(ctx, w, child.Resume()); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\nPath of length %d:\n", child.Len())
	for i, n := range child.Path() {
		_, _ = fmt.Fprintf(w, "  %d %s\n", i, n)
	}
	if _, err := child.At(5); err != nil {
		_, _ = fmt.Fprintf(w, "  At(5): %v\n", err)
	}

	records, err := conversation.DefaultContextBuilder.Collect(ctx, child)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, "\nContext:")
	printRecords(w, records)

	summarizing := conversation.NewContextBuilder(conversation.WithSummarizer(
		conversation.SummarizerFunc(func(_ context.Context, n *conversation.Node, _ conversation.Distance, records []conversation.Record) (conversation.Record, error) {
			return conversation.Record{
				Role:     conversation.RoleSystem,
				Text:     fmt.Sprintf("asked %q, answered %q", records[0].Text, records[1].Text),
				Complete: n.IsDone(),
			}, nil
		}), 0))
	records, err = summarizing.Collect(ctx, child)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, "\nContext with ancestors summarized:")
	printRecords(w, records)

	return nil
}
