package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/quanda/pkg/conversation"
	"github.com/go-go-golems/quanda/pkg/sources"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"
)

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively, each on top of the previous answer",
		Long: `Ask questions interactively. Each question is asked on the current node
and its answer is streamed as it is generated.

Commands:
  /new     start a new thread with the next question
  /back    ask the next question on the parent of the current node
  /retry   resume the answer of the current node
  /quit    leave the chat`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}
	cmd.Flags().String("save", "", "Save the session to this file on exit (.json or .yaml)")
	cmd.Flags().String("load", "", "Resume the session saved in this file")
	cmd.Flags().String("event-log", "", "Append stream events to this file as JSON lines")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	saveFile, _ := cmd.Flags().GetString("save")
	loadFile, _ := cmd.Flags().GetString("load")
	eventLogFile, _ := cmd.Flags().GetString("event-log")

	s, err := loadSettings()
	if err != nil {
		return err
	}
	generator, err := sources.NewGenerator(s)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var sessionOptions []conversation.SessionOption
	eg := errgroup.Group{}

	var el *eventLog
	if eventLogFile != "" {
		el, err = newEventLog(eventLogFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := el.Close(); err != nil {
				log.Warn().Err(err).Msg("could not close event log")
			}
		}()
		sessionOptions = append(sessionOptions, conversation.WithSessionNodeOptions(el.NodeOption()))
		eg.Go(func() error {
			defer cancel()
			return el.Run(ctx)
		})
	}

	eg.Go(func() error {
		defer cancel()

		if el != nil {
			if err := el.Wait(ctx); err != nil {
				return err
			}
		}

		var session *conversation.Session
		if loadFile != "" {
			var err error
			session, err = conversation.LoadSession(ctx, loadFile, generator, sessionOptions...)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Resumed session %s with %d nodes\n", session.ID, session.Len())
		} else {
			session = conversation.NewSession(sessionOptions...)
		}

		c := &chat{
			session:   session,
			generator: generator,
			prompter:  newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()),
			out:       cmd.OutOrStdout(),
			errOut:    cmd.ErrOrStderr(),
		}
		if err := c.loop(ctx); err != nil {
			return err
		}

		if saveFile != "" {
			if err := session.SaveToFile(saveFile); err != nil {
				return errors.Wrapf(err, "could not save session to %s", saveFile)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved session to %s\n", saveFile)
		}
		return nil
	})

	return eg.Wait()
}

type chat struct {
	session   *conversation.Session
	generator conversation.Generator
	prompter  prompter
	out       io.Writer
	errOut    io.Writer
	newThread bool
}

func (c *chat) loop(ctx context.Context) error {
	for {
		question, err := c.prompter.Ask()
		if errors.Is(err, io.EOF) || errors.Is(err, input.ErrInterrupted) {
			return nil
		}
		if err != nil {
			return err
		}
		question = strings.TrimSpace(question)

		switch question {
		case "":
			continue
		case "/quit":
			return nil
		case "/new":
			c.newThread = true
			continue
		case "/back":
			c.back()
			continue
		case "/retry":
			c.retry(ctx)
			continue
		}

		var n *conversation.Node
		if c.newThread {
			n = c.session.NewThreadWith(question, c.generator)
			c.newThread = false
		} else {
			n = c.session.AskWith(question, c.generator)
		}
		c.answer(ctx, n.Drive())

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *chat) answer(ctx context.Context, fragments *conversation.Fragments) {
	if err := printStream(ctx, c.out, fragments); err != nil {
		log.Debug().Err(err).Msg("answer stream failed")
		_, _ = fmt.Fprintf(c.errOut, "error: %v (use /retry to resume)\n", err)
	}
}

func (c *chat) back() {
	current := c.session.Current()
	if current == nil || current.Parent() == nil {
		c.newThread = true
		_, _ = fmt.Fprintln(c.out, "Next question starts a new thread")
		return
	}
	parent, err := c.session.Branch(current.Parent().ID)
	if err != nil {
		_, _ = fmt.Fprintf(c.errOut, "error: %v\n", err)
		return
	}
	_, _ = fmt.Fprintf(c.out, "Back at %s\n", parent)
}

func (c *chat) retry(ctx context.Context) {
	current := c.session.Current()
	if current == nil {
		return
	}
	if current.IsDone() {
		_, _ = fmt.Fprintln(c.out, current.Partial())
		return
	}
	_, _ = fmt.Fprint(c.out, current.Partial())
	c.answer(ctx, current.Resume())
}

type prompter interface {
	Ask() (string, error)
}

func newPrompter(in io.Reader, out io.Writer) prompter {
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return &ttyPrompter{ui: &input.UI{Writer: out, Reader: in}}
	}
	return &linePrompter{scanner: bufio.NewScanner(in)}
}

type ttyPrompter struct {
	ui *input.UI
}

func (p *ttyPrompter) Ask() (string, error) {
	return p.ui.Ask("Q:", &input.Options{
		Required:  true,
		Loop:      true,
		HideOrder: true,
	})
}

type linePrompter struct {
	scanner *bufio.Scanner
}

func (p *linePrompter) Ask() (string, error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}
