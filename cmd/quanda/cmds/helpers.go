package cmds

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/quanda/pkg/conversation"
	"github.com/go-go-golems/quanda/pkg/events"
	"github.com/go-go-golems/quanda/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const eventLogTopic = "stream"

func loadSettings() (*settings.Settings, error) {
	s, err := settings.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Str("settings", s.String()).Msg("loaded settings")
	return s, nil
}

// eventLog writes the stream events of a session to a file, one JSON object
// per line.
type eventLog struct {
	router  *events.EventRouter
	manager *events.PublisherManager
	f       *os.File
}

func newEventLog(filename string) (*eventLog, error) {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open event log %s", filename)
	}

	router, err := events.NewEventRouter(events.WithVerbose(log.Debug().Enabled()))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	router.AddHandler("event-log", eventLogTopic, events.JSONLinesWriter(f))

	manager := events.NewPublisherManager()
	manager.SubscribePublisher(eventLogTopic, router.Publisher)

	return &eventLog{router: router, manager: manager, f: f}, nil
}

func (l *eventLog) NodeOption() conversation.NodeOption {
	return conversation.WithObserver(events.NewSink(l.manager))
}

// Run runs the router until ctx is done.
func (l *eventLog) Run(ctx context.Context) error {
	return l.router.Run(ctx)
}

// Wait blocks until the router handles events, or ctx is done.
func (l *eventLog) Wait(ctx context.Context) error {
	select {
	case <-l.router.Running():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *eventLog) Close() error {
	err := l.router.Close()
	if err_ := l.f.Close(); err_ != nil && err == nil {
		err = err_
	}
	return err
}

// printStream drives n on w, fragment by fragment, and ends the answer with
// a newline.
func printStream(ctx context.Context, w io.Writer, fragments *conversation.Fragments) error {
	for f, err := range fragments.Seq(ctx) {
		if err != nil {
			_, _ = fmt.Fprintln(w)
			return err
		}
		if _, err := fmt.Fprint(w, f); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

func printRecords(w io.Writer, records []conversation.Record) {
	for _, r := range records {
		marker := ""
		if !r.Complete {
			marker = " (partial)"
		}
		if r.Summary {
			marker = " (summary)"
		}
		_, _ = fmt.Fprintf(w, "  %s%s\n", r, marker)
	}
}
