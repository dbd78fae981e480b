package events

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventRouter runs handlers for the stream events published on an in-process
// watermill pubsub. Publishing blocks until the handlers acked the event, so
// handlers see events in stream order.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

// WithVerbose routes watermill's own logging to zerolog.
func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		if verbose {
			r.logger = NewWatermillLogger(log.Logger)
		}
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}

	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "could not create event router")
	}
	ret.router = router

	return ret, nil
}

// AddHandler registers f for the events published on topic. Messages that do
// not decode into an Event are logged and skipped.
func (e *EventRouter) AddHandler(name string, topic string, f func(*Event) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, func(msg *message.Message) error {
		ev := &Event{}
		if err := json.Unmarshal(msg.Payload, ev); err != nil {
			log.Error().Err(err).Str("message_id", msg.UUID).Msg("could not decode stream event")
			return nil
		}
		return f(ev)
	})
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

// Running is closed once every handler is subscribed.
func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) Close() error {
	err := e.router.Close()
	if err != nil {
		log.Error().Err(err).Msg("failed to close router")
	}
	if err_ := e.Publisher.Close(); err_ != nil {
		log.Error().Err(err_).Msg("failed to close pubsub")
		if err == nil {
			err = err_
		}
	}
	return err
}

// JSONLinesWriter returns a handler writing every event to w as one line of
// JSON, for event logs.
func JSONLinesWriter(w io.Writer) func(*Event) error {
	var mu sync.Mutex
	encoder := json.NewEncoder(w)
	return func(e *Event) error {
		mu.Lock()
		defer mu.Unlock()
		return encoder.Encode(e)
	}
}
