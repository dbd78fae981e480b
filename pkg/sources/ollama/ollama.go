package ollama

import (
	"context"
	"io"
	"os"

	"github.com/go-go-golems/quanda/pkg/conversation"
	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// NewClient connects to the Ollama server at host. An empty host keeps the
// OLLAMA_HOST environment variable (or the client's default) in place.
func NewClient(host string) (*api.Client, error) {
	if host != "" {
		if err := os.Setenv("OLLAMA_HOST", host); err != nil {
			return nil, errors.Wrap(err, "could not set OLLAMA_HOST")
		}
	}
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "could not create ollama client")
	}
	return client, nil
}

// Generator answers prompts with an Ollama chat model.
type Generator struct {
	client *api.Client
	model  string
	stream bool
}

var _ conversation.Generator = (*Generator)(nil)

func NewGenerator(client *api.Client, model string, stream bool) *Generator {
	return &Generator{
		client: client,
		model:  model,
		stream: stream,
	}
}

func (g *Generator) Generate(ctx context.Context, prompt []conversation.Record) (conversation.FragmentSource, error) {
	messages := make([]api.Message, 0, len(prompt))
	for _, r := range prompt {
		messages = append(messages, api.Message{
			Role:    string(r.Role),
			Content: r.Text,
		})
	}

	stream := g.stream
	req := &api.ChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   &stream,
	}

	log.Debug().Str("model", g.model).Int("messages", len(messages)).Bool("stream", stream).Msg("ollama chat")

	cancellableCtx, cancel := context.WithCancel(ctx)
	c := make(chan string)
	ret := &chanSource{
		fragments: c,
		errc:      make(chan error, 1),
		cancel:    cancel,
	}

	go func() {
		defer close(c)

		err := g.client.Chat(cancellableCtx, req, func(resp api.ChatResponse) error {
			if resp.Message == nil || resp.Message.Content == "" {
				return nil
			}
			content := resp.Message.Content
			select {
			case c <- content:
				return nil
			case <-cancellableCtx.Done():
				return cancellableCtx.Err()
			}
		})
		if err != nil {
			ret.errc <- errors.Wrap(err, "ollama chat failed")
		}
	}()

	return ret, nil
}

// chanSource pulls the fragments a chat goroutine pushes into a channel.
// The first pull error is kept and returned by every later pull.
type chanSource struct {
	fragments chan string
	errc      chan error
	cancel    context.CancelFunc
	err       error
}

func (s *chanSource) Next(ctx context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if err := ctx.Err(); err != nil {
		s.fail(err)
		return "", s.err
	}
	select {
	case <-ctx.Done():
		s.fail(ctx.Err())
		return "", s.err
	case f, ok := <-s.fragments:
		if ok {
			return f, nil
		}
	}

	select {
	case err := <-s.errc:
		s.fail(err)
	default:
		s.fail(io.EOF)
	}
	return "", s.err
}

func (s *chanSource) fail(err error) {
	s.err = err
	s.cancel()
}
