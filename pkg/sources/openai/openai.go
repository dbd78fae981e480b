package openai

import (
	"context"
	"io"

	"github.com/go-go-golems/quanda/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

func NewClient(apiKey string, baseURL string) *go_openai.Client {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return go_openai.NewClientWithConfig(config)
}

// Generator answers prompts with an OpenAI compatible chat completion
// endpoint.
type Generator struct {
	client       *go_openai.Client
	model        string
	stream       bool
	systemPrompt string
}

var _ conversation.Generator = (*Generator)(nil)

type GeneratorOption func(*Generator)

// WithStream selects between streamed completions and a single response
// delivered as one fragment.
func WithStream(stream bool) GeneratorOption {
	return func(g *Generator) {
		g.stream = stream
	}
}

// WithSystemPrompt prefixes every prompt with a system message.
func WithSystemPrompt(prompt string) GeneratorOption {
	return func(g *Generator) {
		g.systemPrompt = prompt
	}
}

func NewGenerator(client *go_openai.Client, model string, options ...GeneratorOption) *Generator {
	ret := &Generator{
		client: client,
		model:  model,
		stream: true,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func roleToOpenAI(r conversation.Role) string {
	switch r {
	case conversation.RoleSystem:
		return go_openai.ChatMessageRoleSystem
	case conversation.RoleAssistant:
		return go_openai.ChatMessageRoleAssistant
	default:
		return go_openai.ChatMessageRoleUser
	}
}

func (g *Generator) messages(prompt []conversation.Record) []go_openai.ChatCompletionMessage {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(prompt)+1)
	if g.systemPrompt != "" {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: g.systemPrompt,
		})
	}
	for _, r := range prompt {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    roleToOpenAI(r.Role),
			Content: r.Text,
		})
	}
	return ret
}

func (g *Generator) Generate(ctx context.Context, prompt []conversation.Record) (conversation.FragmentSource, error) {
	req := go_openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: g.messages(prompt),
		Stream:   g.stream,
	}

	log.Debug().Str("model", g.model).Int("messages", len(req.Messages)).Bool("stream", g.stream).
		Msg("openai chat completion")

	if !g.stream {
		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, errors.Wrap(err, "openai chat completion failed")
		}
		if len(resp.Choices) == 0 {
			return conversation.FromStrings(), nil
		}
		return conversation.FromStrings(resp.Choices[0].Message.Content), nil
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "openai chat completion stream failed")
	}
	return &streamSource{stream: stream}, nil
}

// streamSource hands out the content deltas of a completion stream. The
// stream is closed once it ends or fails.
type streamSource struct {
	stream *go_openai.ChatCompletionStream
	chunks int
	err    error
}

func (s *streamSource) Next(ctx context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for {
		response, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Debug().Int("chunks_received", s.chunks).Msg("openai stream completed")
			s.finish(io.EOF)
			return "", io.EOF
		}
		if err != nil {
			err = errors.Wrap(err, "openai stream receive failed")
			s.finish(err)
			return "", err
		}
		s.chunks++

		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *streamSource) finish(err error) {
	s.err = err
	s.stream.Close()
}
