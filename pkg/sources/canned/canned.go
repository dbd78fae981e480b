package canned

import (
	"context"

	"github.com/go-go-golems/quanda/pkg/conversation"
)

// Generator answers every prompt with a fixed text, streamed one rune at a
// time. Without an answer it echoes the question being answered.
type Generator struct {
	Answer string
}

var _ conversation.Generator = (*Generator)(nil)

func NewGenerator(answer string) *Generator {
	return &Generator{Answer: answer}
}

func (g *Generator) Generate(ctx context.Context, prompt []conversation.Record) (conversation.FragmentSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.Answer != "" {
		return conversation.FromText(g.Answer), nil
	}
	if len(prompt) == 0 {
		return conversation.FromStrings(), nil
	}
	return conversation.FromText(prompt[len(prompt)-1].Text), nil
}
