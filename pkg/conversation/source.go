package conversation

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// FragmentSource produces the fragments of a single answer, in order.
//
// Next returns the next fragment, or io.EOF once the answer is complete.
// Empty fragments are allowed and are skipped by the answer stream.
// A source is only ever pulled by one caller at a time.
type FragmentSource interface {
	Next(ctx context.Context) (string, error)
}

type SourceFunc func(ctx context.Context) (string, error)

func (f SourceFunc) Next(ctx context.Context) (string, error) {
	return f(ctx)
}

// Generator creates the fragment source answering the last question of prompt.
// It is called at most once per node, on the first pull of the node's stream,
// once every ancestor of the node is answered.
type Generator interface {
	Generate(ctx context.Context, prompt []Record) (FragmentSource, error)
}

type GeneratorFunc func(ctx context.Context, prompt []Record) (FragmentSource, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt []Record) (FragmentSource, error) {
	return f(ctx, prompt)
}

type sliceSource struct {
	fragments []string
	pos       int
	done      bool
}

// FromStrings returns a source producing the given fragments.
func FromStrings(fragments ...string) FragmentSource {
	return &sliceSource{fragments: fragments}
}

// FromText returns a source producing text one rune at a time.
func FromText(text string) FragmentSource {
	fragments := make([]string, 0, len(text))
	for _, r := range text {
		fragments = append(fragments, string(r))
	}
	return &sliceSource{fragments: fragments}
}

func (s *sliceSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.done {
		return "", ErrSourceExhausted
	}
	if s.pos >= len(s.fragments) {
		s.done = true
		return "", io.EOF
	}
	fragment := s.fragments[s.pos]
	s.pos++
	return fragment, nil
}

// exhaustGuard turns any pull after io.EOF into ErrSourceExhausted, so that a
// source is never asked for more once it declared itself finished.
type exhaustGuard struct {
	source FragmentSource
	done   bool
}

func (g *exhaustGuard) Next(ctx context.Context) (string, error) {
	if g.done {
		return "", ErrSourceExhausted
	}
	fragment, err := g.source.Next(ctx)
	if errors.Is(err, io.EOF) {
		g.done = true
	}
	return fragment, err
}

// deferredSource asks its generator for the real source on the first pull,
// with the prompt of the node it answers. Pending ancestors are driven to
// completion first, root first; if one fails, the generator is not called
// and the next pull tries again.
type deferredSource struct {
	node      *Node
	generator Generator
	source    FragmentSource
}

func (d *deferredSource) Next(ctx context.Context) (string, error) {
	if d.source == nil {
		// a model is prompted with whole ancestor answers, never partial ones
		if parent := d.node.Parent(); parent != nil {
			for _, ancestor := range parent.Path() {
				if _, err := ancestor.AwaitAnswer(ctx); err != nil {
					return "", errors.Wrapf(err, "could not answer ancestor %s", ancestor.ID)
				}
			}
		}
		prompt, err := d.node.config.builder.Prompt(ctx, d.node)
		if err != nil {
			return "", errors.Wrap(err, "could not build prompt")
		}
		source, err := d.generator.Generate(ctx, prompt)
		if err != nil {
			return "", errors.Wrap(err, "could not start generation")
		}
		if source == nil {
			source = FromStrings()
		}
		d.source = source
	}
	return d.source.Next(ctx)
}
