package conversation

import (
	"context"
	"iter"

	"github.com/pkg/errors"
)

// Summarizer replaces the question and answer records of a distant ancestor
// with a single record. The builder overwrites NodeID and Distance of the
// returned record and marks it as a summary.
type Summarizer interface {
	Summarize(ctx context.Context, n *Node, distance Distance, records []Record) (Record, error)
}

type SummarizerFunc func(ctx context.Context, n *Node, distance Distance, records []Record) (Record, error)

func (f SummarizerFunc) Summarize(ctx context.Context, n *Node, distance Distance, records []Record) (Record, error) {
	return f(ctx, n, distance, records)
}

// ContextBuilder turns the ancestor chain of a node into the ordered records a
// model is prompted with.
type ContextBuilder struct {
	summarizer Summarizer
	threshold  Distance
}

type ContextBuilderOption func(*ContextBuilder)

// WithSummarizer makes the builder summarize every node whose distance is
// strictly greater than threshold.
func WithSummarizer(s Summarizer, threshold Distance) ContextBuilderOption {
	return func(b *ContextBuilder) {
		b.summarizer = s
		b.threshold = max(threshold, 0)
	}
}

// DefaultContextBuilder emits raw records for every distance.
var DefaultContextBuilder = NewContextBuilder()

func NewContextBuilder(options ...ContextBuilderOption) *ContextBuilder {
	ret := &ContextBuilder{}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Build lazily yields the context of n, root first. Every node contributes a
// question record followed by an answer record, stamped with its distance to
// n; n itself is at distance 0. The sequence stops after the first error.
func (b *ContextBuilder) Build(ctx context.Context, n *Node) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		if n == nil {
			return
		}
		b.emit(ctx, n, 0, yield)
	}
}

// emit recurses to the parent first, so records come out root first without
// collecting and reversing the chain.
func (b *ContextBuilder) emit(ctx context.Context, n *Node, d Distance, yield func(Record, error) bool) bool {
	if n.parent != nil {
		if !b.emit(ctx, n.parent, d.Next(), yield) {
			return false
		}
	}

	if err := ctx.Err(); err != nil {
		yield(Record{}, err)
		return false
	}

	records := nodeRecords(n, d)

	if b.summarizer != nil && d > b.threshold {
		summary, err := b.summarizer.Summarize(ctx, n, d, records)
		if err != nil {
			yield(Record{}, errors.Wrapf(err, "could not summarize node %s", n.ID))
			return false
		}
		summary.NodeID = n.ID
		summary.Distance = d
		summary.Summary = true
		return yield(summary, nil)
	}

	for _, r := range records {
		if !yield(r, nil) {
			return false
		}
	}
	return true
}

func nodeRecords(n *Node, d Distance) []Record {
	text, state := n.stream.snapshot()
	return []Record{
		{
			NodeID:   n.ID,
			Role:     RoleUser,
			Text:     n.Question,
			Distance: d,
			Complete: true,
		},
		{
			NodeID:   n.ID,
			Role:     RoleAssistant,
			Text:     text,
			Distance: d,
			Complete: state == StreamCompleted,
		},
	}
}

// Collect returns the whole context of n.
func (b *ContextBuilder) Collect(ctx context.Context, n *Node) ([]Record, error) {
	var ret []Record
	for r, err := range b.Build(ctx, n) {
		if err != nil {
			return nil, err
		}
		ret = append(ret, r)
	}
	return ret, nil
}

// Prompt returns the context of n without n's own answer record: what a model
// needs to answer n's question.
func (b *ContextBuilder) Prompt(ctx context.Context, n *Node) ([]Record, error) {
	records, err := b.Collect(ctx, n)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		last := records[len(records)-1]
		if last.NodeID == n.ID && last.Role == RoleAssistant && !last.Summary {
			records = records[:len(records)-1]
		}
	}
	return records, nil
}
