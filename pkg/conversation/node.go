package conversation

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/pkg/errors"
)

// Node is one question/answer exchange of a conversation tree.
//
// A node holds a pointer to its parent only; the parent is fixed at creation,
// so every ancestor chain is finite and acyclic. Several children may share a
// parent. The answer is computed lazily by the node's AnswerStream the first
// time the stream is driven, and never recomputed.
type Node struct {
	ID       NodeID
	Question string
	Time     time.Time

	parent *Node
	depth  int
	stream *AnswerStream
	config nodeConfig
}

// nodeConfig is inherited by the children created through Ask and AskWith.
type nodeConfig struct {
	builder   *ContextBuilder
	observers []StreamObserver
}

type NodeOption func(*Node)

func WithID(id NodeID) NodeOption {
	return func(n *Node) {
		n.ID = id
	}
}

func WithTime(t time.Time) NodeOption {
	return func(n *Node) {
		n.Time = t
	}
}

// WithObserver adds an observer to the node's stream. Children inherit it.
func WithObserver(o StreamObserver) NodeOption {
	return func(n *Node) {
		n.config.observers = append(n.config.observers, o)
	}
}

// WithContextBuilder sets the builder used to compute the prompt handed to a
// Generator. Children inherit it.
func WithContextBuilder(b *ContextBuilder) NodeOption {
	return func(n *Node) {
		n.config.builder = b
	}
}

func newNode(question string, parent *Node, source func(n *Node) FragmentSource, options ...NodeOption) *Node {
	now := time.Now()
	ret := &Node{
		ID:       NewNodeID(),
		Question: question,
		Time:     now,
		parent:   parent,
	}
	if parent != nil {
		ret.depth = parent.depth + 1
		ret.config = nodeConfig{
			builder:   parent.config.builder,
			observers: slices.Clone(parent.config.observers),
		}
	}

	for _, option := range options {
		option(ret)
	}
	if ret.config.builder == nil {
		ret.config.builder = DefaultContextBuilder
	}

	ret.stream = newAnswerStream(ret, source(ret))
	return ret
}

// NewRoot creates the first node of a new conversation.
func NewRoot(question string, source FragmentSource, options ...NodeOption) *Node {
	return newNode(question, nil, func(*Node) FragmentSource { return source }, options...)
}

// NewRootWith creates a root node whose answer comes from generator.
func NewRootWith(question string, generator Generator, options ...NodeOption) *Node {
	return newNode(question, nil, deferTo(generator), options...)
}

// Ask creates a child of n. No fragment is produced until the child is driven.
func (n *Node) Ask(question string, source FragmentSource, options ...NodeOption) *Node {
	return newNode(question, n, func(*Node) FragmentSource { return source }, options...)
}

// AskWith creates a child of n whose answer comes from generator. The
// generator is called with the child's prompt on the first pull of the
// child's stream, not before.
func (n *Node) AskWith(question string, generator Generator, options ...NodeOption) *Node {
	return newNode(question, n, deferTo(generator), options...)
}

func deferTo(generator Generator) func(n *Node) FragmentSource {
	return func(n *Node) FragmentSource {
		if generator == nil {
			return nil
		}
		return &deferredSource{node: n, generator: generator}
	}
}

func (n *Node) Parent() *Node {
	return n.parent
}

// Depth is 0 for a root.
func (n *Node) Depth() int {
	return n.depth
}

func (n *Node) Stream() *AnswerStream {
	return n.stream
}

// Drive returns a cursor over the whole answer. On a completed node the
// cursor yields the answer as a single fragment without touching the source.
func (n *Node) Drive() *Fragments {
	return &Fragments{stream: n.stream}
}

// Resume returns a cursor that only yields text produced from now on.
func (n *Node) Resume() *Fragments {
	return &Fragments{stream: n.stream, offset: len(n.stream.Text())}
}

// AwaitAnswer drives the stream to completion and returns the answer.
func (n *Node) AwaitAnswer(ctx context.Context) (string, error) {
	if answer, ok := n.stream.Answer(); ok {
		return answer, nil
	}

	f := n.Resume()
	for {
		_, err := f.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}

	answer, _ := n.stream.Answer()
	return answer, nil
}

func (n *Node) IsDone() bool {
	_, ok := n.stream.Answer()
	return ok
}

func (n *Node) Answer() (string, bool) {
	return n.stream.Answer()
}

// Partial returns the text accumulated so far.
func (n *Node) Partial() string {
	return n.stream.Text()
}

func (n *Node) State() StreamState {
	return n.stream.State()
}

func (n *Node) String() string {
	return fmt.Sprintf("[ Q: %s, A: %s ]", n.Question, n.Partial())
}
