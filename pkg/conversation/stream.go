package conversation

import (
	"context"
	"io"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type StreamState int

const (
	// StreamPending means the source has not reported io.EOF yet. The
	// accumulated text may be empty or partial.
	StreamPending StreamState = iota
	// StreamCompleted means the source was drained and the answer is final.
	StreamCompleted
)

func (s StreamState) String() string {
	switch s {
	case StreamPending:
		return "pending"
	case StreamCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// StreamObserver is notified synchronously from the pulling goroutine.
// Observers must not drive the stream they observe.
type StreamObserver interface {
	OnFragment(n *Node, fragment string, accumulated string)
	OnComplete(n *Node, answer string)
}

// AnswerStream is the at-most-once computation of a node's answer.
//
// The source is pulled only through pull, which is guarded so that a single
// pull is in flight at any time. The mutex only protects state and
// accumulated, and is never held while the source runs.
type AnswerStream struct {
	node   *Node
	source FragmentSource

	busy atomic.Bool

	mu          sync.Mutex
	state       StreamState
	accumulated strings.Builder
	answer      string
	pulls       int
}

func newAnswerStream(n *Node, source FragmentSource) *AnswerStream {
	if source == nil {
		source = FromStrings()
	}
	return &AnswerStream{
		node:   n,
		source: &exhaustGuard{source: source},
	}
}

func (s *AnswerStream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the accumulated text, partial while pending.
func (s *AnswerStream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulated.String()
}

// Answer returns the final answer, and false while the stream is pending.
func (s *AnswerStream) Answer() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer, s.state == StreamCompleted
}

// Pulls returns how many times the source has been asked for a fragment.
func (s *AnswerStream) Pulls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulls
}

func (s *AnswerStream) snapshot() (string, StreamState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulated.String(), s.state
}

// pull appends the next non-empty fragment of the source to the accumulated
// text. It returns io.EOF once the stream is completed.
func (s *AnswerStream) pull(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrStreamBusy
	}
	defer s.busy.Store(false)

	for {
		if s.State() == StreamCompleted {
			return io.EOF
		}

		s.mu.Lock()
		s.pulls++
		s.mu.Unlock()

		fragment, err := s.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.complete()
			return io.EOF
		}
		if err != nil {
			return errors.Wrapf(err, "could not pull fragment for node %s", s.node.ID)
		}
		if fragment == "" {
			continue
		}

		s.mu.Lock()
		s.accumulated.WriteString(fragment)
		accumulated := s.accumulated.String()
		s.mu.Unlock()

		for _, o := range s.node.config.observers {
			o.OnFragment(s.node, fragment, accumulated)
		}
		return nil
	}
}

func (s *AnswerStream) complete() {
	s.mu.Lock()
	if s.state == StreamCompleted {
		s.mu.Unlock()
		return
	}
	s.state = StreamCompleted
	s.answer = s.accumulated.String()
	answer := s.answer
	pulls := s.pulls
	s.mu.Unlock()

	log.Debug().
		Str("node_id", s.node.ID.String()).
		Int("pulls", pulls).
		Int("answer_length", len(answer)).
		Msg("answer stream completed")

	for _, o := range s.node.config.observers {
		o.OnComplete(s.node, answer)
	}
}

// Fragments is a pull cursor over a node's answer stream. Several cursors may
// exist for the same stream; they share the single underlying source.
//
// A cursor first returns, as one fragment, any accumulated text it has not
// delivered yet, then pulls new fragments from the source. Next returns
// io.EOF when the stream is completed and everything was delivered.
type Fragments struct {
	stream *AnswerStream
	offset int
	done   bool
}

func (f *Fragments) Next(ctx context.Context) (string, error) {
	if f.done {
		return "", io.EOF
	}
	for {
		text, state := f.stream.snapshot()
		if len(text) > f.offset {
			backlog := text[f.offset:]
			f.offset = len(text)
			return backlog, nil
		}
		if state == StreamCompleted {
			f.done = true
			return "", io.EOF
		}

		err := f.stream.pull(ctx)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
	}
}

// Seq exposes the cursor as a range-over-func sequence. Iteration stops after
// the first error, which is yielded.
func (f *Fragments) Seq(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			fragment, err := f.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(fragment, err) || err != nil {
				return
			}
		}
	}
}
