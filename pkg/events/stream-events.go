package events

import (
	"github.com/go-go-golems/quanda/pkg/conversation"
)

type EventType string

const (
	// EventTypePartial carries one new fragment of an answer.
	EventTypePartial EventType = "partial"
	// EventTypeFinal carries the completed answer.
	EventTypeFinal EventType = "final"
)

type Event struct {
	Type       EventType           `json:"type"`
	Sequence   uint64              `json:"sequence"`
	NodeID     conversation.NodeID `json:"node_id"`
	ParentID   conversation.NodeID `json:"parent_id"`
	Depth      int                 `json:"depth"`
	Question   string              `json:"question"`
	Delta      string              `json:"delta,omitempty"`
	Completion string              `json:"completion"`
}

func newEvent(t EventType, n *conversation.Node, completion string) *Event {
	parentID := conversation.NullNode
	if p := n.Parent(); p != nil {
		parentID = p.ID
	}
	return &Event{
		Type:       t,
		NodeID:     n.ID,
		ParentID:   parentID,
		Depth:      n.Depth(),
		Question:   n.Question,
		Completion: completion,
	}
}

func NewPartialEvent(n *conversation.Node, delta string, completion string) *Event {
	e := newEvent(EventTypePartial, n, completion)
	e.Delta = delta
	return e
}

func NewFinalEvent(n *conversation.Node, answer string) *Event {
	return newEvent(EventTypeFinal, n, answer)
}

// Sink publishes the progress of the answer streams it observes.
type Sink struct {
	manager *PublisherManager
}

var _ conversation.StreamObserver = (*Sink)(nil)

func NewSink(manager *PublisherManager) *Sink {
	return &Sink{manager: manager}
}

func (s *Sink) OnFragment(n *conversation.Node, fragment string, accumulated string) {
	s.manager.PublishBlind(NewPartialEvent(n, fragment, accumulated))
}

func (s *Sink) OnComplete(n *conversation.Node, answer string) {
	s.manager.PublishBlind(NewFinalEvent(n, answer))
}
