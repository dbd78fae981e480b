package conversation

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Session owns the nodes of one or more conversation trees and tracks the
// node new questions are asked on.
//
// Nodes only point to their parent. The parent-to-children edges a session
// needs for branching live in a separate index keyed by parent ID.
type Session struct {
	ID uuid.UUID

	mu          sync.RWMutex
	nodes       map[NodeID]*Node
	order       []NodeID
	children    map[NodeID][]NodeID
	roots       []NodeID
	current     *Node
	nodeOptions []NodeOption
}

type SessionOption func(*Session)

func WithSessionID(id uuid.UUID) SessionOption {
	return func(s *Session) {
		s.ID = id
	}
}

// WithSessionNodeOptions sets options applied to every root the session
// creates. Children inherit the configuration of their parent.
func WithSessionNodeOptions(options ...NodeOption) SessionOption {
	return func(s *Session) {
		s.nodeOptions = append(s.nodeOptions, options...)
	}
}

func NewSession(options ...SessionOption) *Session {
	ret := &Session{
		ID:       uuid.Nil,
		nodes:    make(map[NodeID]*Node),
		children: make(map[NodeID][]NodeID),
	}
	for _, option := range options {
		option(ret)
	}
	if ret.ID == uuid.Nil {
		ret.ID = uuid.New()
	}
	return ret
}

// Ask asks question on the current node, or starts a new thread if the
// session is empty. The new node becomes current.
func (s *Session) Ask(question string, source FragmentSource, options ...NodeOption) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n *Node
	if s.current == nil {
		n = NewRoot(question, source, slices.Concat(s.nodeOptions, options)...)
	} else {
		n = s.current.Ask(question, source, options...)
	}
	s.insert(n)
	return n
}

// AskWith is Ask with an answer produced lazily by generator.
func (s *Session) AskWith(question string, generator Generator, options ...NodeOption) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n *Node
	if s.current == nil {
		n = NewRootWith(question, generator, slices.Concat(s.nodeOptions, options)...)
	} else {
		n = s.current.AskWith(question, generator, options...)
	}
	s.insert(n)
	return n
}

// NewThread starts a new conversation root and makes it current.
func (s *Session) NewThread(question string, source FragmentSource, options ...NodeOption) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := NewRoot(question, source, slices.Concat(s.nodeOptions, options)...)
	s.insert(n)
	return n
}

// NewThreadWith is NewThread with an answer produced lazily by generator.
func (s *Session) NewThreadWith(question string, generator Generator, options ...NodeOption) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := NewRootWith(question, generator, slices.Concat(s.nodeOptions, options)...)
	s.insert(n)
	return n
}

func (s *Session) insert(n *Node) {
	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)
	if p := n.Parent(); p != nil {
		s.children[p.ID] = append(s.children[p.ID], n.ID)
	} else {
		s.roots = append(s.roots, n.ID)
	}
	s.current = n

	log.Trace().
		Str("session_id", s.ID.String()).
		Str("node_id", n.ID.String()).
		Int("depth", n.Depth()).
		Int("node_count", len(s.nodes)).
		Msg("inserted node")
}

// Branch makes the node with the given ID current, so that the next question
// starts a new branch from it.
func (s *Session) Branch(id NodeID) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, errors.Errorf("unknown node %s", id)
	}
	s.current = n
	return n, nil
}

func (s *Session) Current() *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Session) Get(id NodeID) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Children returns the children of id in creation order.
func (s *Session) Children(id NodeID) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.children[id])
}

// Siblings returns the other children of id's parent.
func (s *Session) Siblings(id NodeID) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil
	}
	var candidates []NodeID
	if p := n.Parent(); p != nil {
		candidates = s.children[p.ID]
	} else {
		candidates = s.roots
	}

	var ret []*Node
	for _, sibling := range s.lookup(candidates) {
		if sibling.ID != id {
			ret = append(ret, sibling)
		}
	}
	return ret
}

func (s *Session) Roots() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.roots)
}

// Thread returns the path of the current node, root first.
func (s *Session) Thread() []*Node {
	current := s.Current()
	if current == nil {
		return nil
	}
	return current.Path()
}

func (s *Session) lookup(ids []NodeID) []*Node {
	ret := make([]*Node, 0, len(ids))
	for _, id := range ids {
		ret = append(ret, s.nodes[id])
	}
	return ret
}

type savedNode struct {
	ID       NodeID    `json:"id" yaml:"id"`
	ParentID NodeID    `json:"parentID" yaml:"parent_id"`
	Question string    `json:"question" yaml:"question"`
	Answer   *string   `json:"answer,omitempty" yaml:"answer,omitempty"`
	Time     time.Time `json:"time" yaml:"time"`
}

type savedSession struct {
	ID        string      `json:"id" yaml:"id"`
	CurrentID NodeID      `json:"currentID" yaml:"current_id"`
	Nodes     []savedNode `json:"nodes" yaml:"nodes"`
}

func isYAML(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// SaveToFile writes every node of the session in creation order, as YAML if
// filename ends in .yaml or .yml and as JSON otherwise. Unanswered nodes are
// saved without an answer.
func (s *Session) SaveToFile(filename string) error {
	s.mu.RLock()
	saved := savedSession{
		ID:        s.ID.String(),
		CurrentID: NullNode,
	}
	if s.current != nil {
		saved.CurrentID = s.current.ID
	}
	for _, id := range s.order {
		n := s.nodes[id]
		sn := savedNode{
			ID:       n.ID,
			ParentID: NullNode,
			Question: n.Question,
			Time:     n.Time,
		}
		if p := n.Parent(); p != nil {
			sn.ParentID = p.ID
		}
		if answer, ok := n.Answer(); ok {
			sn.Answer = &answer
		}
		saved.Nodes = append(saved.Nodes, sn)
	}
	s.mu.RUnlock()

	var data []byte
	var err error
	if isYAML(filename) {
		data, err = yaml.Marshal(saved)
	} else {
		data, err = json.MarshalIndent(saved, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "could not serialize session")
	}

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(filename, data, 0644)
}

// LoadSession restores a session written by SaveToFile. Saved answers are
// replayed through a canned source, so restored nodes are completed. Nodes
// saved without an answer are answered by generator when driven, or get an
// empty answer if generator is nil.
func LoadSession(ctx context.Context, filename string, generator Generator, options ...SessionOption) (*Session, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var saved savedSession
	if isYAML(filename) {
		err = yaml.Unmarshal(data, &saved)
	} else {
		err = json.Unmarshal(data, &saved)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse session file %s", filename)
	}

	if id, err := uuid.Parse(saved.ID); err == nil {
		options = append([]SessionOption{WithSessionID(id)}, options...)
	}
	s := NewSession(options...)

	for _, sn := range saved.Nodes {
		nodeOptions := []NodeOption{WithID(sn.ID), WithTime(sn.Time)}

		var parent *Node
		if sn.ParentID != NullNode {
			p, ok := s.nodes[sn.ParentID]
			if !ok {
				return nil, errors.Errorf("node %s refers to unknown parent %s", sn.ID, sn.ParentID)
			}
			parent = p
		} else {
			nodeOptions = slices.Concat(s.nodeOptions, nodeOptions)
		}

		var n *Node
		switch {
		case sn.Answer != nil && parent == nil:
			n = NewRoot(sn.Question, FromStrings(*sn.Answer), nodeOptions...)
		case sn.Answer != nil:
			n = parent.Ask(sn.Question, FromStrings(*sn.Answer), nodeOptions...)
		case parent == nil:
			n = NewRootWith(sn.Question, generator, nodeOptions...)
		default:
			n = parent.AskWith(sn.Question, generator, nodeOptions...)
		}

		if sn.Answer != nil {
			if _, err := n.AwaitAnswer(ctx); err != nil {
				return nil, errors.Wrapf(err, "could not restore answer of node %s", sn.ID)
			}
		}

		s.mu.Lock()
		s.insert(n)
		s.mu.Unlock()
	}

	if current, ok := s.nodes[saved.CurrentID]; ok {
		s.current = current
	}

	log.Debug().
		Str("session_id", s.ID.String()).
		Str("file", filename).
		Int("node_count", len(s.nodes)).
		Msg("loaded session")

	return s, nil
}
