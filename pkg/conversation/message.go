package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type NodeID uuid.UUID

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var uuid uuid.UUID
	if err := json.Unmarshal(data, &uuid); err != nil {
		return err
	}
	*id = NodeID(uuid)
	return nil
}

func (id NodeID) MarshalYAML() (interface{}, error) {
	return id.String(), nil
}

func (id *NodeID) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return errors.Wrapf(err, "invalid node id %q", s)
	}
	*id = NodeID(parsed)
	return nil
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

var NullNode NodeID = NodeID(uuid.Nil)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Record is one entry of the context handed to a model: the question or the
// answer side of a node, stamped with the node's distance from the node the
// context was built for.
type Record struct {
	NodeID   NodeID   `json:"nodeID" yaml:"node_id"`
	Role     Role     `json:"role" yaml:"role"`
	Text     string   `json:"text" yaml:"text"`
	Distance Distance `json:"distance" yaml:"distance"`
	// Complete is false for the answer record of a node whose stream has not
	// finished yet; Text then holds the partial answer.
	Complete bool `json:"complete" yaml:"complete"`
	// Summary is set on records produced by a Summarizer in place of a
	// node's question and answer records.
	Summary bool `json:"summary,omitempty" yaml:"summary,omitempty"`
}

func (r Record) String() string {
	return fmt.Sprintf("[%s @%s]: %s", r.Role, r.Distance, strings.TrimRight(r.Text, "\n"))
}
