package tokens

import (
	"slices"

	"github.com/go-go-golems/quanda/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

const DefaultEncoding = "cl100k_base"

// Counter counts the tokens a conversation context costs a model.
type Counter struct {
	codec tokenizer.Codec
	name  string
}

// NewCounter returns a counter for the given encoding. An empty encoding
// selects DefaultEncoding.
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	codec, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, errors.Wrapf(err, "could not load encoding %s", encoding)
	}
	return &Counter{codec: codec, name: encoding}, nil
}

// ForModel returns a counter using the encoding of the given model.
func ForModel(model string) (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		return nil, errors.Wrapf(err, "no encoding known for model %s", model)
	}
	return &Counter{codec: codec, name: "encoding of " + model}, nil
}

// NewCounterFor picks the counter for a configuration: an explicit encoding
// wins, then the encoding of model, then DefaultEncoding. Models unknown to
// the tokenizer, like most local models, fall back to DefaultEncoding.
func NewCounterFor(encoding string, model string) (*Counter, error) {
	if encoding != "" || model == "" {
		return NewCounter(encoding)
	}
	c, err := ForModel(model)
	if err != nil {
		log.Debug().Err(err).Str("model", model).Msg("falling back to default encoding")
		return NewCounter("")
	}
	return c, nil
}

// Name describes the encoding in use.
func (c *Counter) Name() string {
	return c.name
}

func (c *Counter) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, errors.Wrap(err, "could not encode text")
	}
	return len(ids), nil
}

type Stats struct {
	Total      int
	ByDistance map[conversation.Distance]int
}

// Distances returns the distances present in s, closest first.
func (s Stats) Distances() []conversation.Distance {
	ret := make([]conversation.Distance, 0, len(s.ByDistance))
	for d := range s.ByDistance {
		ret = append(ret, d)
	}
	slices.Sort(ret)
	return ret
}

func (c *Counter) CountRecords(records []conversation.Record) (Stats, error) {
	stats := Stats{ByDistance: map[conversation.Distance]int{}}
	for _, r := range records {
		n, err := c.Count(r.Text)
		if err != nil {
			return Stats{}, errors.Wrapf(err, "could not count record of node %s", r.NodeID)
		}
		stats.Total += n
		stats.ByDistance[r.Distance] += n
	}
	return stats, nil
}
