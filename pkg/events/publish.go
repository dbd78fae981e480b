package events

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

const (
	MetadataSequenceNumber = "sequence_number"
	MetadataEventType      = "event_type"
	MetadataNodeID         = "node_id"
)

// PublisherManager fans stream events out to watermill publishers, each
// registered under the topic it should receive events on.
//
// Every event gets a sequence number, in the order Publish handles them, so
// that subscribers can restore ordering when the transport does not keep it.
type PublisherManager struct {
	publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mutex          sync.Mutex
}

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		publishers: make(map[string][]message.Publisher),
	}
}

func (s *PublisherManager) SubscribePublisher(topic string, pub message.Publisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.publishers[topic] = append(s.publishers[topic], pub)
}

// Publish sends e to every registered publisher. A publisher failing does not
// prevent the others from receiving the event; the last error is returned.
func (s *PublisherManager) Publish(e *Event) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e.Sequence = s.sequenceNumber
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set(MetadataSequenceNumber, strconv.FormatUint(s.sequenceNumber, 10))
	msg.Metadata.Set(MetadataEventType, string(e.Type))
	msg.Metadata.Set(MetadataNodeID, e.NodeID.String())
	s.sequenceNumber++

	var lastErr error
	for topic, pubs := range s.publishers {
		for _, pub := range pubs {
			if err := pub.Publish(topic, msg.Copy()); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("failed to publish stream event")
				lastErr = err
			}
		}
	}

	return lastErr
}

// PublishBlind is Publish for callers that cannot act on the error, like
// stream observers.
func (s *PublisherManager) PublishBlind(e *Event) {
	if err := s.Publish(e); err != nil {
		log.Debug().Err(err).Msg("stream event dropped")
	}
}
