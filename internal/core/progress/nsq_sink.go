package progress

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/krypta-docs/krypta/internal/core"
)

// Event is the wire shape published for each stage transition.
type Event struct {
	OwnerID    string    `json:"owner_id"`
	DocumentID string    `json:"document_id"`
	Stage      string    `json:"stage"`
	Percent    int       `json:"percent"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

// NSQSink publishes pipeline progress and cache-invalidation events to NSQ
// topics. Both are fire-and-forget: a publish failure is logged and dropped,
// never surfaced to the pipeline.
type NSQSink struct {
	producer        *nsq.Producer
	progressTopic   string
	invalidateTopic string
}

var (
	_ core.ProgressSink     = (*NSQSink)(nil)
	_ core.CacheInvalidator = (*NSQSink)(nil)
)

func NewNSQSink(nsqdAddr, progressTopic, invalidateTopic string) (*NSQSink, error) {
	producer, err := nsq.NewProducer(nsqdAddr, nsq.NewConfig())
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to nsqd at %s", nsqdAddr)
	return &NSQSink{
		producer:        producer,
		progressTopic:   progressTopic,
		invalidateTopic: invalidateTopic,
	}, nil
}

func (s *NSQSink) Publish(ownerID, documentID, stage string, percent int, message string) {
	body, err := json.Marshal(Event{
		OwnerID:    ownerID,
		DocumentID: documentID,
		Stage:      stage,
		Percent:    percent,
		Message:    message,
		At:         time.Now().UTC(),
	})
	if err != nil {
		log.Printf("progress: marshal event: %v", err)
		return
	}
	if err := s.producer.Publish(s.progressTopic, body); err != nil {
		log.Printf("progress: publish %s for doc %s dropped: %v", stage, documentID, err)
	}
}

func (s *NSQSink) Invalidate(ownerID string) {
	if err := s.producer.Publish(s.invalidateTopic, []byte(ownerID)); err != nil {
		log.Printf("progress: cache invalidation for owner %s dropped: %v", ownerID, err)
	}
}

func (s *NSQSink) Stop() {
	if s.producer != nil {
		s.producer.Stop()
	}
}

// NoopSink satisfies both interfaces when no nsqd is configured (local dev,
// tests).
type NoopSink struct{}

var (
	_ core.ProgressSink     = NoopSink{}
	_ core.CacheInvalidator = NoopSink{}
)

func (NoopSink) Publish(ownerID, documentID, stage string, percent int, message string) {}
func (NoopSink) Invalidate(ownerID string)                                             {}
