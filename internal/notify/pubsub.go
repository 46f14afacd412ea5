package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/dwsmith1983/gwaspull/pkg/types"
)

// Publisher sends one message and returns its server ID.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) (string, error)
}

type topicPublisher struct{ t *pubsub.Topic }

func (p topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	return p.t.Publish(ctx, msg).Get(ctx)
}

// PubSubSink announces finished exports on a topic. Subscribers can filter
// on the level, phenotypeId and pop attributes without decoding the body.
type PubSubSink struct {
	topic string
	pub   Publisher
}

// PubSubSinkOption configures a PubSubSink.
type PubSubSinkOption func(*PubSubSink)

// WithPubSubClient replaces the topic publisher.
func WithPubSubClient(p Publisher) PubSubSinkOption {
	return func(s *PubSubSink) { s.pub = p }
}

// NewPubSubSink dials Pub/Sub for topicID in projectID unless a publisher
// is supplied.
func NewPubSubSink(ctx context.Context, projectID, topicID string, opts ...PubSubSinkOption) (*PubSubSink, error) {
	if topicID == "" {
		return nil, fmt.Errorf("Pub/Sub topic ID required")
	}
	s := &PubSubSink{topic: topicID}
	for _, o := range opts {
		o(s)
	}
	if s.pub != nil {
		return s, nil
	}
	if projectID == "" {
		return nil, fmt.Errorf("Pub/Sub project ID required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating Pub/Sub client: %w", err)
	}
	s.pub = topicPublisher{t: client.Topic(topicID)}
	return s, nil
}

func (s *PubSubSink) Name() string { return "pubsub" }

func (s *PubSubSink) Send(ctx context.Context, o types.Outcome) error {
	if !terminal(o) {
		return nil
	}
	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encoding outcome %s: %w", o.RunID, err)
	}
	msg := &pubsub.Message{Data: body, Attributes: outcomeAttributes(o)}
	if _, err := s.pub.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publishing to Pub/Sub topic %s: %w", s.topic, err)
	}
	return nil
}

func outcomeAttributes(o types.Outcome) map[string]string {
	return map[string]string{
		"level":       string(o.Level),
		"phenotypeId": o.PhenotypeID,
		"pop":         o.Pop,
	}
}
