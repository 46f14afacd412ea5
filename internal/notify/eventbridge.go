package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/dwsmith1983/gwaspull/pkg/types"
)

// EventSource is the EventBridge source of every published event.
const EventSource = "gwaspull"

// EventBridgeAPI is the subset of the EventBridge client used by EventBridgeSink.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgeSink emits terminal outcomes as EventBridge events.
type EventBridgeSink struct {
	client EventBridgeAPI
	bus    string
}

// EventBridgeSinkOption configures an EventBridgeSink.
type EventBridgeSinkOption func(*EventBridgeSink)

// WithEventBridgeClient sets a custom EventBridge client (useful for testing).
func WithEventBridgeClient(c EventBridgeAPI) EventBridgeSinkOption {
	return func(s *EventBridgeSink) { s.client = c }
}

// NewEventBridgeSink creates a sink on bus; empty means the default bus.
func NewEventBridgeSink(ctx context.Context, bus string, opts ...EventBridgeSinkOption) (*EventBridgeSink, error) {
	s := &EventBridgeSink{bus: bus}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = eventbridge.NewFromConfig(cfg)
	}
	return s, nil
}

// Name returns the sink identifier.
func (s *EventBridgeSink) Name() string { return "eventbridge" }

// Send puts one event whose detail type is the outcome level.
func (s *EventBridgeSink) Send(ctx context.Context, o types.Outcome) error {
	if !terminal(o) {
		return nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshaling outcome: %w", err)
	}

	entry := ebtypes.PutEventsRequestEntry{
		Source:     aws.String(EventSource),
		DetailType: aws.String("gwaspull." + string(o.Level)),
		Detail:     aws.String(string(data)),
	}
	if s.bus != "" {
		entry.EventBusName = aws.String(s.bus)
	}
	out, err := s.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: []ebtypes.PutEventsRequestEntry{entry}})
	if err != nil {
		return fmt.Errorf("putting event: %w", err)
	}
	if out.FailedEntryCount > 0 {
		return fmt.Errorf("putting event: %d entries rejected", out.FailedEntryCount)
	}
	return nil
}
