// Package pubsub exports discovered sources to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// SessionAttribute names the message attribute carrying the session id.
const SessionAttribute = "session_id"

// Result resolves to the server-assigned message id.
type Result interface {
	Get(ctx context.Context) (string, error)
}

// topicPublisher is the subset of *pubsub.Publisher used here.
type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) Result
	ResumePublish(orderingKey string)
}

// clientPublisher adapts *pubsub.Publisher, whose Publish returns a concrete type.
type clientPublisher struct {
	p *pubsub.Publisher
}

func (c clientPublisher) Publish(ctx context.Context, msg *pubsub.Message) Result {
	return c.p.Publish(ctx, msg)
}

func (c clientPublisher) ResumePublish(orderingKey string) {
	c.p.ResumePublish(orderingKey)
}

// Publisher marshals payloads to JSON and publishes them.
type Publisher struct {
	publisher  topicPublisher
	propagator propagation.TextMapPropagator
}

// New wraps a topic publisher created from a pubsub client.
func New(publisher *pubsub.Publisher) *Publisher {
	if publisher == nil {
		return &Publisher{}
	}
	return &Publisher{publisher: clientPublisher{p: publisher}}
}

// Publish sends payload with the session id as ordering key and attribute,
// and waits for the server to acknowledge it. Ordering keys are only honoured
// when the underlying publisher has EnableMessageOrdering set. A failed
// publish pauses its key, so the key is resumed before returning the error.
func (p *Publisher) Publish(ctx context.Context, sessionID string, payload any) (string, error) {
	if p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{
		Data:        data,
		Attributes:  map[string]string{SessionAttribute: sessionID},
		OrderingKey: sessionID,
	}
	p.textMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if sessionID != "" {
			p.publisher.ResumePublish(sessionID)
		}
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func (p *Publisher) textMapPropagator() propagation.TextMapPropagator {
	if p.propagator != nil {
		return p.propagator
	}
	return otel.GetTextMapPropagator()
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
