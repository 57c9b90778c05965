package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

const defaultPublishTimeout = 15 * time.Second

// PublishResult resolves to the broker message id.
type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

// TopicPublisher is the subset of a Pub/Sub publisher used here.
type TopicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) PublishResult
	Stop()
}

// PublisherFactory resolves a publisher for a topic; nil means the topic is not configured.
type PublisherFactory func(topic string) TopicPublisher

// EventPublisherParams configure EventPublisher.
type EventPublisherParams struct {
	Client  *Client
	Factory PublisherFactory
	Logger  *logger.Logger
	Timeout time.Duration
}

// EventPublisher serializes payloads to JSON and publishes them, waiting for the broker ack.
type EventPublisher struct {
	factory PublisherFactory
	logg    *logger.Logger
	timeout time.Duration

	mu         sync.Mutex
	publishers map[string]TopicPublisher
}

func NewEventPublisher(params EventPublisherParams) (*EventPublisher, error) {
	factory := params.Factory
	if factory == nil {
		if params.Client == nil {
			return nil, errors.New("pubsub client or publisher factory required")
		}
		client := params.Client
		factory = func(topic string) TopicPublisher {
			return newGCPPublisher(client.Publisher(topic))
		}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &EventPublisher{
		factory:    factory,
		logg:       logg,
		timeout:    timeout,
		publishers: map[string]TopicPublisher{},
	}, nil
}

// Publish sends payload to topic. key is carried as the message key attribute.
func (p *EventPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	pub, err := p.publisher(topic)
	if err != nil {
		return err
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"key":          key,
			"content_type": "application/json",
			"published_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("publisher returned nil for topic %s", topic)
	}
	id, err := result.Get(publishCtx)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logg.Debug(p.logg.WithFields(ctx, map[string]any{"topic": topic, "message_id": id}), "event published")
	return nil
}

func (p *EventPublisher) publisher(topic string) (TopicPublisher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pub, ok := p.publishers[topic]; ok {
		return pub, nil
	}
	pub := p.factory(topic)
	if pub == nil {
		return nil, fmt.Errorf("publisher not configured for topic %s", topic)
	}
	p.publishers[topic] = pub
	return pub, nil
}

// Close flushes and stops every cached publisher.
func (p *EventPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, pub := range p.publishers {
		pub.Stop()
		delete(p.publishers, topic)
	}
}

func newGCPPublisher(p *pubsub.Publisher) TopicPublisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) PublishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*pubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
