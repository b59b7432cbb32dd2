// Package bus is the publish/subscribe fabric that connects chain stages.
// Topics are independently buffered; a slow subscriber delays only its own
// topic. Delivery is at-least-once and ordered per topic, with no ordering
// guarantee across topics.
package bus

import "context"

// Message is one delivery on a topic. The payload is a conversation id.
type Message struct {
	Topic   string
	Payload string
}

// Subscription is a live set of topic subscriptions. Messages() closes when
// the subscription is closed or its context is cancelled.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Bus is the capability surface stages use: publish a conversation id to a
// topic, or subscribe to one or more ingress topics.
type Bus interface {
	Publish(ctx context.Context, topic, payload string) error
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
}
