// Package messaging provides abstractions for message broker communication.
// It defines the interfaces the worker uses to publish and subscribe to
// event envelopes without being coupled to a specific broker implementation.
package messaging

import "context"

// Message is one payload received from or sent to the broker.
type Message struct {
	// Subject is the topic the message was published to.
	Subject string

	// Data is the raw message payload.
	Data []byte
}

// MessageHandler processes a received message. A returned error means
// processing failed; whether the broker redelivers depends on the
// implementation.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription represents an active subscription to a subject.
type Subscription interface {
	// Unsubscribe stops receiving messages on this subscription.
	Unsubscribe() error

	// Subject returns the subject this subscription is listening to.
	Subject() string

	// IsValid returns true if the subscription is still active.
	IsValid() bool
}

// Publisher publishes messages to subjects, fire and forget.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error

	// Close releases any resources held by the publisher.
	Close() error
}

// Subscriber subscribes to messages on subjects.
type Subscriber interface {
	// QueueSubscribe creates a queue subscription. Messages are
	// load-balanced across subscribers in the same queue group, so each
	// message is processed by one worker.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)

	// Close releases any resources and unsubscribes all active subscriptions.
	Close() error
}

// Client combines Publisher and Subscriber.
type Client interface {
	Publisher
	Subscriber

	// Drain gracefully closes the connection, allowing in-flight messages
	// to complete.
	Drain() error

	// IsConnected returns true if the client is connected to the broker.
	IsConnected() bool
}
