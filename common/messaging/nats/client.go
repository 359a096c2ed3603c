// Package nats backs the messaging interfaces with a core NATS connection.
// The worker leans on per-subject ordering and queue groups for load
// balancing; redelivery of lost work comes from the stuck-event sweep, not
// from the broker.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/questforge-labs/questforge/common/messaging"
)

// Config holds the NATS connection settings.
type Config struct {
	// URL is the server URL, e.g. "nats://localhost:4222".
	URL string

	// Name identifies this client on the server.
	Name string

	// MaxReconnects caps reconnection attempts. Zero and -1 both retry
	// forever; a worker that gives up on the bus is just down.
	MaxReconnects int

	// ReconnectWait is the pause between reconnection attempts.
	ReconnectWait time.Duration

	// Timeout bounds the initial connect.
	Timeout time.Duration
}

// Client implements messaging.Client over one NATS connection.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs []*subscription
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Publish sends one payload to the subject, fire and forget.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.Publish(subject, data)
}

// QueueSubscribe delivers each message on the subject to exactly one member
// of the queue group. Handler errors are logged; core NATS does not
// redeliver, the sweep owns recovery.
func (c *Client) QueueSubscribe(subject, queue string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	sub, err := c.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		m := &messaging.Message{Subject: msg.Subject, Data: msg.Data}
		if err := handler(context.Background(), m); err != nil {
			slog.Error("message handler failed",
				"subject", msg.Subject, "queue", queue, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("queue subscribe %s: %w", subject, err)
	}

	s := &subscription{natsSub: sub}
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()
	return s, nil
}

// Close unsubscribes everything and drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil

	c.conn.Close()
	return nil
}

// Drain gracefully closes, letting in-flight messages complete.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

type subscription struct {
	natsSub *nats.Subscription
}

func (s *subscription) Unsubscribe() error {
	return s.natsSub.Unsubscribe()
}

func (s *subscription) Subject() string {
	return s.natsSub.Subject
}

func (s *subscription) IsValid() bool {
	return s.natsSub.IsValid()
}
