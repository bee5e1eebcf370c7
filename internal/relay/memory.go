package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wcsign/internal/domain"
)

type retained struct {
	msg    domain.RelayMessage
	from   *MemoryClient
	expiry time.Time
}

// Hub is an in-memory relay.
type Hub struct {
	mu      sync.Mutex
	subs    map[domain.Topic]map[*MemoryClient]struct{}
	history map[domain.Topic][]retained
	now     func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[domain.Topic]map[*MemoryClient]struct{}),
		history: make(map[domain.Topic][]retained),
		now:     time.Now,
	}
}

// Client attaches a new client to the hub.
func (h *Hub) Client() *MemoryClient {
	return &MemoryClient{hub: h, box: newMailbox()}
}

func (h *Hub) publish(from *MemoryClient, topic domain.Topic, message string, opts domain.PublishOptions) {
	now := h.now()
	msg := domain.RelayMessage{Topic: topic, Message: message, Tag: opts.Tag, PublishedAt: now}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	h.mu.Lock()
	h.history[topic] = append(h.live(topic, now), retained{msg: msg, from: from, expiry: now.Add(ttl)})
	targets := make([]*MemoryClient, 0, len(h.subs[topic]))
	for c := range h.subs[topic] {
		if c != from {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.box.push(msg)
	}
}

// live drops expired history for topic. h.mu must be held.
func (h *Hub) live(topic domain.Topic, now time.Time) []retained {
	kept := h.history[topic][:0]
	for _, r := range h.history[topic] {
		if now.Before(r.expiry) {
			kept = append(kept, r)
		}
	}
	return kept
}

func (h *Hub) subscribe(c *MemoryClient, topic domain.Topic) {
	h.mu.Lock()
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*MemoryClient]struct{})
		h.subs[topic] = set
	}
	if _, already := set[c]; already {
		h.mu.Unlock()
		return
	}
	set[c] = struct{}{}
	h.history[topic] = h.live(topic, h.now())
	var backlog []domain.RelayMessage
	for _, r := range h.history[topic] {
		if r.from != c {
			backlog = append(backlog, r.msg)
		}
	}
	h.mu.Unlock()

	for _, m := range backlog {
		c.box.push(m)
	}
}

func (h *Hub) unsubscribe(c *MemoryClient, topic domain.Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
}

func (h *Hub) detach(c *MemoryClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Subscribers reports how many clients listen on topic.
func (h *Hub) Subscribers(topic domain.Topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// MemoryClient is one connection to a Hub.
type MemoryClient struct {
	hub *Hub
	box *mailbox

	mu     sync.Mutex
	closed bool
}

var _ domain.Relay = (*MemoryClient)(nil)

func (c *MemoryClient) Publish(ctx context.Context, topic domain.Topic, message string, opts domain.PublishOptions) error {
	if err := c.usable(ctx); err != nil {
		return err
	}
	c.hub.publish(c, topic, message, opts)
	return nil
}

func (c *MemoryClient) Subscribe(ctx context.Context, topic domain.Topic) error {
	if err := c.usable(ctx); err != nil {
		return err
	}
	c.hub.subscribe(c, topic)
	return nil
}

func (c *MemoryClient) Unsubscribe(ctx context.Context, topic domain.Topic) error {
	if err := c.usable(ctx); err != nil {
		return err
	}
	c.hub.unsubscribe(c, topic)
	return nil
}

func (c *MemoryClient) Messages() <-chan domain.RelayMessage { return c.box.out }

// Close detaches the client and closes its message channel.
func (c *MemoryClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.hub.detach(c)
	c.box.close()
	return nil
}

func (c *MemoryClient) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: client closed", domain.ErrTransport)
	}
	return nil
}
