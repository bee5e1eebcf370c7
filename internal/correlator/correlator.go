package correlator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wcsign/internal/domain"
)

// Pending is an outbound request awaiting its response.
type Pending struct {
	Topic   domain.Topic
	Request domain.Request
	Expiry  time.Time

	owner  *Correlator
	topics map[domain.Topic]struct{}
	done   chan struct{}
	once   sync.Once
	resp   domain.Response
	err    error
}

func (p *Pending) finish(resp domain.Response, err error) bool {
	first := false
	p.once.Do(func() {
		p.resp, p.err = resp, err
		close(p.done)
		first = true
	})
	return first
}

// Done is closed once the request resolves, fails or times out.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the response arrives, the topic is torn down, timeout
// elapses or ctx ends. An error response from the peer is returned as a
// Response, not as an error. A timed-out request is forgotten.
func (p *Pending) Wait(ctx context.Context, timeout time.Duration) (domain.Response, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-p.done:
		return p.resp, p.err
	case <-expired:
		p.owner.forget(p.Request.ID)
		p.finish(domain.Response{}, domain.ErrRequestTimedOut)
		return p.resp, p.err
	case <-ctx.Done():
		p.owner.forget(p.Request.ID)
		p.finish(domain.Response{}, ctx.Err())
		return p.resp, p.err
	}
}

// Resolved is an outbound request matched with its response.
type Resolved struct {
	Topic    domain.Topic
	Request  domain.Request
	Response domain.Response
}

// Inbound is a request received from the peer.
type Inbound struct {
	Topic     domain.Topic
	Request   domain.Request
	Transport domain.TransportType
	Received  time.Time
	Expiry    time.Time
	Responded bool
}

type inboundKey struct {
	topic domain.Topic
	id    int64
}

// Correlator is safe for concurrent use.
type Correlator struct {
	log zerolog.Logger
	now func() time.Time

	mu  sync.Mutex
	out map[int64]*Pending
	in  map[inboundKey]*Inbound
}

func New(log zerolog.Logger) *Correlator {
	return &Correlator{
		log: log.With().Str("component", "correlator").Logger(),
		now: time.Now,
		out: make(map[int64]*Pending),
		in:  make(map[inboundKey]*Inbound),
	}
}

// Register tracks req sent on topic. The response is also accepted on any
// of alsoOn.
func (c *Correlator) Register(topic domain.Topic, req domain.Request, ttl time.Duration, alsoOn ...domain.Topic) *Pending {
	p := &Pending{
		Topic:   topic,
		Request: req,
		Expiry:  c.now().Add(ttl),
		owner:   c,
		topics:  map[domain.Topic]struct{}{topic: {}},
		done:    make(chan struct{}),
	}
	for _, t := range alsoOn {
		p.topics[t] = struct{}{}
	}
	c.mu.Lock()
	c.out[req.ID] = p
	c.mu.Unlock()
	return p
}

// Resolve matches resp received on topic. ok is false for unsolicited
// responses, which are logged and otherwise ignored.
func (c *Correlator) Resolve(topic domain.Topic, resp domain.Response) (Resolved, bool) {
	c.mu.Lock()
	p, found := c.out[resp.ID]
	if found {
		if _, allowed := p.topics[topic]; !allowed {
			found = false
		} else {
			delete(c.out, resp.ID)
		}
	}
	c.mu.Unlock()

	if !found {
		c.log.Warn().Int64("id", resp.ID).Str("topic", topic.String()).Msg("unsolicited response")
		return Resolved{}, false
	}
	p.finish(resp, nil)
	return Resolved{Topic: p.Topic, Request: p.Request, Response: resp}, true
}

// Outbound returns the request still pending under id.
func (c *Correlator) Outbound(id int64) (*Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.out[id]
	return p, ok
}

func (c *Correlator) forget(id int64) {
	c.mu.Lock()
	delete(c.out, id)
	c.mu.Unlock()
}

// Cancel fails the pending request id with err.
func (c *Correlator) Cancel(id int64, err error) bool {
	c.mu.Lock()
	p, ok := c.out[id]
	delete(c.out, id)
	c.mu.Unlock()
	if !ok {
		return false
	}
	return p.finish(domain.Response{}, err)
}

// CancelTopic fails every request sent on topic with ErrSessionDeleted and
// drops the topic's inbound history. It returns how many waiters failed.
func (c *Correlator) CancelTopic(topic domain.Topic) int {
	c.mu.Lock()
	var victims []*Pending
	for id, p := range c.out {
		if p.Topic == topic {
			victims = append(victims, p)
			delete(c.out, id)
		}
	}
	for k := range c.in {
		if k.topic == topic {
			delete(c.in, k)
		}
	}
	c.mu.Unlock()

	for _, p := range victims {
		p.finish(domain.Response{}, domain.ErrSessionDeleted)
	}
	return len(victims)
}

// Record stores an inbound request. duplicate is true when the same
// (topic, id) was already seen, in which case nothing changes.
func (c *Correlator) Record(topic domain.Topic, req domain.Request, transport domain.TransportType, ttl time.Duration) (duplicate bool) {
	k := inboundKey{topic: topic, id: req.ID}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.in[k]; ok {
		c.log.Warn().Int64("id", req.ID).Str("topic", topic.String()).Msg("duplicate inbound request")
		return true
	}
	c.in[k] = &Inbound{
		Topic:     topic,
		Request:   req,
		Transport: transport,
		Received:  now,
		Expiry:    now.Add(ttl),
	}
	return false
}

// Lookup returns the inbound request (topic, id).
func (c *Correlator) Lookup(topic domain.Topic, id int64) (Inbound, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.in[inboundKey{topic: topic, id: id}]
	if !ok {
		return Inbound{}, false
	}
	return *r, true
}

// FindInbound locates an inbound request by id alone.
func (c *Correlator) FindInbound(id int64) (Inbound, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, r := range c.in {
		if k.id == id {
			return *r, true
		}
	}
	return Inbound{}, false
}

// MarkResponded claims the right to answer (topic, id). Only the first
// call succeeds.
func (c *Correlator) MarkResponded(topic domain.Topic, id int64) (Inbound, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.in[inboundKey{topic: topic, id: id}]
	if !ok {
		return Inbound{}, domain.ErrRequestNotFound
	}
	if r.Responded {
		return *r, domain.ErrDuplicateResponse
	}
	r.Responded = true
	return *r, nil
}

// Unmark releases a claim taken by MarkResponded, for when sending the
// response failed.
func (c *Correlator) Unmark(topic domain.Topic, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.in[inboundKey{topic: topic, id: id}]; ok {
		r.Responded = false
	}
}

// Open lists unanswered inbound requests, oldest first.
func (c *Correlator) Open() []Inbound {
	c.mu.Lock()
	out := make([]Inbound, 0, len(c.in))
	for _, r := range c.in {
		if !r.Responded {
			out = append(out, *r)
		}
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Received.Equal(out[j].Received) {
			return out[i].Request.ID < out[j].Request.ID
		}
		return out[i].Received.Before(out[j].Received)
	})
	return out
}

// Sweep fails outbound requests past their lifetime with
// ErrRequestTimedOut and drops inbound history past its TTL. The expired
// unanswered inbound requests are returned.
func (c *Correlator) Sweep(now time.Time) []Inbound {
	c.mu.Lock()
	var victims []*Pending
	for id, p := range c.out {
		if !now.Before(p.Expiry) {
			victims = append(victims, p)
			delete(c.out, id)
		}
	}
	var expired []Inbound
	for k, r := range c.in {
		if !now.Before(r.Expiry) {
			if !r.Responded {
				expired = append(expired, *r)
			}
			delete(c.in, k)
		}
	}
	c.mu.Unlock()

	for _, p := range victims {
		p.finish(domain.Response{}, domain.ErrRequestTimedOut)
	}
	return expired
}
