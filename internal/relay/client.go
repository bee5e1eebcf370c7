package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"wcsign/internal/domain"
)

// ClientOptions configure Dial.
type ClientOptions struct {
	// Identity signs the auth JWT. A zero identity dials without auth.
	Identity  domain.Ed25519Private
	ProjectID string
	// Timeout bounds each relay round trip.
	Timeout time.Duration
	Log     zerolog.Logger
}

// Client is a websocket relay connection.
type Client struct {
	conn    *websocket.Conn
	log     zerolog.Logger
	timeout time.Duration
	box     *mailbox

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan frame
	subIDs  map[domain.Topic]string
	err     error
	done    chan struct{}
}

var _ domain.Relay = (*Client)(nil)

// Dial connects to the relay at rawURL ("ws://" or "wss://").
func Dial(ctx context.Context, rawURL string, opts ClientOptions) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	q := u.Query()
	if opts.ProjectID != "" {
		q.Set("projectId", opts.ProjectID)
	}
	if opts.Identity != (domain.Ed25519Private{}) {
		aud := (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
		token, err := SignJWT(opts.Identity, aud, DefaultJWTTTL, time.Now())
		if err != nil {
			return nil, fmt.Errorf("relay auth: %w", err)
		}
		q.Set("auth", token)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial relay: %w", domain.ErrTransport, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		conn:    conn,
		log:     opts.Log.With().Str("component", "relay").Logger(),
		timeout: timeout,
		box:     newMailbox(),
		pending: make(map[int64]chan frame),
		subIDs:  make(map[domain.Topic]string),
		done:    make(chan struct{}),
	}
	c.nextID.Store(time.Now().UnixMilli() * 1000)
	go c.readLoop()
	return c, nil
}

func (c *Client) Publish(ctx context.Context, topic domain.Topic, message string, opts domain.PublishOptions) error {
	_, err := c.call(ctx, methodPublish, publishParams{
		Topic:   topic.String(),
		Message: message,
		TTL:     ttlSeconds(opts.TTL),
		Tag:     opts.Tag,
		Prompt:  opts.Prompt,
	})
	return err
}

func (c *Client) Subscribe(ctx context.Context, topic domain.Topic) error {
	res, err := c.call(ctx, methodSubscribe, topicParams{Topic: topic.String()})
	if err != nil {
		return err
	}
	var id string
	if err := json.Unmarshal(res, &id); err != nil {
		return fmt.Errorf("%w: subscribe result: %w", domain.ErrTransport, err)
	}
	c.mu.Lock()
	c.subIDs[topic] = id
	c.mu.Unlock()
	return nil
}

func (c *Client) Unsubscribe(ctx context.Context, topic domain.Topic) error {
	c.mu.Lock()
	id, ok := c.subIDs[topic]
	delete(c.subIDs, topic)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := c.call(ctx, methodUnsubscribe, topicParams{Topic: topic.String(), ID: id})
	return err
}

func (c *Client) Messages() <-chan domain.RelayMessage { return c.box.out }

// Close shuts the socket down. Pending calls fail with ErrTransport.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	req, err := newRequestFrame(id, method, params)
	if err != nil {
		return nil, err
	}
	ch := make(chan frame, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%w: connection closed during %s", domain.ErrTransport, method)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrTransport, method, resp.Error)
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s timed out", domain.ErrTransport, method)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: write: %w", domain.ErrTransport, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.box.close()
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.fail(fmt.Errorf("%w: read: %w", domain.ErrTransport, err))
			return
		}
		if f.Method == "" {
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			c.mu.Unlock()
			if ok {
				ch <- f
			}
			continue
		}
		if f.Method != methodSubscription {
			_ = c.write(newErrorFrame(f.ID, -32601, "method not found"))
			continue
		}
		var p subscriptionParams
		if err := json.Unmarshal(f.Params, &p); err != nil {
			c.log.Warn().Err(err).Msg("malformed subscription push")
			continue
		}
		c.box.push(domain.RelayMessage{
			Topic:       domain.Topic(p.Data.Topic),
			Message:     p.Data.Message,
			Tag:         p.Data.Tag,
			PublishedAt: time.UnixMilli(p.Data.PublishedAt),
		})
		if err := c.write(newResultFrame(f.ID, true)); err != nil {
			c.log.Warn().Err(err).Msg("ack subscription")
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}
