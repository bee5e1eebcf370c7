package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"wcsign/internal/domain"
	"wcsign/internal/metrics"
)

// ServerOptions configure NewServer.
type ServerOptions struct {
	// RequireAuth rejects sockets without a valid auth JWT.
	RequireAuth bool
	// Audience is the expected JWT aud. Empty accepts any audience.
	Audience string
	Log      zerolog.Logger
}

// Server exposes a Hub over websocket JSON-RPC.
type Server struct {
	hub      *Hub
	opts     ServerOptions
	log      zerolog.Logger
	upgrader websocket.Upgrader
	router   *gin.Engine
}

func NewServer(hub *Hub, opts ServerOptions) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		hub:  hub,
		opts: opts,
		log:  opts.Log.With().Str("component", "relay-server").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	metrics.Register()

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/", s.handleSocket)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router = r
	return s
}

// Handler returns the HTTP handler serving the relay.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleSocket(c *gin.Context) {
	peer := "anonymous"
	if token := c.Query("auth"); token != "" {
		did, err := VerifyJWT(token, s.opts.Audience)
		if err != nil {
			metrics.RecordRelayEvent("auth_rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		peer = did
	} else if s.opts.RequireAuth {
		metrics.RecordRelayEvent("auth_rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	metrics.RecordRelayEvent("connect")
	sess := &socket{
		conn: conn,
		cl:   s.hub.Client(),
		log:  s.log.With().Str("peer", peer).Logger(),
		subs: make(map[domain.Topic]string),
	}
	sess.serve()
	metrics.RecordRelayEvent("disconnect")
}

// socket is one websocket peer bridged onto a hub client.
type socket struct {
	conn *websocket.Conn
	cl   *MemoryClient
	log  zerolog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	subs    map[domain.Topic]string
	pushID  int64
}

func (s *socket) serve() {
	defer s.conn.Close()
	defer s.cl.Close()

	go s.forward()

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Method == "" {
			// ack of an irn_subscription push
			continue
		}
		s.write(s.dispatch(f))
	}
}

func (s *socket) dispatch(f frame) frame {
	ctx := context.Background()
	switch f.Method {
	case methodPublish:
		var p publishParams
		if err := json.Unmarshal(f.Params, &p); err != nil || p.Topic == "" {
			return newErrorFrame(f.ID, -32602, "invalid publish params")
		}
		metrics.RecordRelayEvent("publish")
		_ = s.cl.Publish(ctx, domain.Topic(p.Topic), p.Message, domain.PublishOptions{
			Tag:    p.Tag,
			TTL:    time.Duration(p.TTL) * time.Second,
			Prompt: p.Prompt,
		})
		return newResultFrame(f.ID, true)
	case methodSubscribe:
		var p topicParams
		if err := json.Unmarshal(f.Params, &p); err != nil || p.Topic == "" {
			return newErrorFrame(f.ID, -32602, "invalid subscribe params")
		}
		topic := domain.Topic(p.Topic)
		s.mu.Lock()
		id, ok := s.subs[topic]
		if !ok {
			id = uuid.NewString()
			s.subs[topic] = id
		}
		s.mu.Unlock()
		metrics.RecordRelayEvent("subscribe")
		_ = s.cl.Subscribe(ctx, topic)
		return newResultFrame(f.ID, id)
	case methodUnsubscribe:
		var p topicParams
		if err := json.Unmarshal(f.Params, &p); err != nil || p.Topic == "" {
			return newErrorFrame(f.ID, -32602, "invalid unsubscribe params")
		}
		topic := domain.Topic(p.Topic)
		s.mu.Lock()
		delete(s.subs, topic)
		s.mu.Unlock()
		metrics.RecordRelayEvent("unsubscribe")
		_ = s.cl.Unsubscribe(ctx, topic)
		return newResultFrame(f.ID, true)
	default:
		return newErrorFrame(f.ID, -32601, "method not found")
	}
}

func (s *socket) forward() {
	for msg := range s.cl.Messages() {
		s.mu.Lock()
		id := s.subs[msg.Topic]
		s.pushID++
		pushID := s.pushID
		s.mu.Unlock()

		req, err := newRequestFrame(pushID, methodSubscription, subscriptionParams{
			ID: id,
			Data: subscriptionData{
				Topic:       msg.Topic.String(),
				Message:     msg.Message,
				PublishedAt: msg.PublishedAt.UnixMilli(),
				Tag:         msg.Tag,
			},
		})
		if err != nil {
			continue
		}
		metrics.RecordRelayEvent("deliver")
		s.write(req)
	}
}

func (s *socket) write(f frame) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteJSON(f); err != nil {
		s.log.Debug().Err(err).Msg("write failed")
	}
}
