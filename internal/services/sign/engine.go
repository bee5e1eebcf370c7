package sign

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wcsign/internal/domain"
	"wcsign/internal/events"
	"wcsign/internal/kms"
	"wcsign/internal/linkmode"
	"wcsign/internal/protocol/rpc"
	"wcsign/internal/services/auth"
	"wcsign/internal/services/network"
	"wcsign/internal/services/pairing"
)

const (
	SessionTTL     = 7 * 24 * time.Hour
	ProposalTTL    = 5 * time.Minute
	relayProtocol  = "irn"
	defaultTimeout = 5 * time.Minute
)

// Options tune timeouts. Zero values select the defaults.
type Options struct {
	RequestTimeout time.Duration
	PingTimeout    time.Duration
	// Debounce suppresses a repeated emission of the same session request.
	Debounce      time.Duration
	SweepInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultTimeout
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 30 * time.Second
	}
	if o.Debounce <= 0 {
		o.Debounce = time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Second
	}
	return o
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Keys         *kms.Service
	Net          *network.Interactor
	Pairings     *pairing.Service
	Sessions     domain.SessionStore
	Proposals    domain.ProposalStore
	AuthRequests domain.AuthRequestStore
	Verifier     *auth.Verifier
	Links        *linkmode.Dispatcher
	Metadata     domain.AppMetadata
	Log          zerolog.Logger
}

// Engine owns sessions and everything that leads to them.
type Engine struct {
	keys     *kms.Service
	net      *network.Interactor
	pairings *pairing.Service
	sessions domain.SessionStore
	props    domain.ProposalStore
	authReqs domain.AuthRequestStore
	verifier *auth.Verifier
	links    *linkmode.Dispatcher
	metadata domain.AppMetadata
	opts     Options
	log      zerolog.Logger
	now      func() time.Time

	proposals     *events.Feed[domain.Proposal]
	settles       *events.Feed[domain.Session]
	rejections    *events.Feed[Rejection]
	requests      *events.Feed[domain.SessionRequest]
	responses     *events.Feed[domain.SessionResponse]
	deletes       *events.Feed[Deletion]
	updates       *events.Feed[Update]
	extends       *events.Feed[Extension]
	sessionEvents *events.Feed[Event]
	authRequests  *events.Feed[domain.AuthRequest]
	authResponses *events.Feed[domain.AuthResponse]
	pings         *events.Feed[PingResponse]
	expirations   *events.Feed[domain.Session]

	mu sync.Mutex

	// Proposals this side sent, by proposer public key and by the session
	// topic each approved one settles on.
	sent     map[string]*outgoing
	settling map[domain.Topic]*outgoing

	exchanges   map[string]*exchange
	claimed     map[string]bool
	claimedAuth map[int64]bool
	emitted     map[int64]time.Time
	dead        map[domain.Topic]struct{}
}

// outgoing is a proposal this side sent.
type outgoing struct {
	proposal domain.Proposal
	selfPub  domain.X25519Public
	exchange *exchange
}

// exchange links an authenticate request to its fallback proposal. Only one
// of the two may resolve it. Exchanges are keyed by the requester key.
type exchange struct {
	authID        int64
	payload       domain.AuthPayload
	pairingTopic  domain.Topic
	responseTopic domain.Topic
	requesterPub  domain.X25519Public
	link          string
	expiry        time.Time
	fallback      *outgoing
	resolved      bool
}

// New wires an engine and registers its protocol handlers on d.Net.
func New(d Deps, opts Options) *Engine {
	log := d.Log.With().Str("component", "sign").Logger()
	e := &Engine{
		keys:     d.Keys,
		net:      d.Net,
		pairings: d.Pairings,
		sessions: d.Sessions,
		props:    d.Proposals,
		authReqs: d.AuthRequests,
		verifier: d.Verifier,
		links:    d.Links,
		metadata: d.Metadata,
		opts:     opts.withDefaults(),
		log:      log,
		now:      time.Now,

		proposals:     events.NewFeed[domain.Proposal]("proposals", log),
		settles:       events.NewFeed[domain.Session]("settles", log),
		rejections:    events.NewFeed[Rejection]("rejections", log),
		requests:      events.NewFeed[domain.SessionRequest]("session_requests", log),
		responses:     events.NewFeed[domain.SessionResponse]("responses", log),
		deletes:       events.NewFeed[Deletion]("deletes", log),
		updates:       events.NewFeed[Update]("updates", log),
		extends:       events.NewFeed[Extension]("extends", log),
		sessionEvents: events.NewFeed[Event]("events", log),
		authRequests:  events.NewFeed[domain.AuthRequest]("auth_requests", log),
		authResponses: events.NewFeed[domain.AuthResponse]("auth_responses", log),
		pings:         events.NewFeed[PingResponse]("ping_responses", log),
		expirations:   events.NewFeed[domain.Session]("expirations", log),

		sent:        make(map[string]*outgoing),
		settling:    make(map[domain.Topic]*outgoing),
		exchanges:   make(map[string]*exchange),
		claimed:     make(map[string]bool),
		claimedAuth: make(map[int64]bool),
		emitted:     make(map[int64]time.Time),
		dead:        make(map[domain.Topic]struct{}),
	}
	e.requests.OnSubscribe(e.replayRequests)

	e.net.Guard(e.accept)
	e.net.Handle(rpc.MethodSessionPropose, e.onPropose)
	e.net.Handle(rpc.MethodSessionSettle, e.onSettle)
	e.net.Handle(rpc.MethodSessionUpdate, e.onUpdate)
	e.net.Handle(rpc.MethodSessionExtend, e.onExtend)
	e.net.Handle(rpc.MethodSessionEvent, e.onEvent)
	e.net.Handle(rpc.MethodSessionDelete, e.onDelete)
	e.net.Handle(rpc.MethodSessionPing, e.onPing)
	e.net.Handle(rpc.MethodSessionRequest, e.onRequest)
	e.net.Handle(rpc.MethodSessionAuthenticate, e.onAuthenticate)
	e.net.HandleResponse(rpc.MethodSessionPropose, e.onProposeResponse)
	e.net.HandleResponse(rpc.MethodSessionSettle, e.onSettleResponse)
	e.net.HandleResponse(rpc.MethodSessionRequest, e.onRequestResponse)
	e.net.HandleResponse(rpc.MethodSessionAuthenticate, e.onAuthenticateResponse)
	return e
}

// Proposals emits proposals received by a wallet.
func (e *Engine) Proposals() *events.Feed[domain.Proposal] { return e.proposals }

// Settles emits sessions once both sides hold them.
func (e *Engine) Settles() *events.Feed[domain.Session] { return e.settles }

// Rejections emits refused proposals on both sides.
func (e *Engine) Rejections() *events.Feed[Rejection] { return e.rejections }

// SessionRequests emits inbound application requests. A new subscriber is
// first sent every request that is still open.
func (e *Engine) SessionRequests() *events.Feed[domain.SessionRequest] { return e.requests }

// Responses emits answers to our session requests.
func (e *Engine) Responses() *events.Feed[domain.SessionResponse] { return e.responses }

// Deletes emits sessions ended by either side.
func (e *Engine) Deletes() *events.Feed[Deletion] { return e.deletes }

// Updates emits namespace changes made by the session controller.
func (e *Engine) Updates() *events.Feed[Update] { return e.updates }

// Extends emits new session expiries set by the controller.
func (e *Engine) Extends() *events.Feed[Extension] { return e.extends }

// Events emits chain events the peer emitted on a session.
func (e *Engine) Events() *events.Feed[Event] { return e.sessionEvents }

// AuthRequests emits authenticate requests received by a wallet.
func (e *Engine) AuthRequests() *events.Feed[domain.AuthRequest] { return e.authRequests }

// AuthResponses emits answers to our authenticate requests.
func (e *Engine) AuthResponses() *events.Feed[domain.AuthResponse] { return e.authResponses }

// PingResponses emits round trips of pings we sent.
func (e *Engine) PingResponses() *events.Feed[PingResponse] { return e.pings }

// Expirations emits sessions dropped by Sweep.
func (e *Engine) Expirations() *events.Feed[domain.Session] { return e.expirations }

// Restore resubscribes to every stored pairing and session that has not
// expired. Persistent clients call it once before Run.
func (e *Engine) Restore(ctx context.Context) error {
	now := e.now()
	pairings, err := e.pairings.All(ctx)
	if err != nil {
		return err
	}
	for _, p := range pairings {
		if p.Expired(now) {
			continue
		}
		if err := e.net.Subscribe(ctx, p.Topic); err != nil {
			return fmt.Errorf("restore pairing %s: %w", p.Topic, err)
		}
	}
	sessions, err := e.Sessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := e.net.Subscribe(ctx, s.Topic); err != nil {
			return fmt.Errorf("restore session %s: %w", s.Topic, err)
		}
	}
	e.log.Info().Int("pairings", len(pairings)).Int("sessions", len(sessions)).Msg("restored subscriptions")
	return nil
}

// Metadata is the app metadata this engine presents to peers.
func (e *Engine) Metadata() domain.AppMetadata { return e.metadata }

// Sessions lists stored sessions that have not expired.
func (e *Engine) Sessions(ctx context.Context) ([]domain.Session, error) {
	all, err := e.sessions.All(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := all[:0]
	for _, s := range all {
		if !s.Expired(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

// PendingProposals lists proposals awaiting Approve or Reject.
func (e *Engine) PendingProposals(ctx context.Context) ([]domain.Proposal, error) {
	all, err := e.props.All(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := all[:0]
	for _, p := range all {
		if !p.Expired(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out, nil
}

// PendingAuthRequests lists authenticate requests awaiting an answer.
func (e *Engine) PendingAuthRequests(ctx context.Context) ([]domain.AuthRequest, error) {
	all, err := e.authReqs.All(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := all[:0]
	for _, r := range all {
		if !r.Expired(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FormatAuthMessage renders the message account must sign for payload.
func (e *Engine) FormatAuthMessage(payload domain.AuthPayload, account domain.Account) string {
	return auth.FormatAuthMessage(payload, account)
}

// session loads a live session or fails with ErrNoSession/ErrSessionExpired.
func (e *Engine) session(ctx context.Context, topic domain.Topic) (domain.Session, error) {
	s, ok, err := e.sessions.Get(ctx, topic)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrNoSession, topic)
	}
	if s.Expired(e.now()) {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionExpired, topic)
	}
	return s, nil
}

func (e *Engine) controlled(ctx context.Context, topic domain.Topic) (domain.Session, error) {
	s, err := e.session(ctx, topic)
	if err != nil {
		return s, err
	}
	if !s.SelfIsController() {
		return s, domain.ErrUnauthorizedController
	}
	return s, nil
}

// accept refuses envelopes on session topics that were deleted or expired.
func (e *Engine) accept(ctx context.Context, topic domain.Topic) error {
	e.mu.Lock()
	_, dead := e.dead[topic]
	e.mu.Unlock()
	if dead {
		return fmt.Errorf("%w: %s", domain.ErrNoSession, topic)
	}
	s, ok, err := e.sessions.Get(ctx, topic)
	if err != nil || !ok {
		return err
	}
	if s.Expired(e.now()) {
		return fmt.Errorf("%w: %s", domain.ErrSessionExpired, topic)
	}
	return nil
}

// teardown removes a session locally: pending requests on it fail with
// ErrSessionDeleted, and its key and record are dropped.
func (e *Engine) teardown(ctx context.Context, topic domain.Topic) error {
	e.mu.Lock()
	e.dead[topic] = struct{}{}
	delete(e.settling, topic)
	e.mu.Unlock()

	if err := e.net.Unsubscribe(ctx, topic); err != nil {
		e.log.Debug().Err(err).Str("topic", topic.String()).Msg("unsubscribe on teardown")
	}
	if err := e.keys.DeleteKey(ctx, topic); err != nil {
		return err
	}
	return e.sessions.Delete(ctx, topic)
}

func (e *Engine) participant(pub domain.X25519Public) domain.Participant {
	return domain.Participant{PublicKey: pub.Hex(), Metadata: e.metadata}
}
