package sign

import (
	"context"
	"errors"
	"time"
)

// Run sweeps expired state every SweepInterval until ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	t := time.NewTicker(e.opts.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			if err := e.Sweep(ctx, now); err != nil {
				e.log.Warn().Err(err).Msg("sweep")
			}
		}
	}
}

// Sweep expires sessions, pairings, proposals, authenticate requests and
// open requests whose time has passed. Each expired session is emitted on
// Expirations after it has been torn down.
func (e *Engine) Sweep(ctx context.Context, now time.Time) error {
	var errs []error

	sessions, err := e.sessions.All(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if !s.Expired(now) {
			continue
		}
		if err := e.teardown(ctx, s.Topic); err != nil {
			errs = append(errs, err)
			continue
		}
		e.log.Info().Str("topic", s.Topic.String()).Msg("session expired")
		e.expirations.Send(s)
	}

	if _, err := e.pairings.Sweep(ctx, now); err != nil {
		errs = append(errs, err)
	}

	props, err := e.props.All(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, p := range props {
		if p.Expired(now) {
			if err := e.props.Delete(ctx, p.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}

	reqs, err := e.authReqs.All(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, r := range reqs {
		if r.Expired(now) {
			if err := e.authReqs.Delete(ctx, r.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}

	var stale []*exchange
	e.mu.Lock()
	for _, ex := range e.exchanges {
		if !ex.resolved && !now.Before(ex.expiry) {
			ex.resolved = true
			stale = append(stale, ex)
		}
	}
	for id, p := range e.sent {
		if p.exchange == nil && p.proposal.Expired(now) {
			delete(e.sent, id)
		}
	}
	for id, at := range e.emitted {
		if now.Sub(at) >= e.opts.Debounce {
			delete(e.emitted, id)
		}
	}
	e.mu.Unlock()
	for _, ex := range stale {
		e.dropExchange(ctx, ex)
	}

	for _, in := range e.net.Correlator().Sweep(now) {
		e.log.Debug().Int64("id", in.Request.ID).Str("method", in.Request.Method).Msg("inbound request expired")
	}
	return errors.Join(errs...)
}
