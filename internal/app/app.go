package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"wcsign/internal/domain"
	authsvc "wcsign/internal/services/auth"
)

// Client runs a wired engine.
type Client struct {
	*Wire
}

func New(w *Wire) *Client { return &Client{Wire: w} }

// Run restores subscriptions, then pumps relay messages and sweeps expired
// state until ctx is cancelled or the relay connection ends.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Sign.Restore(ctx); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.Net.Run(ctx); err != nil {
			return err
		}
		if ctx.Err() == nil {
			return fmt.Errorf("%w: relay connection closed", domain.ErrTransport)
		}
		return nil
	})
	g.Go(func() error { return c.Sign.Run(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// SupportedAuthPayload narrows a received authenticate payload to the
// configured chains and methods, ready to be signed.
func (c *Client) SupportedAuthPayload(p domain.AuthPayload) (domain.AuthPayload, error) {
	return authsvc.BuildAuthPayload(p, c.AuthChains, c.Config.Auth.Methods)
}
