// Package sign is the public entry point of the module: a WalletConnect v2
// sign client usable by both dapps and wallets.
//
// A Client is built from a Config with New, or with NewWithDeps when the
// caller supplies its own relay or storage. The dapp side calls Connect or
// Authenticate and shares the returned pairing URI; the wallet side pairs
// with that URI, answers proposals and authenticate requests, and then
// serves session requests. Events are delivered on broadcast feeds such as
// Proposals, SessionRequests and Settles; each subscriber gets its own
// buffered channel.
//
// Run must be running for anything to arrive from the relay:
//
//	c, err := sign.New(ctx, cfg)
//	if err != nil { ... }
//	defer c.Close()
//	go c.Run(ctx)
//
// Link mode variants of the request and answer operations return a URL for
// the caller to open instead of publishing on the relay; the receiving app
// passes that URL to DispatchEnvelope.
package sign
