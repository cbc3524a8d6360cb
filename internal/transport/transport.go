// Package transport carries per-connection push capabilities through
// context so RPC handlers can bind subscriptions to the requesting client
// without importing the server.
package transport

import "context"

// Notification is a server-to-client push message. Coalesce, when
// non-empty, names a slot in the client's outgoing queue: a newer
// notification with the same key replaces a queued one (latest wins).
// Notifications without a key are never dropped.
type Notification struct {
	Method   string
	Params   any
	Coalesce string
}

// Peer is a connected client that can receive push notifications.
// Push must never block; implementations queue and deliver asynchronously.
type Peer interface {
	ID() string
	Push(n Notification)
}

// peerKey is the context key for the requesting peer.
type peerKey struct{}

// WithPeer returns a new context with the requesting peer set.
func WithPeer(ctx context.Context, p Peer) context.Context {
	return context.WithValue(ctx, peerKey{}, p)
}

// PeerFrom retrieves the requesting peer from the context.
// Returns nil if the request did not arrive over a pushable connection.
func PeerFrom(ctx context.Context) Peer {
	if p, ok := ctx.Value(peerKey{}).(Peer); ok {
		return p
	}
	return nil
}
