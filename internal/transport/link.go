// Package transport moves raw datagrams between nodes. Delivery is best
// effort: unordered, possibly duplicated, possibly lost.
package transport

import (
	"context"
	"errors"
)

var (
	ErrSendFailed = errors.New("send failed")
	ErrAckTimeout = errors.New("no acknowledgement within deadline")
	ErrClosed     = errors.New("link closed")
)

// Handler receives an inbound datagram with the sender's address. It must
// validate the bytes before trusting any field.
type Handler func(sender string, data []byte)

// Link is a point-to-multipoint datagram transport with link-level acks.
type Link interface {
	// Addr is this node's address as seen by peers.
	Addr() string
	// Send transmits data to peer and blocks until the link resolves the
	// outcome or ctx is done.
	Send(ctx context.Context, peer string, data []byte) error
	// Listen registers h for inbound datagrams.
	Listen(h Handler) error
	Close() error
}
