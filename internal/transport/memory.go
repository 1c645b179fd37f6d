package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

// Hub is an in-process medium shared by MemLinks. Delivery happens on a new
// goroutine so handlers observe the same asynchrony as a radio.
type Hub struct {
	mu    sync.RWMutex
	links map[string]*MemLink
	drop  func(src, dst string, data []byte) bool
	wg    sync.WaitGroup
}

// NewHub returns an empty medium.
func NewHub() *Hub {
	return &Hub{links: make(map[string]*MemLink)}
}

// SetDropFunc installs a loss model. Returning true drops the datagram and
// the sender sees ErrAckTimeout.
func (h *Hub) SetDropFunc(fn func(src, dst string, data []byte) bool) {
	h.mu.Lock()
	h.drop = fn
	h.mu.Unlock()
}

// Join attaches a new link with addr.
func (h *Hub) Join(addr string) *MemLink {
	l := &MemLink{hub: h, addr: protocol.NormalizeAddr(addr)}
	h.mu.Lock()
	h.links[l.addr] = l
	h.mu.Unlock()
	return l
}

// Wait blocks until all in-flight deliveries have run.
func (h *Hub) Wait() { h.wg.Wait() }

func (h *Hub) deliver(src, dst string, data []byte) error {
	h.mu.RLock()
	target, ok := h.links[dst]
	drop := h.drop
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("peer %s unreachable: %w", dst, ErrSendFailed)
	}
	if drop != nil && drop(src, dst, data) {
		return fmt.Errorf("peer %s: %w", dst, ErrAckTimeout)
	}
	handler := target.handler()
	if handler == nil {
		return fmt.Errorf("peer %s not listening: %w", dst, ErrAckTimeout)
	}
	buf := append([]byte(nil), data...)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		handler(src, buf)
	}()
	return nil
}

// MemLink is a Link on a Hub.
type MemLink struct {
	hub    *Hub
	addr   string
	mu     sync.Mutex
	h      Handler
	closed bool
}

func (l *MemLink) Addr() string { return l.addr }

func (l *MemLink) Send(ctx context.Context, peer string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return l.hub.deliver(l.addr, protocol.NormalizeAddr(peer), data)
}

func (l *MemLink) Listen(h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.h = h
	return nil
}

func (l *MemLink) handler() Handler {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	return l.h
}

func (l *MemLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.h = nil
	l.mu.Unlock()
	l.hub.mu.Lock()
	delete(l.hub.links, l.addr)
	l.hub.mu.Unlock()
	return nil
}
