package admin

import (
	"net/http"
	"sync"
)

// SSEBroker fans out status documents to connected clients.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan []byte]struct{})}
}

// Subscribe registers a new client channel.
func (b *SSEBroker) Subscribe() chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel. The channel is left open so an
// in-flight Broadcast never sends on a closed channel.
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
}

// Clients returns the number of connected clients.
func (b *SSEBroker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Broadcast queues payload for every client. Slow clients miss updates.
func (b *SSEBroker) Broadcast(payload []byte) {
	b.mu.Lock()
	clients := make([]chan []byte, 0, len(b.clients))
	for ch := range b.clients {
		clients = append(clients, ch)
	}
	b.mu.Unlock()
	for _, ch := range clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// serveStream writes an initial snapshot and then every broadcast as a
// "status" event until the client goes away.
func (b *SSEBroker) serveStream(w http.ResponseWriter, r *http.Request, initial []byte) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	writeEvent(w, initial)
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case payload := <-ch:
			writeEvent(w, payload)
			flusher.Flush()
		case <-done:
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, payload []byte) {
	_, _ = w.Write([]byte("event: status\ndata: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
