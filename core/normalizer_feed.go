package core

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// NormalizerFeed relays a Normalizer's async results to connected
// websocket clients. It is a thin optional push surface; the normalizer
// itself has no dependency on it.
type NormalizerFeed struct {
	upgrader websocket.Upgrader
	log      *logrus.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewNormalizerFeed wires feed to n's result channel and starts a single
// background goroutine fanning results out to connected clients.
func NewNormalizerFeed(n *Normalizer, log *logrus.Logger) *NormalizerFeed {
	if log == nil {
		log = logrus.New()
	}
	f := &NormalizerFeed{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		log:      log,
		clients:  make(map[*websocket.Conn]struct{}),
	}
	go f.pump(n.Results())
	return f
}

func (f *NormalizerFeed) pump(results <-chan NormalizationResult) {
	for result := range results {
		f.broadcast(result)
	}
}

func (f *NormalizerFeed) broadcast(result NormalizationResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		f.log.WithError(err).Warn("normalizer feed: marshal result")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			f.log.WithError(err).Warn("normalizer feed: write to client, dropping")
			conn.Close()
			delete(f.clients, conn)
		}
	}
}

// ServeHTTP upgrades the request to a websocket connection and registers
// it to receive pushed normalization results until it disconnects.
func (f *NormalizerFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.WithError(err).Warn("normalizer feed: upgrade failed")
		return
	}

	f.mu.Lock()
	f.clients[conn] = struct{}{}
	f.mu.Unlock()

	// Drain and discard any client-sent frames; this is a push-only feed.
	// The read loop's only purpose is to detect disconnects.
	go func() {
		defer func() {
			f.mu.Lock()
			delete(f.clients, conn)
			f.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount returns the number of currently connected feed clients.
func (f *NormalizerFeed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
