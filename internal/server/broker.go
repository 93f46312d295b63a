package server

import (
	"encoding/json"
	"sync"

	"github.com/playperu/escaperoom/internal/game"
)

// Publisher is what game code and the admin service push events into.
type Publisher interface {
	game.Publisher
	// Broadcast sends ev to every subscriber of every session.
	Broadcast(ev game.Event)
}

// Broker is an in-process pub/sub for SSE events, keyed by session ID.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded events for the
// given session.
func (b *Broker) Subscribe(sessionID string) chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan []byte]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(sessionID string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[sessionID], ch)
	if len(b.subs[sessionID]) == 0 {
		delete(b.subs, sessionID)
	}
	b.mu.Unlock()
}

// Subscribers reports how many streams watch a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

func (b *Broker) Publish(sessionID string, ev game.Event) {
	ev.SessionID = sessionID
	data, _ := json.Marshal(ev)
	b.mu.RLock()
	for ch := range b.subs[sessionID] {
		send(ch, data)
	}
	b.mu.RUnlock()
}

func (b *Broker) Broadcast(ev game.Event) {
	data, _ := json.Marshal(ev)
	b.mu.RLock()
	for _, chans := range b.subs {
		for ch := range chans {
			send(ch, data)
		}
	}
	b.mu.RUnlock()
}

func send(ch chan []byte, data []byte) {
	select {
	case ch <- data:
	default:
		// Drop if subscriber is slow.
	}
}
