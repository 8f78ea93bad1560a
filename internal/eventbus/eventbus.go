// Package eventbus implements reviewd's SSE connection registry and
// per-session event fan-out: subscribers register per session and
// receive every event published for it until they unregister.
package eventbus

import (
	"sync"
	"time"
)

// Event is a single typed event delivered to subscribed clients.
type Event struct {
	SessionID string
	Type      string
	Payload   any
	At        time.Time
}

const clientBuffer = 32

type client struct {
	id            string
	ch            chan Event
	subscriptions map[string]bool
	mu            sync.Mutex
}

func (c *client) subscribed(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptions[sessionID] || c.subscriptions[""]
}

func (c *client) subscribe(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[sessionID] = true
}

// Bus is the connection registry. A slow or disconnected client never
// blocks delivery to others: Emit drops the event for any client whose
// buffer is full rather than waiting.
type Bus struct {
	mu      sync.RWMutex
	clients map[string]*client
	nextID  int
}

// New constructs an empty event bus.
func New() *Bus {
	return &Bus{clients: map[string]*client{}}
}

// Register adds a new SSE connection and returns its id, receive
// channel, and an unregister func the HTTP handler calls on disconnect.
func (b *Bus) Register() (clientID string, ch <-chan Event, unregister func()) {
	b.mu.Lock()
	b.nextID++
	id := "client-" + itoa(b.nextID)
	c := &client{id: id, ch: make(chan Event, clientBuffer), subscriptions: map[string]bool{}}
	b.clients[id] = c
	b.mu.Unlock()

	return id, c.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.clients[id]; ok {
			close(existing.ch)
			delete(b.clients, id)
		}
	}
}

// Subscribe attaches a registered client to a session's event stream.
// An empty sessionID subscribes to every session (used by admin views).
func (b *Bus) Subscribe(clientID, sessionID string) {
	b.mu.RLock()
	c, ok := b.clients[clientID]
	b.mu.RUnlock()
	if ok {
		c.subscribe(sessionID)
	}
}

// Emit delivers an event to every client subscribed to sessionID. A full
// client buffer silently drops the event for that one client rather than
// blocking the emitting goroutine.
func (b *Bus) Emit(sessionID, eventType string, payload any) {
	ev := Event{SessionID: sessionID, Type: eventType, Payload: payload, At: now()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		if !c.subscribed(sessionID) {
			continue
		}
		select {
		case c.ch <- ev:
		default:
		}
	}
}

// BroadcastAll delivers an event to every connected client regardless of
// subscription, used for server-wide notices (e.g. shutdown).
func (b *Bus) BroadcastAll(eventType string, payload any) {
	ev := Event{Type: eventType, Payload: payload, At: now()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		select {
		case c.ch <- ev:
		default:
		}
	}
}

func now() time.Time { return time.Now() }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
