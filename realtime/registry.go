package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageSink is the outbound half of a client connection. The registry is the
// sole owner of sinks; nothing else writes to them.
type MessageSink interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Connection is one live client. Messages are enqueued on the send channel and
// drained by a single writer goroutine, so delivery order per connection
// matches enqueue order.
type Connection struct {
	ID   string
	sink MessageSink
	send chan interface{}
	done chan struct{}
	once sync.Once
}

func (c *Connection) close() {
	c.once.Do(func() {
		close(c.done)
		c.sink.Close()
	})
}

// Registry tracks live connections and per-document subscriptions, and
// delivers targeted and broadcast messages. A send that fails or cannot be
// enqueued within the send timeout evicts the connection; failures never
// propagate to callers.
type Registry struct {
	mu            sync.RWMutex
	connections   map[string]*Connection
	subscriptions map[int64]map[string]struct{}

	logger      *slog.Logger
	sendBuffer  int
	sendTimeout time.Duration
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		connections:   make(map[string]*Connection),
		subscriptions: make(map[int64]map[string]struct{}),
		logger:        logger,
		sendBuffer:    32,
		sendTimeout:   time.Second,
	}
}

// Connect registers a new connection around the given sink, assigns it a fresh
// id, adds it to the global set and sends the one-time welcome acknowledgment.
func (r *Registry) Connect(sink MessageSink) *Connection {
	c := &Connection{
		ID:   uuid.NewString(),
		sink: sink,
		send: make(chan interface{}, r.sendBuffer),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.connections[c.ID] = c
	total := len(r.connections)
	r.mu.Unlock()

	go r.writeLoop(c)

	r.logger.Info("Client connected",
		slog.String("connection_id", c.ID),
		slog.Int("total_connections", total))

	r.deliver(c, map[string]interface{}{
		"type":          "connection",
		"status":        "connected",
		"connection_id": c.ID,
		"message":       "Successfully connected to DocuFlow",
	})
	return c
}

// Disconnect removes the connection from the active set and from every
// subscription set, and closes its sink. Idempotent; unknown ids are a no-op.
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	c, ok := r.connections[id]
	if ok {
		delete(r.connections, id)
	}
	for docID, subscribers := range r.subscriptions {
		delete(subscribers, id)
		if len(subscribers) == 0 {
			delete(r.subscriptions, docID)
		}
	}
	remaining := len(r.connections)
	r.mu.Unlock()

	if !ok {
		return
	}
	c.close()

	r.logger.Info("Client disconnected",
		slog.String("connection_id", id),
		slog.Int("remaining_connections", remaining))
}

// Subscribe adds the connection to the document's subscription set, creating
// the set on first use. Unknown connections are ignored.
func (r *Registry) Subscribe(documentID int64, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[connectionID]; !ok {
		return
	}
	subscribers, ok := r.subscriptions[documentID]
	if !ok {
		subscribers = make(map[string]struct{})
		r.subscriptions[documentID] = subscribers
	}
	subscribers[connectionID] = struct{}{}

	r.logger.Info("Connection subscribed to document",
		slog.String("connection_id", connectionID),
		slog.Int64("document_id", documentID))
}

// Unsubscribe removes the connection from the document's subscription set.
// No-op for unknown documents or absent members.
func (r *Registry) Unsubscribe(documentID int64, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subscribers, ok := r.subscriptions[documentID]
	if !ok {
		return
	}
	if _, member := subscribers[connectionID]; !member {
		return
	}
	delete(subscribers, connectionID)
	if len(subscribers) == 0 {
		delete(r.subscriptions, documentID)
	}

	r.logger.Info("Connection unsubscribed from document",
		slog.String("connection_id", connectionID),
		slog.Int64("document_id", documentID))
}

// Has reports whether a connection id is currently registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connections[id]
	return ok
}

// IsSubscribed reports whether a connection is in a document's subscriber set.
func (r *Registry) IsSubscribed(documentID int64, connectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subscribers, ok := r.subscriptions[documentID]
	if !ok {
		return false
	}
	_, member := subscribers[connectionID]
	return member
}

// SendTo delivers one message to one connection, best-effort.
func (r *Registry) SendTo(connectionID string, message interface{}) {
	r.mu.RLock()
	c, ok := r.connections[connectionID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	r.deliver(c, message)
}

// Broadcast delivers the message to every currently-registered connection.
// A failing connection is evicted without aborting delivery to the rest.
func (r *Registry) Broadcast(message interface{}) {
	for _, c := range r.snapshotAll() {
		r.deliver(c, message)
	}
}

// BroadcastToDocument delivers the message to the document's subscriber set as
// it stands at call time. Unknown document ids are a no-op.
func (r *Registry) BroadcastToDocument(documentID int64, message interface{}) {
	for _, c := range r.snapshotDocument(documentID) {
		r.deliver(c, message)
	}
}

func (r *Registry) snapshotAll() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) snapshotDocument(documentID int64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subscribers, ok := r.subscriptions[documentID]
	if !ok {
		return nil
	}
	conns := make([]*Connection, 0, len(subscribers))
	for id := range subscribers {
		if c, registered := r.connections[id]; registered {
			conns = append(conns, c)
		}
	}
	return conns
}

// deliver enqueues a message for the connection's writer goroutine. The wait
// is bounded: a connection whose buffer stays full past the send timeout is
// treated as dead and evicted, so a saturated client can never wedge the
// caller (the pipeline workers broadcast from their own goroutines).
func (r *Registry) deliver(c *Connection, message interface{}) {
	select {
	case c.send <- message:
	case <-c.done:
	case <-time.After(r.sendTimeout):
		r.logger.Error("Send buffer saturated, evicting connection",
			slog.String("connection_id", c.ID))
		r.Disconnect(c.ID)
	}
}

func (r *Registry) writeLoop(c *Connection) {
	for {
		select {
		case message := <-c.send:
			if err := c.sink.WriteJSON(message); err != nil {
				r.logger.Error("Error sending message, evicting connection",
					slog.String("connection_id", c.ID),
					slog.String("error", err.Error()))
				r.Disconnect(c.ID)
				return
			}
		case <-c.done:
			return
		}
	}
}
