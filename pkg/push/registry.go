// Package push holds the live push-connection registry and the websocket
// transport behind it. The registry's mutex guards map mutation only; all
// network I/O - writes during fanout, closes during teardown - happens
// outside the lock so one slow or stuck transport can never stall
// unrelated registry operations.
package push

import (
	"sync"
	"sync/atomic"

	"shipboard/pkg/logger"
	"shipboard/pkg/telemetry"
)

// Format selects the payload shape a client expects. Dispatchers render
// per-format; the registry only routes.
type Format int

const (
	// FormatFull is the default rich JSON payload.
	FormatFull Format = iota
	// FormatCompact is the reduced payload for constrained clients.
	FormatCompact
)

// Transport is one live push connection's write side. Implementations must
// be safe for concurrent use; the registry treats them as opaque handles.
type Transport interface {
	WriteText(data []byte) error
	Close() error
}

// Renderer produces the outbound payload for one format. Fanout memoizes
// renders per format, and a render failure for one client's format is
// isolated exactly like a send failure.
type Renderer func(f Format) ([]byte, error)

// Message wraps fixed bytes as a Renderer for callers that send the same
// opaque body to every client.
func Message(b []byte) Renderer {
	return func(Format) ([]byte, error) { return b, nil }
}

type entry struct {
	id             uint64
	accountID      string
	conversationID string
	format         Format
	transport      Transport
}

func (e *entry) kind() string {
	if e.conversationID != "" {
		return "conversation"
	}
	return "notification"
}

// Registry indexes live connections by owning account id (notification
// channel) and by conversation id (conversation channel), plus a
// by-connection-id view for teardown.
type Registry struct {
	nextID uint64

	mu    sync.Mutex
	notif map[string][]*entry
	conv  map[string][]*entry
	byID  map[uint64]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		notif: make(map[string][]*entry),
		conv:  make(map[string][]*entry),
		byID:  make(map[uint64]*entry),
	}
}

// OpenNotification registers a notification-channel connection for an
// account and returns its connection id.
func (r *Registry) OpenNotification(accountID string, t Transport, f Format) uint64 {
	e := &entry{id: atomic.AddUint64(&r.nextID, 1), accountID: accountID, format: f, transport: t}
	r.mu.Lock()
	r.notif[accountID] = append(r.notif[accountID], e)
	r.byID[e.id] = e
	r.mu.Unlock()
	telemetry.PushConnections.WithLabelValues("notification").Inc()
	logger.Debug("push_opened", "conn", e.id, "account", accountID, "kind", "notification")
	return e.id
}

// OpenConversation registers a conversation-channel connection and returns
// its connection id.
func (r *Registry) OpenConversation(accountID, conversationID string, t Transport, f Format) uint64 {
	e := &entry{
		id:             atomic.AddUint64(&r.nextID, 1),
		accountID:      accountID,
		conversationID: conversationID,
		format:         f,
		transport:      t,
	}
	r.mu.Lock()
	r.conv[conversationID] = append(r.conv[conversationID], e)
	r.byID[e.id] = e
	r.mu.Unlock()
	telemetry.PushConnections.WithLabelValues("conversation").Inc()
	logger.Debug("push_opened", "conn", e.id, "account", accountID, "kind", "conversation", "conversation", conversationID)
	return e.id
}

// Close removes a connection and closes its transport. Closing an unknown
// or already-closed id is a no-op, never an error. The transport close runs
// in its own goroutine, outside the lock.
func (r *Registry) Close(id uint64) {
	r.mu.Lock()
	e, ok := r.byID[id]
	if ok {
		r.removeLocked(e)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	go closeTransport(e)
}

// removeLocked unlinks an entry from every index. Caller holds r.mu.
func (r *Registry) removeLocked(e *entry) {
	delete(r.byID, e.id)
	if e.conversationID != "" {
		r.conv[e.conversationID] = without(r.conv[e.conversationID], e)
		if len(r.conv[e.conversationID]) == 0 {
			delete(r.conv, e.conversationID)
		}
	} else {
		r.notif[e.accountID] = without(r.notif[e.accountID], e)
		if len(r.notif[e.accountID]) == 0 {
			delete(r.notif, e.accountID)
		}
	}
	telemetry.PushConnections.WithLabelValues(e.kind()).Dec()
}

func without(list []*entry, e *entry) []*entry {
	for i, x := range list {
		if x == e {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// FanoutToAccount delivers one rendered message to every notification
// connection the account has open. Returns the number of successful sends.
func (r *Registry) FanoutToAccount(accountID string, render Renderer) int {
	r.mu.Lock()
	targets := append([]*entry(nil), r.notif[accountID]...)
	r.mu.Unlock()
	n := r.deliver(targets, render)
	telemetry.FanoutMessages.WithLabelValues("notification").Add(float64(n))
	return n
}

// FanoutToConversation delivers one rendered message to every connection
// watching the conversation. Returns the number of successful sends.
func (r *Registry) FanoutToConversation(conversationID string, render Renderer) int {
	r.mu.Lock()
	targets := append([]*entry(nil), r.conv[conversationID]...)
	r.mu.Unlock()
	n := r.deliver(targets, render)
	telemetry.FanoutMessages.WithLabelValues("conversation").Add(float64(n))
	return n
}

// deliver renders per format (memoized) and writes to each target outside
// the lock. A failure on one connection is logged and counted, drops that
// connection, and never aborts the rest of the fanout.
func (r *Registry) deliver(targets []*entry, render Renderer) int {
	if len(targets) == 0 {
		return 0
	}
	rendered := make(map[Format][]byte, 2)
	renderErr := make(map[Format]error, 2)
	sent := 0
	for _, e := range targets {
		b, ok := rendered[e.format]
		if !ok {
			if _, tried := renderErr[e.format]; tried {
				continue
			}
			var err error
			b, err = render(e.format)
			if err != nil {
				renderErr[e.format] = err
				telemetry.FanoutFailures.Inc()
				logger.Warn("push_render_failed", "format", int(e.format), "error", err)
				continue
			}
			rendered[e.format] = b
		}
		if err := e.transport.WriteText(b); err != nil {
			telemetry.FanoutFailures.Inc()
			logger.Warn("push_send_failed", "conn", e.id, "account", e.accountID, "error", err)
			r.Close(e.id)
			continue
		}
		sent++
	}
	return sent
}

// OnLogout atomically removes every connection owned by the account - its
// notification entries and its entries in every conversation - then closes
// each transport in the background. Close I/O is fire-and-forget and never
// runs under the lock. An account with no open connections is a no-op.
func (r *Registry) OnLogout(accountID string) {
	var removed []*entry
	r.mu.Lock()
	for _, e := range append([]*entry(nil), r.notif[accountID]...) {
		r.removeLocked(e)
		removed = append(removed, e)
	}
	for convID := range r.conv {
		for _, e := range append([]*entry(nil), r.conv[convID]...) {
			if e.accountID == accountID {
				r.removeLocked(e)
				removed = append(removed, e)
			}
		}
	}
	r.mu.Unlock()
	if len(removed) == 0 {
		return
	}
	logger.Info("push_logout_teardown", "account", accountID, "connections", len(removed))
	for _, e := range removed {
		go closeTransport(e)
	}
}

func closeTransport(e *entry) {
	if err := e.transport.Close(); err != nil {
		logger.Debug("push_close_failed", "conn", e.id, "error", err)
	}
}

// CountForAccount returns the number of open notification connections for
// an account.
func (r *Registry) CountForAccount(accountID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notif[accountID])
}

// CountForConversation returns the number of open conversation connections
// for a conversation.
func (r *Registry) CountForConversation(conversationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conv[conversationID])
}
