// Package notify turns mutation events into push payloads. The dispatcher
// resolves display metadata from the user cache, renders a small JSON body
// per client format and hands delivery to the push registry.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"shipboard/pkg/logger"
	"shipboard/pkg/push"
	"shipboard/pkg/telemetry"
	"shipboard/pkg/usercache"
)

// Kind tags the event classes clients can receive.
type Kind string

const (
	KindMessage      Kind = "message.new"
	KindMembership   Kind = "membership.changed"
	KindNotification Kind = "notification"
)

// Event is one mutation the dispatcher should announce. A non-empty
// ConversationID routes to that conversation's connections; otherwise
// TargetID routes to the target account's notification connections.
type Event struct {
	Kind           Kind
	ActorID        string
	TargetID       string
	ConversationID string
	Body           string
}

// author is the display metadata resolved from the cache at dispatch time.
type author struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

// fullPayload is the default wire shape.
type fullPayload struct {
	Kind           Kind   `json:"kind"`
	ConversationID string `json:"conversation,omitempty"`
	Author         author `json:"author"`
	Body           string `json:"body"`
	TS             int64  `json:"ts"`
}

// compactPayload is the reduced shape for constrained clients.
type compactPayload struct {
	K Kind   `json:"k"`
	A string `json:"a"`
	B string `json:"b"`
	T int64  `json:"t"`
}

// Dispatcher reads snapshots and fans out through the registry. It holds no
// lock of its own; the cache and registry mutexes are never held together.
type Dispatcher struct {
	cache *usercache.Cache
	reg   *push.Registry
}

// NewDispatcher wires a dispatcher over the cache and registry.
func NewDispatcher(cache *usercache.Cache, reg *push.Registry) *Dispatcher {
	return &Dispatcher{cache: cache, reg: reg}
}

// OnMutation announces one event. A missing actor snapshot (an id not yet
// reflected in the cache, e.g. a very recent account) drops this one event
// with a log line; it never fails the caller. Per-connection send failures
// are isolated inside the registry fanout.
func (d *Dispatcher) OnMutation(ev Event) int {
	actor, ok := d.cache.Get(ev.ActorID)
	if !ok {
		telemetry.DispatchDropped.Inc()
		logger.Warn("notify_snapshot_missing", "actor", ev.ActorID, "kind", string(ev.Kind))
		return 0
	}

	ts := time.Now().UTC().UnixNano()
	render := func(f push.Format) ([]byte, error) {
		switch f {
		case push.FormatCompact:
			return json.Marshal(compactPayload{K: ev.Kind, A: actor.DisplayedName(), B: ev.Body, T: ts})
		case push.FormatFull:
			return json.Marshal(fullPayload{
				Kind:           ev.Kind,
				ConversationID: ev.ConversationID,
				Author: author{
					ID:          actor.ID,
					Username:    actor.Username,
					DisplayName: actor.DisplayName,
					AvatarRef:   actor.AvatarRef,
				},
				Body: ev.Body,
				TS:   ts,
			})
		default:
			return nil, fmt.Errorf("unknown payload format %d", f)
		}
	}

	if ev.ConversationID != "" {
		return d.reg.FanoutToConversation(ev.ConversationID, render)
	}
	if ev.TargetID != "" {
		return d.reg.FanoutToAccount(ev.TargetID, render)
	}
	logger.Warn("notify_event_unroutable", "kind", string(ev.Kind), "actor", ev.ActorID)
	return 0
}
