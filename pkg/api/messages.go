package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"shipboard/pkg/auth"
	"shipboard/pkg/auxstore"
	"shipboard/pkg/logger"
	"shipboard/pkg/models"
	"shipboard/pkg/notify"
	"shipboard/pkg/store"
	"shipboard/pkg/usercache"
	"shipboard/pkg/utils"
)

type postMessageReq struct {
	Body     string   `json:"body"`
	Mentions []string `json:"mentions,omitempty"`
}

// handlePostMessage persists a message and announces it: a conversation
// event for open conversation sockets, personal notifications for mentions
// and alert-keyword subscribers. Notification targets that block or mute
// the author are skipped using their cached snapshots - no store reads on
// this path.
func (a *API) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	convID := mux.Vars(r)["id"]
	var req postMessageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		utils.JSONError(w, http.StatusBadRequest, "empty body")
		return
	}

	m := models.Message{
		ID:           utils.GenMessageID(),
		Conversation: convID,
		Author:       uid,
		TS:           time.Now().UTC().UnixNano(),
		Body:         req.Body,
		Mentions:     req.Mentions,
	}
	if err := store.SaveMessage(convID, m); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to persist message")
		return
	}
	if _, err := auxstore.IncrCounter("messages_posted"); err != nil {
		logger.Debug("counter_incr_failed", "error", err)
	}

	a.Dispatcher.OnMutation(notify.Event{
		Kind:           notify.KindMessage,
		ActorID:        uid,
		ConversationID: convID,
		Body:           m.Body,
	})

	notified := map[string]struct{}{}
	for _, target := range m.Mentions {
		a.notifyTarget(uid, target, m.Body, notified)
	}
	for _, target := range a.Cache.AlertSubscribers(m.Body, uid) {
		a.notifyTarget(uid, target, m.Body, notified)
	}

	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

// notifyTarget raises one personal notification unless the target's
// snapshot says it doesn't want to hear from the author.
func (a *API) notifyTarget(author, target, body string, seen map[string]struct{}) {
	if target == author {
		return
	}
	if _, done := seen[target]; done {
		return
	}
	seen[target] = struct{}{}
	t, ok := a.Cache.Get(target)
	if !ok {
		return
	}
	if t.Blocks(author) || t.Mutes(author) {
		return
	}
	a.Dispatcher.OnMutation(notify.Event{
		Kind:     notify.KindNotification,
		ActorID:  author,
		TargetID: target,
		Body:     body,
	})
}

// handleListMessages returns a conversation's messages filtered through the
// requester's cached snapshot: content from blocked or muted accounts and
// content containing the requester's mute words is dropped inline.
func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	convID := mux.Vars(r)["id"]
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			utils.JSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	msgs, err := store.ListMessages(convID, limit)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to read messages")
		return
	}
	viewer, _ := a.Cache.GetKnown(uid)
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if viewer != nil && !visibleTo(viewer, m) {
			continue
		}
		out = append(out, m)
	}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

func visibleTo(viewer *usercache.Snapshot, m models.Message) bool {
	if viewer.Blocks(m.Author) || viewer.Mutes(m.Author) {
		return false
	}
	lowered := strings.ToLower(m.Body)
	for _, w := range viewer.MuteWords {
		if w != "" && strings.Contains(lowered, strings.ToLower(w)) {
			return false
		}
	}
	return true
}
