package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"shipboard/pkg/auth"
	"shipboard/pkg/push"
	"shipboard/pkg/utils"
)

func formatFromQuery(r *http.Request) push.Format {
	if r.URL.Query().Get("format") == "compact" {
		return push.FormatCompact
	}
	return push.FormatFull
}

// handleNotificationSocket upgrades the request to a long-lived push
// connection for the caller's personal notifications. Blocks until the
// connection closes.
func (a *API) handleNotificationSocket(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	if _, ok := a.Cache.GetKnown(uid); !ok {
		utils.JSONError(w, http.StatusNotFound, "account not found")
		return
	}
	push.ServeNotification(a.Registry, uid, formatFromQuery(r), w, r)
}

// handleConversationSocket upgrades the request to a push connection
// scoped to one conversation.
func (a *API) handleConversationSocket(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	convID := mux.Vars(r)["id"]
	if _, ok := a.Cache.GetKnown(uid); !ok {
		utils.JSONError(w, http.StatusNotFound, "account not found")
		return
	}
	push.ServeConversation(a.Registry, uid, convID, formatFromQuery(r), w, r)
}

// handleLogout tears down every push connection the account owns. The
// registry closes transports in the background; the HTTP response does not
// wait for close I/O.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	a.Registry.OnLogout(uid)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}
