// Package api is the REST surface wired over the user cache, the push
// registry and the two backing stores. Handlers here own the mandatory
// refresh rule: every account-affecting mutation triggers a refresh for
// the affected ids, and account creation awaits it.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"shipboard/pkg/auth"
	"shipboard/pkg/logging"
	"shipboard/pkg/notify"
	"shipboard/pkg/push"
	"shipboard/pkg/usercache"
)

// API bundles the singly-constructed core services. Handlers receive them
// through this struct rather than ambient globals so tests can build an
// isolated instance.
type API struct {
	Cache      *usercache.Cache
	Refresher  *usercache.Refresher
	Registry   *push.Registry
	Dispatcher *notify.Dispatcher
}

// New wires the API over already-constructed services.
func New(ref *usercache.Refresher, reg *push.Registry, disp *notify.Dispatcher) *API {
	return &API{Cache: ref.Cache(), Refresher: ref, Registry: reg, Dispatcher: disp}
}

// Router builds the versioned route table.
func (a *API) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(requestLog)

	v3 := r.PathPrefix("/api/v3").Subrouter()

	// account creation is the one unauthenticated mutation
	v3.HandleFunc("/accounts", a.handleCreateAccount).Methods(http.MethodPost)

	// public lookups
	v3.HandleFunc("/users/find/{username}", a.handleFindUser).Methods(http.MethodGet)
	v3.HandleFunc("/users/headers", a.handleUserHeaders).Methods(http.MethodGet)

	// authenticated surface
	authed := v3.NewRoute().Subrouter()
	authed.Use(auth.RequireUser)
	authed.HandleFunc("/users/changed", a.handleUsersChanged).Methods(http.MethodGet)
	authed.HandleFunc("/users/{id}", a.handleGetUser).Methods(http.MethodGet)
	authed.HandleFunc("/user/profile", a.handleUpdateProfile).Methods(http.MethodPost)
	authed.HandleFunc("/users/{id}/block", a.handleBlock).Methods(http.MethodPost)
	authed.HandleFunc("/users/{id}/unblock", a.handleUnblock).Methods(http.MethodPost)
	authed.HandleFunc("/users/{id}/mute", a.handleMute).Methods(http.MethodPost)
	authed.HandleFunc("/users/{id}/unmute", a.handleUnmute).Methods(http.MethodPost)
	authed.HandleFunc("/user/alertwords/{word}", a.handleAddAlertWord).Methods(http.MethodPost)
	authed.HandleFunc("/user/alertwords/{word}", a.handleRemoveAlertWord).Methods(http.MethodDelete)
	authed.HandleFunc("/user/mutewords/{word}", a.handleAddMuteWord).Methods(http.MethodPost)
	authed.HandleFunc("/user/mutewords/{word}", a.handleRemoveMuteWord).Methods(http.MethodDelete)
	authed.HandleFunc("/notification/socket", a.handleNotificationSocket).Methods(http.MethodGet)
	authed.HandleFunc("/conversations/{id}/socket", a.handleConversationSocket).Methods(http.MethodGet)
	authed.HandleFunc("/conversations/{id}/messages", a.handlePostMessage).Methods(http.MethodPost)
	authed.HandleFunc("/conversations/{id}/messages", a.handleListMessages).Methods(http.MethodGet)
	authed.HandleFunc("/auth/logout", a.handleLogout).Methods(http.MethodPost)
	authed.HandleFunc("/settings/{name}", a.handleGetSetting).Methods(http.MethodGet)
	authed.HandleFunc("/settings/{name}", a.handleSetSetting).Methods(http.MethodPost)

	return r
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.LogRequest(r)
		next.ServeHTTP(w, r)
	})
}
