package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"shipboard/pkg/auth"
	"shipboard/pkg/auxstore"
	"shipboard/pkg/utils"
)

// social mutations write the auxiliary store and fire async refreshes for
// the affected ids; callers tolerate brief staleness.

func (a *API) handleBlock(w http.ResponseWriter, r *http.Request) {
	a.relationMutation(w, r, auxstore.AddBlock, true)
}

func (a *API) handleUnblock(w http.ResponseWriter, r *http.Request) {
	a.relationMutation(w, r, auxstore.RemoveBlock, true)
}

func (a *API) handleMute(w http.ResponseWriter, r *http.Request) {
	a.relationMutation(w, r, auxstore.AddMute, false)
}

func (a *API) handleUnmute(w http.ResponseWriter, r *http.Request) {
	a.relationMutation(w, r, auxstore.RemoveMute, false)
}

// relationMutation applies one block/mute change. Blocks are symmetric in
// the auxiliary store, so both sides get refreshed; mutes only affect the
// actor's snapshot.
func (a *API) relationMutation(w http.ResponseWriter, r *http.Request, apply func(actor, target string) error, both bool) {
	actor := auth.UserID(r.Context())
	target := mux.Vars(r)["id"]
	if target == actor {
		utils.JSONError(w, http.StatusBadRequest, "cannot target yourself")
		return
	}
	if _, ok := a.Cache.Get(target); !ok {
		utils.JSONError(w, http.StatusNotFound, "user not found")
		return
	}
	if err := apply(actor, target); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to persist change")
		return
	}
	a.Refresher.RefreshAsync(actor)
	if both {
		a.Refresher.RefreshAsync(target)
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleAddAlertWord(w http.ResponseWriter, r *http.Request) {
	a.keywordMutation(w, r, auxstore.AddAlertWord)
}

func (a *API) handleRemoveAlertWord(w http.ResponseWriter, r *http.Request) {
	a.keywordMutation(w, r, auxstore.RemoveAlertWord)
}

func (a *API) handleAddMuteWord(w http.ResponseWriter, r *http.Request) {
	a.keywordMutation(w, r, auxstore.AddMuteWord)
}

func (a *API) handleRemoveMuteWord(w http.ResponseWriter, r *http.Request) {
	a.keywordMutation(w, r, auxstore.RemoveMuteWord)
}

func (a *API) keywordMutation(w http.ResponseWriter, r *http.Request, apply func(id, word string) error) {
	uid := auth.UserID(r.Context())
	word := strings.TrimSpace(mux.Vars(r)["word"])
	if word == "" {
		utils.JSONError(w, http.StatusBadRequest, "empty keyword")
		return
	}
	if err := apply(uid, word); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to persist keyword")
		return
	}
	a.Refresher.RefreshAsync(uid)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	v, err := auxstore.GetSetting(name)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to read setting")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"name": name, "value": v})
}

func (a *API) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	value := r.URL.Query().Get("value")
	if err := auxstore.SetSetting(name, value); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to write setting")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}
