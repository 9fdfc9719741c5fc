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
	"shipboard/pkg/store"
	"shipboard/pkg/usercache"
	"shipboard/pkg/utils"
)

// userHeader is the batch display DTO built from cache snapshots.
type userHeader struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	DisplayName      string `json:"display_name,omitempty"`
	AvatarRef        string `json:"avatar_ref,omitempty"`
	ProfileUpdatedTS int64  `json:"profile_updated_ts"`
}

func headerFromSnapshot(s *usercache.Snapshot) userHeader {
	return userHeader{
		ID:               s.ID,
		Username:         s.Username,
		DisplayName:      s.DisplayName,
		AvatarRef:        s.AvatarRef,
		ProfileUpdatedTS: s.ProfileUpdatedTS,
	}
}

type createAccountReq struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

// handleCreateAccount persists a new account and awaits its cache refresh
// before responding, so the very first authenticated request from the new
// account never sees a cache miss. A refresh failure is surfaced as a
// retryable 503 rather than returning an account the cache cannot serve.
func (a *API) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		utils.JSONError(w, http.StatusBadRequest, "username required")
		return
	}
	// the durable index is the truth for name claims; the cache may lag
	// behind a row whose refresh has not landed yet
	if _, err := store.LookupUsername(req.Username); err == nil {
		utils.JSONError(w, http.StatusConflict, "username already taken")
		return
	} else if err != store.ErrNotFound {
		utils.JSONError(w, http.StatusInternalServerError, "username lookup failed")
		return
	}

	now := time.Now().UTC().UnixNano()
	acct := models.Account{
		ID:               utils.GenAccountID(),
		Username:         req.Username,
		DisplayName:      req.DisplayName,
		AvatarRef:        req.AvatarRef,
		ProfileUpdatedTS: now,
		CreatedTS:        now,
	}
	if err := store.SaveAccount(acct); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to persist account")
		return
	}
	if err := auxstore.InitAccount(acct.ID); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to initialize account sets")
		return
	}

	if err := a.Refresher.Refresh(r.Context(), acct.ID); err != nil {
		logger.Error("account_create_refresh_failed", "id", acct.ID, "error", err)
		utils.JSONError(w, http.StatusServiceUnavailable, "account created but not yet available; retry")
		return
	}
	logger.Info("account_created", "id", acct.ID, "username", acct.Username)
	_ = utils.JSONWrite(w, http.StatusCreated, acct)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, ok := a.Cache.Get(id)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "user not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, headerFromSnapshot(s))
}

func (a *API) handleFindUser(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["username"]
	// a miss here is the normal "no such username" outcome, not an
	// invariant violation
	s, ok := a.Cache.GetByUsername(name)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "user not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, headerFromSnapshot(s))
}

func (a *API) handleUserHeaders(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		_ = utils.JSONWrite(w, http.StatusOK, []userHeader{})
		return
	}
	ids := strings.Split(raw, ",")
	snaps := a.Cache.GetMany(ids)
	out := make([]userHeader, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, headerFromSnapshot(s))
	}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

func (a *API) handleUsersChanged(w http.ResponseWriter, r *http.Request) {
	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "since must be a ns timestamp")
		return
	}
	requester := auth.UserID(r.Context())
	snaps := a.Cache.ChangedSince(since, requester)
	out := make([]userHeader, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, headerFromSnapshot(s))
	}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

type updateProfileReq struct {
	Username    *string `json:"username,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	AvatarRef   *string `json:"avatar_ref,omitempty"`
}

// handleUpdateProfile mutates the durable row and fires an async refresh;
// eventual consistency is acceptable for profile edits.
func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	var req updateProfileReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	acct, err := store.GetAccount(uid)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "account not found")
		return
	}
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" {
			utils.JSONError(w, http.StatusBadRequest, "username cannot be empty")
			return
		}
		if s, exists := a.Cache.GetByUsername(name); exists && s.ID != uid {
			utils.JSONError(w, http.StatusConflict, "username already taken")
			return
		}
		acct.Username = name
	}
	if req.DisplayName != nil {
		acct.DisplayName = *req.DisplayName
	}
	if req.AvatarRef != nil {
		acct.AvatarRef = *req.AvatarRef
	}
	// keep the profile timestamp monotonically non-decreasing
	now := time.Now().UTC().UnixNano()
	if now <= acct.ProfileUpdatedTS {
		now = acct.ProfileUpdatedTS + 1
	}
	acct.ProfileUpdatedTS = now

	if err := store.SaveAccount(acct); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to persist profile")
		return
	}
	a.Refresher.RefreshAsync(uid)
	_ = utils.JSONWrite(w, http.StatusOK, acct)
}
