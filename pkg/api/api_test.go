package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"shipboard/pkg/auxstore"
	"shipboard/pkg/models"
	"shipboard/pkg/notify"
	"shipboard/pkg/push"
	"shipboard/pkg/store"
	"shipboard/pkg/usercache"
)

// newTestServer stands up the full stack: both pebble stores in temp dirs,
// a warmed cache and the real router. The stores are package-global, so
// tests in this package run sequentially.
func newTestServer(t *testing.T) (*httptest.Server, *API) {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	require.NoError(t, auxstore.Open(t.TempDir()))
	t.Cleanup(func() {
		require.NoError(t, auxstore.Close())
		require.NoError(t, store.Close())
	})

	cache := usercache.New()
	ref := usercache.NewRefresher(cache, store.AccountReader{}, auxstore.Reader{})
	reg := push.NewRegistry()
	a := New(ref, reg, notify.NewDispatcher(cache, reg))

	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)
	return srv, a
}

func doJSON(t *testing.T, method, url, uid string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if uid != "" {
		req.Header.Set("X-User-ID", uid)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func createAccount(t *testing.T, srv *httptest.Server, username string) models.Account {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v3/accounts", "", map[string]string{"username": username})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var acct models.Account
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&acct))
	return acct
}

func TestCreateAccountThenImmediateLookup(t *testing.T) {
	srv, _ := newTestServer(t)
	acct := createAccount(t, srv, "sam")

	// creation awaited the refresh, so the very next request must hit
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v3/users/"+acct.ID, acct.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hdr userHeader
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hdr))
	require.Equal(t, "sam", hdr.Username)

	// public username lookup, case-insensitive
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v3/users/find/SAM", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAccountUsernameConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	createAccount(t, srv, "sam")
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v3/accounts", "", map[string]string{"username": "Sam"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v3/users/changed?since=0", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBlockRefreshesBothSnapshots(t *testing.T) {
	srv, a := newTestServer(t)
	u1 := createAccount(t, srv, "sam")
	u2 := createAccount(t, srv, "heidi")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v3/users/"+u2.ID+"/block", u1.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// the refresh is async; both sides converge
	require.Eventually(t, func() bool {
		s1, ok1 := a.Cache.Get(u1.ID)
		s2, ok2 := a.Cache.Get(u2.ID)
		return ok1 && ok2 && s1.Blocks(u2.ID) && s2.Blocks(u1.ID)
	}, 2*time.Second, 10*time.Millisecond)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v3/users/"+u2.ID+"/unblock", u1.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool {
		s1, _ := a.Cache.Get(u1.ID)
		return !s1.Blocks(u2.ID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBlockValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	u1 := createAccount(t, srv, "sam")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v3/users/"+u1.ID+"/block", u1.ID, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "self-block must be rejected")

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v3/users/ghost/block", u1.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMessageListFiltersThroughSnapshot(t *testing.T) {
	srv, a := newTestServer(t)
	u1 := createAccount(t, srv, "sam")
	u2 := createAccount(t, srv, "heidi")
	u3 := createAccount(t, srv, "zoe")

	post := func(uid, body string) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/v3/conversations/c1/messages", uid,
			map[string]string{"body": body})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	post(u2.ID, "good morning")
	post(u3.ID, "karaoke tonight")
	post(u3.ID, "see you there")

	// u1 mutes u2 and filters the word "karaoke"
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodPost, srv.URL+"/api/v3/users/"+u2.ID+"/mute", u1.ID, nil).StatusCode)
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodPost, srv.URL+"/api/v3/user/mutewords/Karaoke", u1.ID, nil).StatusCode)
	require.Eventually(t, func() bool {
		s, ok := a.Cache.Get(u1.ID)
		return ok && s.Mutes(u2.ID) && len(s.MuteWords) == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v3/conversations/c1/messages", u1.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs []models.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	require.Equal(t, "see you there", msgs[0].Body)

	// u2 still sees everything
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v3/conversations/c1/messages", u2.ID, nil)
	var all []models.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	require.Len(t, all, 3)
}

func dialSocket(t *testing.T, srv *httptest.Server, path, uid string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(srv.URL, "http", "ws", 1) + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User-ID": []string{uid}})
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMentionNotificationOverSocket(t *testing.T) {
	srv, a := newTestServer(t)
	u1 := createAccount(t, srv, "sam")
	u2 := createAccount(t, srv, "heidi")

	conn := dialSocket(t, srv, "/api/v3/notification/socket", u1.ID)
	require.Eventually(t, func() bool { return a.Registry.CountForAccount(u1.ID) == 1 },
		2*time.Second, 10*time.Millisecond)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v3/conversations/c1/messages", u2.ID,
		map[string]any{"body": "lunch?", "mentions": []string{u1.ID}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	var payload struct {
		Kind   string `json:"kind"`
		Author struct {
			Username string `json:"username"`
		} `json:"author"`
		Body string `json:"body"`
	}
	require.NoError(t, json.Unmarshal(frame, &payload))
	require.Equal(t, "notification", payload.Kind)
	require.Equal(t, "heidi", payload.Author.Username)
	require.Equal(t, "lunch?", payload.Body)
}

func TestConversationSocketReceivesMessages(t *testing.T) {
	srv, a := newTestServer(t)
	u1 := createAccount(t, srv, "sam")
	u2 := createAccount(t, srv, "heidi")

	conn := dialSocket(t, srv, "/api/v3/conversations/c1/socket?format=compact", u1.ID)
	require.Eventually(t, func() bool { return a.Registry.CountForConversation("c1") == 1 },
		2*time.Second, 10*time.Millisecond)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v3/conversations/c1/messages", u2.ID,
		map[string]string{"body": "ahoy"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	var payload struct {
		K string `json:"k"`
		A string `json:"a"`
		B string `json:"b"`
	}
	require.NoError(t, json.Unmarshal(frame, &payload))
	require.Equal(t, "message.new", payload.K)
	require.Equal(t, "heidi", payload.A)
	require.Equal(t, "ahoy", payload.B)
}

func TestLogoutClosesSockets(t *testing.T) {
	srv, a := newTestServer(t)
	u1 := createAccount(t, srv, "sam")

	conn := dialSocket(t, srv, "/api/v3/notification/socket", u1.ID)
	require.Eventually(t, func() bool { return a.Registry.CountForAccount(u1.ID) == 1 },
		2*time.Second, 10*time.Millisecond)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v3/auth/logout", u1.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Zero(t, a.Registry.CountForAccount(u1.ID))

	// the transport close lands shortly after the response
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestSettingsRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	u1 := createAccount(t, srv, "sam")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v3/settings/motd?value=welcome+aboard", u1.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v3/settings/motd", u1.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "welcome aboard", out["value"])
}

func TestUsersChangedExcludesRequesterAndBlocked(t *testing.T) {
	srv, a := newTestServer(t)
	u1 := createAccount(t, srv, "sam")
	u2 := createAccount(t, srv, "heidi")
	u3 := createAccount(t, srv, "zoe")

	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodPost, srv.URL+"/api/v3/users/"+u2.ID+"/block", u1.ID, nil).StatusCode)
	require.Eventually(t, func() bool {
		s, ok := a.Cache.Get(u1.ID)
		return ok && s.Blocks(u2.ID)
	}, 2*time.Second, 10*time.Millisecond)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v3/users/changed?since=0", u1.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out []userHeader
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 1, "requester and blocked accounts are excluded")
	require.Equal(t, u3.ID, out[0].ID)
}

func TestProfileUpdateBumpsTimestampMonotonically(t *testing.T) {
	srv, _ := newTestServer(t)
	u1 := createAccount(t, srv, "sam")

	name := "Sam G."
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v3/user/profile", u1.ID,
		updateProfileReq{DisplayName: &name})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.Account
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	require.Equal(t, "Sam G.", updated.DisplayName)
	require.Greater(t, updated.ProfileUpdatedTS, u1.ProfileUpdatedTS)

	row, err := store.GetAccount(u1.ID)
	require.NoError(t, err)
	require.Equal(t, "Sam G.", row.DisplayName)
}

func TestUserHeadersBatchSkipsUnknown(t *testing.T) {
	srv, _ := newTestServer(t)
	u1 := createAccount(t, srv, "sam")
	u2 := createAccount(t, srv, "heidi")

	url := fmt.Sprintf("%s/api/v3/users/headers?ids=%s,ghost,%s", srv.URL, u1.ID, u2.ID)
	resp := doJSON(t, http.MethodGet, url, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out []userHeader
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
}
