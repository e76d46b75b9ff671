package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stko/zuul-ac/internal/access"
	"github.com/stko/zuul-ac/internal/idcard"
	"github.com/stko/zuul-ac/internal/logging"
	"github.com/stko/zuul-ac/internal/models"
	"github.com/stko/zuul-ac/internal/otp"
	"github.com/stko/zuul-ac/internal/storage"
)

type testStack struct {
	ts    *httptest.Server
	token string
	core  *access.Core
	bus   *Bus
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	log := logging.Discard()
	store := storage.NewMemoryStore("alice")

	engine, err := access.NewEngine(context.Background(), store, log, 7, 0)
	require.NoError(t, err)

	wallet := idcard.NewWallet(store, nil, log)
	federation := idcard.NewProtocol(wallet, "doorbot", log)

	bus := NewBus(4, log)
	broker := otp.NewBroker(engine, bus, federation, 300*time.Millisecond, log)
	core := access.NewCore(engine, broker, federation, store, nil, log)

	srv := NewServer(":0", core, bus, "shared", "jwtsecret", time.Hour, log)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	stack := &testStack{ts: ts, core: core, bus: bus}
	stack.token = stack.login(t, "shared")
	return stack
}

func (s *testStack) login(t *testing.T, secret string) string {
	t.Helper()

	resp, err := http.Post(s.ts.URL+"/api/v1/session", "application/json",
		strings.NewReader(`{"peer":"testworker","secret":"`+secret+`"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	require.NotEmpty(t, session.SessionID)
	require.NotEmpty(t, session.Token)
	return session.Token
}

func (s *testStack) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSession_WrongSecret(t *testing.T) {
	t.Parallel()

	s := newTestStack(t)
	resp, err := http.Post(s.ts.URL+"/api/v1/session", "application/json",
		strings.NewReader(`{"peer":"testworker","secret":"wrong"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_MissingToken(t *testing.T) {
	t.Parallel()

	s := newTestStack(t)
	resp, err := http.Get(s.ts.URL + "/api/v1/users/alice/followers")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_BadToken(t *testing.T) {
	t.Parallel()

	s := newTestStack(t)
	req, err := http.NewRequest(http.MethodGet, s.ts.URL+"/api/v1/users/alice/followers", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer garbage")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDelegationEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestStack(t)

	resp := s.do(t, http.MethodPost, "/api/v1/users/alice/followers",
		models.Identity{UserID: "bob", FirstName: "Bob"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	changed := decodeBody[changedResponse](t, resp)
	require.Len(t, changed.Changed, 1)
	assert.Equal(t, "bob", changed.Changed[0].UserID)

	resp = s.do(t, http.MethodGet, "/api/v1/users/alice/followers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	followers := decodeBody[[]models.Identity](t, resp)
	require.Len(t, followers, 1)
	assert.Equal(t, "Bob", followers[0].FirstName)

	resp = s.do(t, http.MethodGet, "/api/v1/users/bob/sponsors", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sponsors := decodeBody[[]models.Identity](t, resp)
	require.Len(t, sponsors, 1)
	assert.Equal(t, "alice", sponsors[0].UserID)

	resp = s.do(t, http.MethodDelete, "/api/v1/users/alice/followers/bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	changed = decodeBody[changedResponse](t, resp)
	require.Len(t, changed.Changed, 1)
}

func TestAddFollower_NotEntitled(t *testing.T) {
	t.Parallel()

	s := newTestStack(t)
	resp := s.do(t, http.MethodPost, "/api/v1/users/stranger/followers",
		models.Identity{UserID: "bob"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRevokeFollower_Unknown(t *testing.T) {
	t.Parallel()

	s := newTestStack(t)
	resp := s.do(t, http.MethodDelete, "/api/v1/users/alice/followers/bob", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOTP_UnknownUser(t *testing.T) {
	t.Parallel()

	s := newTestStack(t)
	resp := s.do(t, http.MethodPost, "/api/v1/otp", map[string]string{"user_id": "stranger"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOTP_ApprovedByWorker(t *testing.T) {
	t.Parallel()

	s := newTestStack(t)

	// stand in for the smart-home worker: poll the event bus and answer
	// the approval request through the message endpoint
	go func() {
		env, ok := s.bus.Next(context.Background(), time.Second)
		if !ok || env.Type != models.MsgOTPRequest {
			return
		}
		reply, err := models.NewEnvelope(models.MsgOTPResponse, models.OTPApproval{
			Result:    true,
			ValidTime: 30,
			Msg:       "pin {1}",
		})
		if err != nil {
			return
		}
		resp := s.do(t, http.MethodPost, "/api/v1/message", reply)
		resp.Body.Close()
	}()

	resp := s.do(t, http.MethodPost, "/api/v1/otp", map[string]string{"user_id": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	otpResp := decodeBody[otp.Response](t, resp)
	require.NotEmpty(t, otpResp.Credential)
	assert.Equal(t, 30, otpResp.ValidSeconds)

	// the credential validates through the worker-facing token query
	query, err := models.NewEnvelope(models.MsgTokenQuery, models.TokenQuery{Token: otpResp.Credential})
	require.NoError(t, err)
	resp = s.do(t, http.MethodPost, "/api/v1/message", query)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reply := decodeBody[models.Envelope](t, resp)
	require.Equal(t, models.MsgTokenState, reply.Type)

	var state models.TokenState
	require.NoError(t, reply.Decode(&state))
	assert.True(t, state.Valid)
}

func TestOTP_AuthorityTimeout(t *testing.T) {
	t.Parallel()

	s := newTestStack(t)

	resp := s.do(t, http.MethodPost, "/api/v1/otp", map[string]string{"user_id": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	otpResp := decodeBody[otp.Response](t, resp)
	assert.Empty(t, otpResp.Credential)
	assert.Zero(t, otpResp.ValidSeconds)
}

func TestMessage_UnknownType(t *testing.T) {
	t.Parallel()

	s := newTestStack(t)
	resp := s.do(t, http.MethodPost, "/api/v1/message", models.Envelope{Type: "bogus"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvents_LongPoll(t *testing.T) {
	t.Parallel()

	s := newTestStack(t)
	s.bus.Emit(models.MsgOTPRequest, models.OTPRequestPayload{RequestID: "r1"})

	resp := s.do(t, http.MethodGet, "/api/v1/events?wait=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeBody[models.Envelope](t, resp)
	assert.Equal(t, models.MsgOTPRequest, env.Type)

	resp = s.do(t, http.MethodGet, "/api/v1/events?wait=1", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestIDCard(t *testing.T) {
	t.Parallel()

	s := newTestStack(t)

	resp := s.do(t, http.MethodGet, "/api/v1/idcard?requestor=alice&receiver=doorbot", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[models.IDCardResult](t, resp)
	assert.True(t, strings.HasPrefix(result.Token, models.FederatedTokenPrefix))

	resp = s.do(t, http.MethodGet, "/api/v1/idcard?requestor=alice", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBus_DropsWhenFull(t *testing.T) {
	t.Parallel()

	bus := NewBus(1, logging.Discard())
	bus.Emit("a", nil)
	bus.Emit("b", nil) // dropped

	env, ok := bus.Next(context.Background(), 100*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "a", env.Type)

	_, ok = bus.Next(context.Background(), 50*time.Millisecond)
	assert.False(t, ok)
}
