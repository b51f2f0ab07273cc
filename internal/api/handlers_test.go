package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-request-desk/internal/account"
	"github.com/hackgods/clinic-request-desk/internal/appointment"
)

type fakeRequests struct {
	entries   []appointment.BoardEntry
	refreshed bool
	gotFilter appointment.Filter
	gotNew    appointment.NewRequest

	submitErr error
	acceptRes *appointment.AcceptResult
	acceptErr error
	rejectErr error
}

func (f *fakeRequests) Requests(_ context.Context, flt appointment.Filter) ([]appointment.BoardEntry, error) {
	f.gotFilter = flt
	return appointment.FilterRequests(f.entries, flt), nil
}

func (f *fakeRequests) Refresh(context.Context) ([]appointment.BoardEntry, error) {
	f.refreshed = true
	return f.entries, nil
}

func (f *fakeRequests) SubmitRequest(_ context.Context, in appointment.NewRequest) (*appointment.Request, error) {
	f.gotNew = in
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &appointment.Request{ID: 77, PatientName: in.PatientName, RequestedAt: in.RequestedAt}, nil
}

func (f *fakeRequests) AcceptRequest(context.Context, int64) (*appointment.AcceptResult, error) {
	return f.acceptRes, f.acceptErr
}

func (f *fakeRequests) RejectRequest(_ context.Context, id int64) (*appointment.ClassifiedRequest, error) {
	if f.rejectErr != nil {
		return nil, f.rejectErr
	}
	return &appointment.ClassifiedRequest{Request: appointment.Request{ID: id}, Status: appointment.RequestRejected}, nil
}

func (f *fakeRequests) ResolveConflict(_ context.Context, id int64) (*appointment.ClassifiedRequest, error) {
	return &appointment.ClassifiedRequest{Request: appointment.Request{ID: id}, Status: appointment.RequestPending}, nil
}

type fakeAccounts struct {
	tokens *account.Tokens
}

func (f *fakeAccounts) Register(_ context.Context, in account.Registration) (*account.Account, error) {
	if in.Username == "taken" {
		return nil, account.ErrAccountExists
	}
	if len(in.Password) < 8 {
		return nil, &account.ValidationError{Field: "password", Message: "too short"}
	}
	return &account.Account{ID: 1, Username: in.Username, Email: in.Email}, nil
}

func (f *fakeAccounts) Login(_ context.Context, username, password string) (*account.Session, error) {
	if password != "s3cret-pass" {
		return nil, account.ErrInvalidCredentials
	}
	acc := account.Account{ID: 1, Username: username}
	token, exp, err := f.tokens.Issue(acc)
	if err != nil {
		return nil, err
	}
	return &account.Session{Token: token, ExpiresAt: exp, Account: acc}, nil
}

func (f *fakeAccounts) Authenticate(raw string) (*account.Claims, error) {
	return f.tokens.Verify(raw)
}

type testServer struct {
	handler  http.Handler
	requests *fakeRequests
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	accounts := &fakeAccounts{tokens: account.NewTokens("test-secret", "clinic-request-desk", time.Hour)}
	token, _, err := accounts.tokens.Issue(account.Account{ID: 1, Username: "recepcion"})
	require.NoError(t, err)

	requests := &fakeRequests{}
	ok := func(context.Context) error { return nil }

	return &testServer{
		handler: NewRouter(RouterConfig{
			Requests:      requests,
			Accounts:      accounts,
			PostgresCheck: ok,
			RedisCheck:    ok,
			Logger:        zerolog.Nop(),
			Env:           "test",
		}),
		requests: requests,
		token:    token,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestListRequests_RequiresAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/requests", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/requests", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListRequests(t *testing.T) {
	s := newTestServer(t)
	apptID := int64(900)
	s.requests.entries = []appointment.BoardEntry{
		{ClassifiedRequest: appointment.ClassifiedRequest{
			Request: appointment.Request{ID: 1, PatientName: "Juan Pérez"}, Status: appointment.RequestPending, HasConflict: true,
		}, InFlight: true},
		{ClassifiedRequest: appointment.ClassifiedRequest{
			Request: appointment.Request{ID: 2, PatientName: "Ana López"}, Status: appointment.RequestAccepted, AppointmentID: &apptID,
		}},
	}

	rec := s.do(t, http.MethodGet, "/requests?filter=conflict&refresh=true", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.requests.refreshed)
	assert.Equal(t, appointment.FilterConflict, s.requests.gotFilter)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.EqualValues(t, 1, raw["count"])
	first := raw["requests"].([]any)[0].(map[string]any)
	assert.Equal(t, "Juan Pérez", first["patientName"])
	assert.Equal(t, "pending", first["status"])
	assert.Equal(t, true, first["hasConflict"])
	assert.Equal(t, true, first["inFlight"])
	assert.Contains(t, first, "requestedAt")

	rec = s.do(t, http.MethodGet, "/requests?filter=bogus", nil, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSubmitRequest(t *testing.T) {
	s := newTestServer(t)
	when := time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC)

	rec := s.do(t, http.MethodPost, "/requests", SubmitRequestBody{PatientName: "Juan Pérez", RequestedAt: when}, false)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decode[RequestResponse](t, rec)
	assert.Equal(t, int64(77), resp.ID)
	assert.Equal(t, "pending", resp.Status)
	assert.True(t, s.requests.gotNew.RequestedAt.Equal(when))

	s.requests.submitErr = &appointment.ValidationError{Field: "patientName", Message: "is required"}
	rec = s.do(t, http.MethodPost, "/requests", SubmitRequestBody{RequestedAt: when}, false)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation_failed", decode[ErrorResponse](t, rec).Error)

	req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString("{"))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcceptRequest_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", appointment.ErrRequestNotFound, http.StatusNotFound},
		{"in flight", appointment.ErrRequestInFlight, http.StatusConflict},
		{"rejected", appointment.ErrInvalidTransition, http.StatusConflict},
		{"validation", &appointment.ValidationError{Field: "requestedAt", Message: "is required"}, http.StatusUnprocessableEntity},
		{"partial", &appointment.PartialFailureError{PatientID: 3, Err: errors.New("insert failed")}, http.StatusBadGateway},
		{"connectivity", &appointment.ConnectivityError{Op: "create appointment", Err: errors.New("refused")}, http.StatusServiceUnavailable},
		{"partial over connectivity", &appointment.PartialFailureError{PatientID: 3, Err: &appointment.ConnectivityError{Op: "x", Err: errors.New("refused")}}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			s.requests.acceptErr = tc.err

			rec := s.do(t, http.MethodPost, "/requests/42/accept", nil, true)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestAcceptRequest(t *testing.T) {
	s := newTestServer(t)
	s.requests.acceptRes = &appointment.AcceptResult{RequestID: 42, PatientID: 3, AppointmentID: 900, AlreadyAccepted: true}

	rec := s.do(t, http.MethodPost, "/requests/42/accept", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AcceptResponse](t, rec)
	assert.Equal(t, int64(900), resp.AppointmentID)
	assert.True(t, resp.AlreadyAccepted)

	rec = s.do(t, http.MethodPost, "/requests/abc/accept", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRejectAndResolve(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/requests/5/reject", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", decode[RequestResponse](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/requests/5/resolve", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[RequestResponse](t, rec).HasConflict)

	s.requests.rejectErr = appointment.ErrInvalidTransition
	rec = s.do(t, http.MethodPost, "/requests/5/reject", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/register", RegisterBody{Username: "recepcion", Email: "r@clinic.example", Password: "s3cret-pass"}, false)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "recepcion", decode[AccountResponse](t, rec).Username)

	rec = s.do(t, http.MethodPost, "/auth/register", RegisterBody{Username: "taken", Password: "s3cret-pass"}, false)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/register", RegisterBody{Username: "x", Password: "short"}, false)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", LoginBody{Username: "recepcion", Password: "wrong"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", LoginBody{Username: "recepcion", Password: "s3cret-pass"}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	tok := decode[TokenResponse](t, rec)
	require.NotEmpty(t, tok.Token)

	// the issued token opens the desk
	s.token = tok.Token
	rec = s.do(t, http.MethodGet, "/requests", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDAndRecovery(t *testing.T) {
	h := RequestIDMiddleware(RecoveryMiddleware(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	redisCheck := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	pgUp := func(context.Context) error { return nil }
	pgDown := func(context.Context) error { return errors.New("connection refused") }

	get := func(h *HealthHandler) (*httptest.ResponseRecorder, ReadinessResponse) {
		rec := httptest.NewRecorder()
		h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		return rec, decode[ReadinessResponse](t, rec)
	}

	rec, resp := get(NewHealthHandler(pgUp, redisCheck, "test", "v1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp.Status)

	rec, resp = get(NewHealthHandler(pgDown, redisCheck, "test", "v1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "down", resp.Dependencies["postgres"])

	mr.SetError("LOADING server is loading")
	rec, resp = get(NewHealthHandler(pgUp, redisCheck, "test", "v1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Dependencies["redis"])
}
