package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationMetrics(t *testing.T) {
	var om OperationMetrics
	om.Record(10*time.Millisecond, http.StatusOK)
	om.Record(20*time.Millisecond, http.StatusConflict)
	om.Record(30*time.Millisecond, http.StatusBadGateway)
	om.Record(40*time.Millisecond, 0)

	assert.EqualValues(t, 4, om.Total)
	assert.EqualValues(t, 1, om.Success)
	assert.EqualValues(t, 1, om.Conflict)
	assert.EqualValues(t, 2, om.Error)

	avg, lo, hi, p50, _ := om.Stats()
	assert.Equal(t, 25*time.Millisecond, avg)
	assert.Equal(t, 10*time.Millisecond, lo)
	assert.Equal(t, 40*time.Millisecond, hi)
	assert.Equal(t, 30*time.Millisecond, p50)
}

func TestNormalizeRatios(t *testing.T) {
	cfg := SimConfig{AcceptRatio: 2, RejectRatio: 1, ResolveRatio: 1, ReadRatio: 0}
	normalizeRatios(&cfg)
	assert.InDelta(t, 0.5, cfg.AcceptRatio, 1e-9)
	assert.InDelta(t, 0.25, cfg.RejectRatio, 1e-9)
}

func TestClient(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
			return
		}
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.RequestURI()
		w.WriteHeader(http.StatusConflict)
	}))
	t.Cleanup(srv.Close)

	c := &Client{baseURL: srv.URL, http: srv.Client()}
	require.NoError(t, c.Login(context.Background(), "recepcion", "pw"))

	status, err := c.Action(context.Background(), 42, "accept")
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "/requests/42/accept", gotPath)

	_, err = c.List(context.Background(), "conflict", true)
	require.NoError(t, err)
	assert.Equal(t, "/requests?filter=conflict&refresh=true", gotPath)
}

func TestPrintAudit(t *testing.T) {
	var buf bytes.Buffer
	printAudit(&buf, nil)
	assert.Contains(t, buf.String(), "no request has more than one appointment")

	buf.Reset()
	printAudit(&buf, []duplicate{{Key: "request_id=7", Count: 2}})
	assert.Contains(t, buf.String(), "request_id=7: 2 appointments")
}
