package diag

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskloop/internal/runtime/supervisor"
	"taskloop/pkg/logx"
)

func testSources() Sources {
	return Sources{
		Schedulers: func() []Scheduler {
			return []Scheduler{
				{Name: "s1", Engine: "eventloop", Snapshot: map[string]int{"executed": 3}},
				{Name: "s2", Engine: "async", Snapshot: map[string]int{"executed": 1}},
			}
		},
		Supervisor: func() supervisor.Snapshot {
			return supervisor.Snapshot{Counters: supervisor.Counters{Active: 2, Started: 2}}
		},
	}
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Routes(t *testing.T) {
	h := New(Config{}, testSources(), logx.Nop()).Handler()

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(t, h, "/debug/schedulers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var list []Scheduler
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "async", list[1].Engine)

	rec = get(t, h, "/debug/schedulers/s1")
	require.Equal(t, http.StatusOK, rec.Code)
	var one Scheduler
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "s1", one.Name)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/debug/schedulers/nope").Code)

	rec = get(t, h, "/debug/supervisor")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap supervisor.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(2), snap.Counters.Active)

	assert.Equal(t, http.StatusOK, get(t, h, "/debug/pprof/").Code)
}

func TestHandler_MissingSources(t *testing.T) {
	h := New(Config{}, Sources{}, logx.Nop()).Handler()
	rec := get(t, h, "/debug/schedulers")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/debug/supervisor").Code)
}

func TestHandler_Token(t *testing.T) {
	h := New(Config{Token: "s3cret"}, testSources(), logx.Nop()).Handler()

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz?token=wrong").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz?token=s3cret").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz", "Authorization", "Bearer nope").Code)
}

func TestCheckBind(t *testing.T) {
	assert.NoError(t, CheckBind("127.0.0.1:6060", "", false))
	assert.NoError(t, CheckBind("localhost:6060", "", false))
	assert.NoError(t, CheckBind("[::1]:6060", "", false))
	assert.ErrorIs(t, CheckBind(":6060", "", false), ErrInsecureBind)
	assert.ErrorIs(t, CheckBind("0.0.0.0:6060", "", false), ErrInsecureBind)
	assert.NoError(t, CheckBind("0.0.0.0:6060", "tok", false))
	assert.NoError(t, CheckBind("0.0.0.0:6060", "", true))
	assert.Error(t, CheckBind("no-port", "", true))
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := New(Config{Enabled: true, Addr: addr}, testSources(), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_RefusesInsecureBind(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Sources{}, logx.Nop())
	assert.ErrorIs(t, s.Serve(context.Background()), ErrInsecureBind)
}
