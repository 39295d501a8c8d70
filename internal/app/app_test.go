package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"taskloop/internal/config"
	"taskloop/pkg/logx"
	"taskloop/pkg/sched/async"
	"taskloop/pkg/sched/eventloop"
	schedmock "taskloop/pkg/sched/mock"
)

func quietLogging() config.LoggingConfig {
	return config.LoggingConfig{Level: "error"}
}

func waitTimeout(t *testing.T, a *App, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return a.Wait(ctx)
}

func TestApp_CountdownsStopTheirSchedulers(t *testing.T) {
	job := config.JobConfig{Name: "tick", Kind: config.JobCountdown, Count: 2, Every: "5ms"}
	a, err := NewFromConfig(&config.Config{
		Logging: quietLogging(),
		Schedulers: []config.SchedulerConfig{
			{Name: "loop", Engine: config.EngineEventLoop, Jobs: []config.JobConfig{job}},
			{Name: "host", Engine: config.EngineAsync, Jobs: []config.JobConfig{job}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"loop", "host"}, a.Names())

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, waitTimeout(t, a, 5*time.Second))

	for _, e := range a.engines {
		select {
		case <-e.Done():
		default:
			t.Fatalf("scheduler %s still running", e.name)
		}
	}
	assert.Equal(t, uint64(3), a.engines[0].s.(*eventloop.Scheduler).Snapshot().Executed)
	require.NoError(t, a.Stop(context.Background()))
}

func TestApp_LimitedJobsThenCancel(t *testing.T) {
	a, err := NewFromConfig(&config.Config{
		Logging: quietLogging(),
		Schedulers: []config.SchedulerConfig{
			{Name: "loop", Jobs: []config.JobConfig{
				{Name: "beat", Kind: config.JobInterval, Every: "5ms", Limit: 3},
			}},
			{Name: "host", Engine: config.EngineAsync, Jobs: []config.JobConfig{
				{Name: "poll", Kind: config.JobInterval, Every: "5ms", Limit: 3},
			}},
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	loop := a.engines[0].s.(*eventloop.Scheduler)
	host := a.engines[1].s.(*async.Scheduler)

	// Seed task plus three firings.
	assert.Eventually(t, func() bool { return loop.Snapshot().Executed == 4 }, 5*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		snap := host.Snapshot()
		return snap.Executed >= 4 && snap.Suspended == 0
	}, 5*time.Second, 5*time.Millisecond)

	// Finished jobs leave the schedulers idle, not stopped.
	assert.False(t, loop.Snapshot().Stopped)
	assert.False(t, host.Snapshot().Stopped)

	cancel()
	require.NoError(t, waitTimeout(t, a, 5*time.Second))
	assert.True(t, loop.Snapshot().Exited)
	assert.True(t, host.Snapshot().Exited)
	require.NoError(t, a.Stop(context.Background()))
}

func TestApp_StartTwice(t *testing.T) {
	a, err := NewFromConfig(&config.Config{Logging: quietLogging()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	assert.Error(t, a.Start(ctx))

	require.NoError(t, a.Stop(context.Background()))
}

func TestApp_WaitBeforeStart(t *testing.T) {
	a, err := NewFromConfig(&config.Config{Logging: quietLogging()})
	require.NoError(t, err)
	assert.Error(t, a.Wait(context.Background()))
	assert.NoError(t, a.Stop(context.Background()))
}

func TestApp_RejectsInvalidConfig(t *testing.T) {
	_, err := NewFromConfig(&config.Config{
		Logging: quietLogging(),
		Schedulers: []config.SchedulerConfig{
			{Name: "loop", Jobs: []config.JobConfig{{Name: "bad", Kind: config.JobCron, Spec: "not a cron"}}},
		},
	})
	assert.ErrorIs(t, err, config.ErrInvalid)

	dir := t.TempDir()
	path := filepath.Join(dir, "taskloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schedulers:\n  - name: x\n    engine: threads\n"), 0o644))
	_, err = New(path)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestApp_FromFileAppliesLoggingReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskloop.yaml")
	write := func(level string) {
		body := "logging:\n  level: " + level + "\nschedulers:\n  - name: loop\n    jobs:\n      - name: beat\n        kind: cron\n        spec: \"@every 1h\"\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	write("error")

	a, err := New(path)
	require.NoError(t, err)
	a.cfgm.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	write("warn")

	assert.Eventually(t, func() bool { return a.logs.Config().Level == "warn" }, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, waitTimeout(t, a, 5*time.Second))
	require.NoError(t, a.Stop(context.Background()))
}

func TestApp_DiagServesSchedulerSnapshots(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	a, err := NewFromConfig(&config.Config{
		Logging: quietLogging(),
		Diag:    config.DiagConfig{Enabled: true, Addr: addr},
		Schedulers: []config.SchedulerConfig{
			{Name: "loop", Jobs: []config.JobConfig{{Name: "beat", Kind: config.JobCron, Spec: "@every 1h"}}},
			{Name: "host", Engine: config.EngineAsync},
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	var got []struct {
		Name     string         `json:"name"`
		Engine   string         `json:"engine"`
		Snapshot map[string]any `json:"snapshot"`
	}
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/debug/schedulers")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&got) == nil
	}, 3*time.Second, 10*time.Millisecond)

	require.Len(t, got, 2)
	assert.Equal(t, "loop", got[0].Name)
	assert.Equal(t, config.EngineEventLoop, got[0].Engine)
	assert.Equal(t, "host", got[1].Name)
	assert.Equal(t, config.EngineAsync, got[1].Engine)
	assert.Contains(t, got[0].Snapshot, "delayed")
	assert.Contains(t, got[1].Snapshot, "suspended")

	cancel()
	require.NoError(t, waitTimeout(t, a, 5*time.Second))
	require.NoError(t, a.Stop(context.Background()))
}

func TestFinish_ToleratesShutdownStop(t *testing.T) {
	for name, s := range map[string]Engine{
		"eventloop": eventloop.New("loop"),
		"async":     async.New("host"),
	} {
		s := s
		t.Run(name, func(t *testing.T) {
			require.True(t, s.TryStop())
			assert.NotPanics(t, finish(s, logx.Nop()))
			s.StartLoop()
			<-s.Done()
		})
	}
}

func TestFinish_FallsBackToStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := schedmock.NewScheduler(ctrl)
	s.EXPECT().Stop()
	finish(s, logx.Nop())()
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestSeed_ShutdownDuringLastCountdownTick(t *testing.T) {
	for name, newEngine := range map[string]func() Engine{
		"eventloop": func() Engine { return eventloop.New("loop") },
		"async":     func() Engine { return async.New("host") },
	} {
		newEngine := newEngine
		t.Run(name, func(t *testing.T) {
			s := newEngine()
			// The tick log line stands in for a signal arriving mid-tick.
			w := writerFunc(func(p []byte) (int, error) {
				if bytes.Contains(p, []byte("countdown tick")) {
					s.TryStop()
				}
				return len(p), nil
			})
			job := config.JobConfig{Name: "tick", Kind: config.JobCountdown, Count: 0, Every: "1ms"}
			require.NoError(t, seed(s, job, logx.NewJSON(w, "info")))

			assert.NotPanics(t, s.StartLoop)
			<-s.Done()
		})
	}
}

func TestApp_ReportsStatusToSystemd(t *testing.T) {
	dir, err := os.MkdirTemp("", "sd")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sock := filepath.Join(dir, "notify")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	t.Setenv("NOTIFY_SOCKET", sock)

	a, err := NewFromConfig(&config.Config{
		Logging: quietLogging(),
		Schedulers: []config.SchedulerConfig{
			{Name: "loop", Jobs: []config.JobConfig{{Name: "beat", Kind: config.JobCron, Spec: "@every 1h"}}},
			{Name: "host", Engine: config.EngineAsync},
		},
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Stop(context.Background()))

	var got []string
	buf := make([]byte, 256)
	for len(got) < 4 {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, err := conn.Read(buf)
		require.NoError(t, err)
		got = append(got, string(buf[:n]))
	}
	assert.Equal(t, []string{"READY=1", "STATUS=running 2 schedulers", "STOPPING=1", "STATUS=stopping 2 schedulers"}, got)
}
