package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/cartpole-dqn/cartpole"
	"github.com/zeu5/cartpole-dqn/types"
)

func episode(t *testing.T, experiment string, run, ep, steps int, terminated bool) *types.EpisodeContext {
	t.Helper()
	eCtx := types.NewEpisodeContext(context.Background(), experiment, run, ep, 0, 500, 0)
	t.Cleanup(eCtx.Cancel)
	s := &cartpole.State{}
	for i := 0; i < steps; i++ {
		next := cartpole.Simulate(s, cartpole.Push(i%2))
		eCtx.Trace.Append(i, s, cartpole.Push(i%2), next, 1)
		s = next
	}
	eCtx.Timesteps = steps
	eCtx.Terminated = terminated
	eCtx.Truncated = !terminated
	eCtx.SetStat("epsilon", 0.5)
	return eCtx
}

func TestSummarize(t *testing.T) {
	eCtx := episode(t, "dqn", 1, 3, 10, true)
	s := Summarize(eCtx)
	require.Equal(t, "dqn", s.Experiment)
	require.Equal(t, 1, s.Run)
	require.Equal(t, 3, s.Episode)
	require.Equal(t, 10, s.Steps)
	require.Equal(t, 10.0, s.Return)
	require.Equal(t, "terminated", s.Outcome())
	require.Equal(t, 0.5, s.Stats["epsilon"])

	eCtx.SetError(errors.New("boom"))
	s = Summarize(eCtx)
	require.Equal(t, "boom", s.Error)
	require.Equal(t, "error", s.Outcome())
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(2)
	r.Analyze(episode(t, "dqn", 0, 0, 10, true))
	r.Analyze(episode(t, "dqn", 0, 1, 20, true))
	r.Analyze(episode(t, "dqn", 0, 2, 40, false))
	r.Analyze(episode(t, "random", 0, 0, 5, true))

	require.Equal(t, 2.0, testutil.ToFloat64(r.episodes.WithLabelValues("dqn", "terminated")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.episodes.WithLabelValues("dqn", "truncated")))
	require.Equal(t, 70.0, testutil.ToFloat64(r.steps.WithLabelValues("dqn")))
	require.Equal(t, 40.0, testutil.ToFloat64(r.lastReturn.WithLabelValues("dqn")))
	require.Equal(t, 30.0, testutil.ToFloat64(r.meanReturn.WithLabelValues("dqn")))
	require.Equal(t, 0.5, testutil.ToFloat64(r.stats.WithLabelValues("dqn", "epsilon")))

	snap, ok := r.Snapshot("dqn")
	require.True(t, ok)
	require.Equal(t, 3, snap.Episodes)
	require.Equal(t, 30.0, snap.MeanReturn)
	require.Equal(t, 40.0, snap.BestReturn)
	require.Equal(t, 2, snap.LastEpisode.Episode)

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	require.Equal(t, "dqn", snaps[0].Experiment)
	require.Equal(t, "random", snaps[1].Experiment)

	// a new run starts a new snapshot
	r.Analyze(episode(t, "dqn", 1, 0, 7, true))
	snap, _ = r.Snapshot("dqn")
	require.Equal(t, 1, snap.Run)
	require.Equal(t, 1, snap.Episodes)
	require.Equal(t, 7.0, snap.MeanReturn)

	_, ok = r.Snapshot("missing")
	require.False(t, ok)
}

func TestServerHandlers(t *testing.T) {
	r := NewRecorder(10)
	r.Analyze(episode(t, "dqn", 0, 0, 12, true))
	handler := NewServer("localhost:0", r, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := struct {
		Experiments []ExperimentSnapshot `json:"experiments"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Experiments, 1)
	require.Equal(t, 12.0, body.Experiments[0].LastEpisode.Return)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats/dqn", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	snap := ExperimentSnapshot{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, "dqn", snap.Experiment)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `cartpole_episodes_total{experiment="dqn",outcome="terminated"} 1`))
}

func TestServerStartStops(t *testing.T) {
	s := NewServer("127.0.0.1:0", NewRecorder(10), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()
	cancel()
	require.NoError(t, <-done)
}

func TestRedisSink(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	sink := NewRedisSink(&RedisConfig{Addr: addr, Key: "cartpole:test:" + t.Name(), MaxLen: 2}, nil)
	defer sink.Close()
	ctx := context.Background()
	require.NoError(t, sink.Ping(ctx))
	require.NoError(t, sink.Clear(ctx))
	defer sink.Clear(ctx)

	for i := 0; i < 3; i++ {
		sink.Analyze(episode(t, "dqn", 0, i, 5+i, true))
	}
	require.Equal(t, map[string]int{"written": 3, "failed": 0}, sink.DataSet())

	recent, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, 1, recent[0].Episode)
	require.Equal(t, 2, recent[1].Episode)
}

func TestRedisSinkUnreachable(t *testing.T) {
	sink := NewRedisSink(&RedisConfig{Addr: "127.0.0.1:1"}, nil)
	defer sink.Close()
	sink.Analyze(episode(t, "dqn", 0, 0, 3, true))
	require.Equal(t, map[string]int{"written": 0, "failed": 1}, sink.DataSet())
	sink.Reset()
	require.Equal(t, map[string]int{"written": 0, "failed": 0}, sink.DataSet())
}
