package types

import (
	"context"
	"errors"
	"os"
	"path"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// lineState is a position on a line, the episode terminates at goal
type lineState struct {
	pos int
}

func (s *lineState) Hash() string { return strconv.Itoa(s.pos) }

func (s *lineState) Actions() []Action { return []Action{moveAction(-1), moveAction(1)} }

func (s *lineState) Vector() []float64 { return []float64{float64(s.pos)} }

type moveAction int

func (a moveAction) Hash() string { return strconv.Itoa(int(a)) }

type lineEnv struct {
	goal     int
	limit    int
	failStep int
	steps    int
	cur      *lineState
}

func (e *lineEnv) Reset(_ *EpisodeContext) (State, error) {
	e.steps = 0
	e.cur = &lineState{pos: 0}
	return e.cur, nil
}

func (e *lineEnv) Step(a Action, _ *StepContext) (*StepResult, error) {
	if e.failStep > 0 && e.steps+1 == e.failStep {
		return nil, errors.New("boom")
	}
	e.steps += 1
	e.cur = &lineState{pos: e.cur.pos + int(a.(moveAction))}
	return &StepResult{
		State:      e.cur,
		Reward:     1,
		Terminated: e.cur.pos == e.goal,
		Truncated:  e.limit > 0 && e.steps >= e.limit,
	}, nil
}

// rightPolicy always moves right and counts the callbacks
type rightPolicy struct {
	episodes int
	steps    int
	resets   int
	finished int
}

func (p *rightPolicy) ResetEpisode(_ *EpisodeContext) { p.episodes += 1 }

func (p *rightPolicy) PickAction(_ *StepContext, _ State, actions []Action) (Action, bool) {
	return actions[1], true
}

func (p *rightPolicy) UpdateStep(_ *StepContext, _ State, _ Action, _ *StepResult) { p.steps += 1 }

func (p *rightPolicy) UpdateEpisode(_ *EpisodeContext) { p.finished += 1 }

func (p *rightPolicy) Reset() { p.resets += 1 }

var _ Policy = &rightPolicy{}

func TestRunEpisodeTerminates(t *testing.T) {
	policy := &rightPolicy{}
	agent := NewAgent(&AgentConfig{Horizon: 100, Policy: policy, Environment: &lineEnv{goal: 5}})

	eCtx := NewEpisodeContext(context.Background(), "test", 0, 0, 0, 100, 0)
	defer eCtx.Cancel()
	agent.RunEpisode(eCtx)

	require.NoError(t, eCtx.Err)
	require.True(t, eCtx.Terminated)
	require.False(t, eCtx.Truncated)
	require.False(t, eCtx.HorizonEnd)
	require.Equal(t, 5, eCtx.Timesteps)
	require.Equal(t, 5, eCtx.Trace.Len())
	require.Equal(t, 5.0, eCtx.Trace.Return())
	require.True(t, eCtx.Trace.Terminal())
	require.Equal(t, 5, policy.steps)
	require.Equal(t, 1, policy.finished)

	s, a, ns, ok := eCtx.Trace.Last()
	require.True(t, ok)
	require.Equal(t, "4", s.Hash())
	require.Equal(t, "1", a.Hash())
	require.Equal(t, "5", ns.Hash())
}

func TestRunEpisodeTruncatedAndHorizon(t *testing.T) {
	policy := &rightPolicy{}
	agent := NewAgent(&AgentConfig{Horizon: 100, Policy: policy, Environment: &lineEnv{goal: -1, limit: 3}})
	eCtx := NewEpisodeContext(context.Background(), "test", 0, 0, 0, 100, 0)
	defer eCtx.Cancel()
	agent.RunEpisode(eCtx)

	require.True(t, eCtx.Truncated)
	require.False(t, eCtx.Terminated)
	require.Equal(t, 3, eCtx.Timesteps)
	require.True(t, eCtx.Trace.Truncated())

	agent = NewAgent(&AgentConfig{Horizon: 4, Policy: policy, Environment: &lineEnv{goal: -1}})
	eCtx = NewEpisodeContext(context.Background(), "test", 0, 1, 0, 4, 0)
	defer eCtx.Cancel()
	agent.RunEpisode(eCtx)

	require.True(t, eCtx.HorizonEnd)
	require.False(t, eCtx.Truncated)
	require.Equal(t, 4, eCtx.Trace.Len())
	require.True(t, eCtx.Trace.Truncated())
}

func TestRunEpisodeStepError(t *testing.T) {
	policy := &rightPolicy{}
	agent := NewAgent(&AgentConfig{Horizon: 10, Policy: policy, Environment: &lineEnv{goal: 5, failStep: 2}})
	eCtx := NewEpisodeContext(context.Background(), "test", 0, 0, 0, 10, 0)
	defer eCtx.Cancel()
	agent.RunEpisode(eCtx)

	require.Error(t, eCtx.Err)
	require.False(t, eCtx.Valid())
	require.Equal(t, 1, eCtx.Trace.Len())
	require.Equal(t, 0, policy.finished)
}

func TestEpisodeContextStats(t *testing.T) {
	eCtx := NewEpisodeContext(context.Background(), "test", 0, 0, 0, 10, 0)
	defer eCtx.Cancel()

	_, ok := eCtx.Stat("epsilon")
	require.False(t, ok)

	eCtx.SetStat("epsilon", 0.5)
	v, ok := eCtx.Stat("epsilon")
	require.True(t, ok)
	require.Equal(t, 0.5, v)

	stats := eCtx.Stats()
	stats["epsilon"] = 1
	v, _ = eCtx.Stat("epsilon")
	require.Equal(t, 0.5, v)
}

func TestComparisonRun(t *testing.T) {
	dir := t.TempDir()
	comparison, err := NewComparison(&ComparisonConfig{
		Runs:         2,
		Episodes:     3,
		Horizon:      10,
		RecordPath:   dir,
		RecordTraces: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, comparison.ID)

	policy := &rightPolicy{}
	comparison.AddExperiment(NewExperiment("right", policy, &lineEnv{goal: 2}))

	collected := make([]DataSet, 0)
	comparison.AddAnalysis("returns", NewReturnAnalyzer(), func(_, _ int, names []string, ds []DataSet) {
		require.Equal(t, []string{"right"}, names)
		collected = append(collected, ds[0])
	})

	require.NoError(t, comparison.Run(context.Background()))
	require.Len(t, collected, 2)
	for _, ds := range collected {
		data := ds.(*ReturnData)
		require.Equal(t, []float64{2, 2, 2}, data.Returns)
		require.Equal(t, []int{2, 2, 2}, data.Lengths)
	}
	require.Equal(t, 6, policy.episodes)
	require.Equal(t, 2, policy.resets)

	require.FileExists(t, dir+"/comparison_config.json")
	require.FileExists(t, dir+"/traces/right_0.jsonl")
	require.FileExists(t, dir+"/traces/right_1.jsonl")
}

func TestComparisonAbortsOnErrors(t *testing.T) {
	comparison, err := NewComparison(&ComparisonConfig{
		Runs:                   1,
		Episodes:               20,
		Horizon:                10,
		RecordPath:             t.TempDir(),
		ConsecutiveErrorsAbort: 3,
	})
	require.NoError(t, err)

	comparison.AddExperiment(NewExperiment("failing", &rightPolicy{}, &lineEnv{goal: 5, failStep: 1}))
	analyzer := NewReturnAnalyzer()
	var episodes int
	comparison.AddAnalysis("returns", analyzer, func(_, _ int, _ []string, ds []DataSet) {
		episodes = len(ds[0].(*ReturnData).Returns)
	})

	require.NoError(t, comparison.Run(context.Background()))
	require.Equal(t, 3, episodes)
}

func TestNewComparisonRefusesWorkingDir(t *testing.T) {
	_, err := NewComparison(&ComparisonConfig{Runs: 1, Episodes: 1, Horizon: 1, RecordPath: "."})
	require.ErrorIs(t, err, ErrRecordPathIsWorkingDir)

	wd, err := os.Getwd()
	require.NoError(t, err)
	_, err = NewComparison(&ComparisonConfig{Runs: 1, Episodes: 1, Horizon: 1, RecordPath: wd + "/"})
	require.ErrorIs(t, err, ErrRecordPathIsWorkingDir)
}

func TestRemoveContents(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(path.Join(dir, "outtext.txt"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(path.Join(dir, "traces", "nested"), 0755))

	require.NoError(t, RemoveContents(dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.DirExists(t, dir)
}
