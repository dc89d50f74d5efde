package cartpole

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeu5/cartpole-dqn/types"
)

func TestResetWithinBounds(t *testing.T) {
	env := NewEnv(&EnvConfig{Seed: 42})
	for i := 0; i < 100; i++ {
		s, err := env.Reset(nil)
		require.NoError(t, err)
		for _, v := range s.(*State).Vector() {
			require.LessOrEqual(t, math.Abs(v), 0.05)
		}
		require.Equal(t, 0, s.(*State).Steps)
	}
}

func TestResetSeeded(t *testing.T) {
	a, _ := NewEnv(&EnvConfig{Seed: 7}).Reset(nil)
	b, _ := NewEnv(&EnvConfig{Seed: 7}).Reset(nil)
	require.Equal(t, a.Hash(), b.Hash())
}

func TestSimulateStep(t *testing.T) {
	s := &State{}
	next := Simulate(s, PushRight)
	// Euler: positions use the previous velocities
	require.Equal(t, 0.0, next.X)
	require.Equal(t, 0.0, next.Theta)
	require.Greater(t, next.XDot, 0.0)
	require.Less(t, next.ThetaDot, 0.0)
	require.Equal(t, 1, next.Steps)

	temp := forceMag / totalMass
	thetaAcc := -temp / (length * (4.0/3.0 - massPole/totalMass))
	xAcc := temp - poleMassLength*thetaAcc/totalMass
	require.InDelta(t, tau*thetaAcc, next.ThetaDot, 1e-6)
	require.InDelta(t, tau*xAcc, next.XDot, 1e-6)

	left := Simulate(s, PushLeft)
	require.InDelta(t, -next.XDot, left.XDot, 1e-12)
	require.InDelta(t, -next.ThetaDot, left.ThetaDot, 1e-12)
}

func TestStepTerminates(t *testing.T) {
	env := NewEnv(&EnvConfig{Seed: 1})
	_, err := env.Reset(nil)
	require.NoError(t, err)

	steps := 0
	var result *types.StepResult
	for {
		result, err = env.Step(PushRight, nil)
		require.NoError(t, err)
		require.Equal(t, 1.0, result.Reward)
		steps += 1
		if result.Done() {
			break
		}
		require.Less(t, steps, DefaultMaxSteps)
	}
	require.True(t, result.Terminated)
	require.False(t, result.Truncated)
	require.True(t, result.State.(*State).Failed())

	_, err = env.Step(PushRight, nil)
	require.ErrorIs(t, err, ErrEpisodeDone)
}

func TestStepTruncates(t *testing.T) {
	env := NewEnv(&EnvConfig{Seed: 3, MaxSteps: 5})
	s, err := env.Reset(nil)
	require.NoError(t, err)

	var result *types.StepResult
	for i := 0; i < 5; i++ {
		// alternating pushes keep the pole up for a few steps
		result, err = env.Step(Push(i%2), nil)
		require.NoError(t, err)
	}
	require.True(t, result.Truncated)
	require.False(t, result.Terminated)
	require.Equal(t, 5, result.State.(*State).Steps)
	require.NotEqual(t, s.Hash(), result.State.Hash())
}

func TestStepRejectsUnknownAction(t *testing.T) {
	env := NewEnv(&EnvConfig{})
	_, err := env.Step(PushLeft, nil)
	require.ErrorIs(t, err, ErrEpisodeDone)

	_, err = env.Reset(nil)
	require.NoError(t, err)
	_, err = env.Step(Push(5), nil)
	require.ErrorIs(t, err, ErrUnknownAction)
}

func TestActionsOrder(t *testing.T) {
	s := &State{}
	acts := s.Actions()
	require.Len(t, acts, 2)
	require.Equal(t, 0, types.ActionIndex(acts, PushLeft))
	require.Equal(t, 1, types.ActionIndex(acts, PushRight))
	require.Equal(t, "left", PushLeft.Hash())
}

func TestMonitors(t *testing.T) {
	trace := types.NewTrace()
	s := &State{}
	for i := 0; i < 20; i++ {
		push := Push(i % 2)
		next := Simulate(s, push)
		require.False(t, next.Failed())
		trace.Append(i, s, push, next, 1)
		s = next
	}

	prefix, ok := BalancedMonitor(10).Check(trace)
	require.True(t, ok)
	require.Equal(t, 10, prefix.Len())

	_, ok = BalancedMonitor(50).Check(trace)
	require.False(t, ok)

	out := FormatTrace(trace)
	require.Contains(t, out, "left")
	require.Contains(t, out, "right")
	require.NotContains(t, out, "fail")
}

func TestCenteredMonitor(t *testing.T) {
	path := []*State{{X: 0}, {X: 0.8}, {X: 1.5}, {X: 0.9}, {X: 0.3, Theta: 0.01}, {X: 0.1}}
	trace := types.NewTrace()
	for i := 0; i+1 < len(path); i++ {
		trace.Append(i, path[i], PushLeft, path[i+1], 1)
	}

	prefix, ok := CenteredMonitor(1.0).Check(trace)
	require.True(t, ok)
	require.Equal(t, 4, prefix.Len())

	_, ok = CenteredMonitor(2.0).Check(trace)
	require.False(t, ok)
}

func TestAgentEpisode(t *testing.T) {
	env := NewEnv(&EnvConfig{Seed: 11, MaxSteps: 5})
	agent := types.NewAgent(&types.AgentConfig{Horizon: 100, Policy: &alternating{}, Environment: env})
	eCtx := types.NewEpisodeContext(context.Background(), "alt", 0, 0, 0, 100, 0)
	defer eCtx.Cancel()
	agent.RunEpisode(eCtx)

	require.NoError(t, eCtx.Err)
	require.True(t, eCtx.Truncated)
	require.Equal(t, 5, eCtx.Trace.Len())
	require.Equal(t, 5.0, eCtx.Trace.Return())
}

func TestPredicates(t *testing.T) {
	s := &State{X: 1, Theta: 3 * math.Pi / 180, Steps: 10}
	require.True(t, PoleWithin(5)(s))
	require.False(t, PoleWithin(2)(s))
	require.True(t, CartWithin(1.5)(s))
	require.False(t, CartWithin(0.5)(s))
	require.True(t, BalancedFor(10)(s))
	require.False(t, BalancedFor(11)(s))
	require.False(t, BalancedFor(1)(&State{X: 3, Steps: 4}))
}

type alternating struct{}

func (p *alternating) ResetEpisode(*types.EpisodeContext) {}

func (p *alternating) PickAction(sCtx *types.StepContext, _ types.State, actions []types.Action) (types.Action, bool) {
	return actions[sCtx.Step%2], true
}

func (p *alternating) UpdateStep(*types.StepContext, types.State, types.Action, *types.StepResult) {}

func (p *alternating) UpdateEpisode(*types.EpisodeContext) {}

func (p *alternating) Reset() {}
