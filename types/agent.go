package types

import "github.com/pkg/errors"

type AgentConfig struct {
	Horizon     int
	Policy      Policy
	Environment Environment
}

// RL Agent configured with the corresponding
// policy and environment
type Agent struct {
	config      *AgentConfig
	policy      Policy
	environment Environment
}

// Instantiates a new Agent
func NewAgent(config *AgentConfig) *Agent {
	return &Agent{
		config:      config,
		policy:      config.Policy,
		environment: config.Environment,
	}
}

// RunEpisode runs a single episode and stores the resulting trace in the context.
// The episode stops at the horizon, at the end of the environment episode or when the context is done.
func (a *Agent) RunEpisode(eCtx *EpisodeContext) {
	state, err := a.environment.Reset(eCtx)
	if err != nil {
		eCtx.SetError(errors.Wrap(err, "reset"))
		return
	}
	a.policy.ResetEpisode(eCtx)
	trace := eCtx.Trace
	actions := state.Actions()

	for i := 0; i < a.config.Horizon; i++ {
		select {
		case <-eCtx.Context.Done():
			return
		default:
		}
		if len(actions) == 0 {
			break
		}
		sCtx := NewStepContext(eCtx, i)
		nextAction, ok := a.policy.PickAction(sCtx, state, actions)
		if !ok {
			break
		}
		result, err := a.environment.Step(nextAction, sCtx)
		if err != nil {
			eCtx.SetError(errors.Wrapf(err, "step %d", i))
			return
		}
		a.policy.UpdateStep(sCtx, state, nextAction, result)

		trace.Append(i, state, nextAction, result.State, result.Reward)
		eCtx.Timesteps = i + 1
		if result.Done() {
			eCtx.Terminated = result.Terminated
			eCtx.Truncated = result.Truncated
			break
		}
		state = result.State
		actions = state.Actions()
	}
	if !eCtx.Terminated && !eCtx.Truncated && eCtx.Timesteps >= a.config.Horizon {
		eCtx.HorizonEnd = true
	}
	trace.End(eCtx.Terminated, eCtx.Truncated || eCtx.HorizonEnd)
	a.policy.UpdateEpisode(eCtx)
}
