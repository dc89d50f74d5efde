package dqn

import (
	"math"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/zeu5/cartpole-dqn/policies"
	"github.com/zeu5/cartpole-dqn/types"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Statistics reported in the episode context
const (
	StatLoss          = "loss"
	StatMemory        = "memory"
	StatOptimizeSteps = "optimize_steps"
)

// Agent is a Deep Q-Network policy with experience replay and a target network.
// Every environment step is stored in memory and followed by one optimization step.
type Agent struct {
	config     *Config
	inputSize  int
	numActions int
	logger     log.Logger

	policyNet *Network
	targetNet *Network
	optimizer *AdamW
	memory    *Memory
	explorer  policies.Explorer

	resets        int
	optimizeSteps int
	lastLoss      float64
}

var _ types.Policy = &Agent{}

// NewAgent creates an agent for states of size inputSize and numActions actions
func NewAgent(config *Config, inputSize, numActions int, logger log.Logger) (*Agent, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if inputSize <= 0 || numActions <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "input size %d and actions %d must be positive", inputSize, numActions)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	a := &Agent{
		config:     config,
		inputSize:  inputSize,
		numActions: numActions,
		logger:     log.With(logger, "component", "dqn"),
	}
	if err := a.init(config.Seed); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Agent) init(seed uint64) error {
	sizes := make([]int, 0, len(a.config.HiddenLayers)+2)
	sizes = append(sizes, a.inputSize)
	sizes = append(sizes, a.config.HiddenLayers...)
	sizes = append(sizes, a.numActions)

	policyNet, err := NewNetwork(sizes, seed)
	if err != nil {
		return err
	}
	a.policyNet = policyNet
	a.targetNet = policyNet.Clone()
	a.optimizer = NewAdamW(policyNet.Params(), &a.config.Optimizer)
	a.memory = NewMemory(a.config.MemoryCapacity, seed)
	a.explorer = a.config.newExplorer(seed)
	a.optimizeSteps = 0
	a.lastLoss = math.NaN()
	return nil
}

func vectorOf(s types.State) ([]float64, bool) {
	vs, ok := s.(types.VectorState)
	if !ok {
		return nil, false
	}
	return vs.Vector(), true
}

// QValues returns the estimated value of every action in the state
func (a *Agent) QValues(state []float64) []float64 {
	return a.policyNet.QValues(state)
}

func (a *Agent) ResetEpisode(_ *types.EpisodeContext) {}

func (a *Agent) PickAction(_ *types.StepContext, state types.State, actions []types.Action) (types.Action, bool) {
	vec, ok := vectorOf(state)
	if !ok || len(actions) != a.numActions {
		return nil, false
	}
	return actions[a.explorer.Pick(a.policyNet.QValues(vec))], true
}

func (a *Agent) UpdateStep(sCtx *types.StepContext, state types.State, action types.Action, result *types.StepResult) {
	vec, ok := vectorOf(state)
	if !ok {
		return
	}
	idx := types.ActionIndex(state.Actions(), action)
	if idx < 0 {
		return
	}
	transition := Transition{
		State:  vec,
		Action: idx,
		Reward: result.Reward,
		Done:   result.Done(),
	}
	// truncated episodes still bootstrap from the next state
	if !result.Terminated {
		next, ok := vectorOf(result.State)
		if !ok {
			return
		}
		transition.NextState = next
	}
	a.memory.Push(transition)

	if _, err := a.Optimize(); err != nil {
		level.Warn(a.logger).Log("msg", "optimization failed", "episode", sCtx.Episode, "step", sCtx.Step, "err", err)
	}
}

// Optimize runs one gradient step on a batch sampled from memory.
// It does nothing (and returns false) until the memory holds MinReplaySize transitions.
func (a *Agent) Optimize() (bool, error) {
	if a.memory.Len() < a.config.MinReplaySize {
		return false, nil
	}
	batch, err := a.memory.Sample(a.config.BatchSize)
	if err != nil {
		return false, err
	}
	n := len(batch)

	states := mat.NewDense(n, a.inputSize, nil)
	nonFinal := make([]int, 0, n)
	for i, t := range batch {
		states.SetRow(i, t.State)
		if t.NextState != nil {
			nonFinal = append(nonFinal, i)
		}
	}

	targets := make([]float64, n)
	for i, t := range batch {
		targets[i] = t.Reward
	}
	if len(nonFinal) > 0 {
		nextStates := mat.NewDense(len(nonFinal), a.inputSize, nil)
		for j, i := range nonFinal {
			nextStates.SetRow(j, batch[i].NextState)
		}
		nextValues := a.targetNet.Forward(nextStates)
		for j, i := range nonFinal {
			targets[i] += a.config.Gamma * floats.Max(nextValues.RawRowView(j))
		}
	}

	q, cache := a.policyNet.forward(states)
	pred := make([]float64, n)
	for i, t := range batch {
		pred[i] = q.At(i, t.Action)
	}
	loss, grad := HuberLoss(pred, targets)

	dOut := mat.NewDense(n, a.numActions, nil)
	for i, t := range batch {
		dOut.Set(i, t.Action, grad[i])
	}
	grads := a.policyNet.backward(cache, dOut)
	ClipGradValue(grads, a.config.GradClip)
	a.optimizer.Step(a.policyNet.Params(), grads)
	a.explorer.Decay()

	a.optimizeSteps += 1
	if a.optimizeSteps%a.config.TargetUpdateInterval == 0 {
		a.targetNet.SoftUpdate(a.policyNet, a.config.Tau)
	}
	a.lastLoss = loss
	return true, nil
}

func (a *Agent) UpdateEpisode(eCtx *types.EpisodeContext) {
	eCtx.SetStat(a.explorer.Name(), a.explorer.Value())
	eCtx.SetStat(StatMemory, float64(a.memory.Len()))
	eCtx.SetStat(StatOptimizeSteps, float64(a.optimizeSteps))
	if !math.IsNaN(a.lastLoss) {
		eCtx.SetStat(StatLoss, a.lastLoss)
	}

	interval := a.config.LogInterval
	if interval == 0 || (eCtx.Episode+1)%interval != 0 {
		return
	}
	if a.memory.Len() < a.config.MinReplaySize {
		level.Info(a.logger).Log("episode", eCtx.Episode+1, "memory", a.memory.Len())
		return
	}
	level.Info(a.logger).Log("episode", eCtx.Episode+1, a.explorer.Name(), a.explorer.Value(),
		"return", eCtx.Trace.Return(), "loss", a.lastLoss)
}

// Reset reinitialises the networks, optimizer, memory and explorer
// from a seed shifted by the number of resets
func (a *Agent) Reset() {
	a.resets += 1
	if err := a.init(a.config.Seed + uint64(a.resets)); err != nil {
		level.Error(a.logger).Log("msg", "cannot reset agent", "err", err)
	}
}

func (a *Agent) Memory() *Memory {
	return a.memory
}

func (a *Agent) Explorer() policies.Explorer {
	return a.explorer
}

func (a *Agent) OptimizeSteps() int {
	return a.optimizeSteps
}

// LastLoss is the loss of the last optimization step, NaN before the first one
func (a *Agent) LastLoss() float64 {
	return a.lastLoss
}
