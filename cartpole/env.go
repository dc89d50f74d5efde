package cartpole

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/zeu5/cartpole-dqn/types"
	"golang.org/x/exp/rand"
)

const (
	gravity        = 9.8
	massCart       = 1.0
	massPole       = 0.1
	totalMass      = massCart + massPole
	length         = 0.5 // half the pole length
	poleMassLength = massPole * length
	forceMag       = 10.0
	tau            = 0.02 // seconds between state updates

	XThreshold     = 2.4
	ThetaThreshold = 12 * 2 * math.Pi / 360

	// DefaultMaxSteps is the time limit of an episode
	DefaultMaxSteps = 500
	// ObservationSize is the length of State.Vector
	ObservationSize = 4
)

var (
	ErrEpisodeDone   = errors.New("episode is done, reset the environment")
	ErrUnknownAction = errors.New("unknown action")
)

// Push is the force applied to the cart
type Push int

const (
	PushLeft  Push = 0
	PushRight Push = 1
)

func (p Push) Hash() string {
	if p == PushLeft {
		return "left"
	}
	return "right"
}

var actions = []types.Action{PushLeft, PushRight}

// State of the cart and the pole
type State struct {
	X        float64 `json:"x"`
	XDot     float64 `json:"x_dot"`
	Theta    float64 `json:"theta"`
	ThetaDot float64 `json:"theta_dot"`
	// Steps taken in the episode to reach this state
	Steps int `json:"steps"`
}

func (s *State) Hash() string {
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", s.X, s.XDot, s.Theta, s.ThetaDot)
}

func (s *State) Actions() []types.Action {
	out := make([]types.Action, len(actions))
	copy(out, actions)
	return out
}

func (s *State) Vector() []float64 {
	return []float64{s.X, s.XDot, s.Theta, s.ThetaDot}
}

// Failed returns true if the cart left the track or the pole fell past the threshold
func (s *State) Failed() bool {
	return s.X < -XThreshold || s.X > XThreshold || s.Theta < -ThetaThreshold || s.Theta > ThetaThreshold
}

var _ types.VectorState = &State{}

type EnvConfig struct {
	MaxSteps int
	Seed     uint64
}

// Env simulates the cart-pole system with explicit Euler integration.
// Every step, including the one that fails, is rewarded with 1.
type Env struct {
	config *EnvConfig
	rand   *rand.Rand
	state  *State
	done   bool
}

var _ types.Environment = &Env{}

func NewEnv(config *EnvConfig) *Env {
	if config.MaxSteps <= 0 {
		config.MaxSteps = DefaultMaxSteps
	}
	return &Env{
		config: config,
		rand:   rand.New(rand.NewSource(config.Seed)),
		done:   true,
	}
}

// Reset draws every state variable uniformly in [-0.05, 0.05]
func (e *Env) Reset(_ *types.EpisodeContext) (types.State, error) {
	e.state = &State{
		X:        e.uniform(-0.05, 0.05),
		XDot:     e.uniform(-0.05, 0.05),
		Theta:    e.uniform(-0.05, 0.05),
		ThetaDot: e.uniform(-0.05, 0.05),
	}
	e.done = false
	return e.state, nil
}

func (e *Env) uniform(low, high float64) float64 {
	return low + (high-low)*e.rand.Float64()
}

// Step applies the push and advances the simulation by one time step
func (e *Env) Step(a types.Action, _ *types.StepContext) (*types.StepResult, error) {
	if e.done || e.state == nil {
		return nil, ErrEpisodeDone
	}
	push, ok := a.(Push)
	if !ok || (push != PushLeft && push != PushRight) {
		return nil, errors.Wrapf(ErrUnknownAction, "%v", a)
	}
	next := Simulate(e.state, push)
	e.state = next

	terminated := next.Failed()
	truncated := !terminated && next.Steps >= e.config.MaxSteps
	e.done = terminated || truncated

	return &types.StepResult{
		State:      next,
		Reward:     1,
		Terminated: terminated,
		Truncated:  truncated,
	}, nil
}

// Simulate returns the state reached from s after applying the push for one time step
func Simulate(s *State, push Push) *State {
	force := forceMag
	if push == PushLeft {
		force = -forceMag
	}

	cosTheta := math.Cos(s.Theta)
	sinTheta := math.Sin(s.Theta)

	temp := (force + poleMassLength*s.ThetaDot*s.ThetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) / (length * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass

	return &State{
		X:        s.X + tau*s.XDot,
		XDot:     s.XDot + tau*xAcc,
		Theta:    s.Theta + tau*s.ThetaDot,
		ThetaDot: s.ThetaDot + tau*thetaAcc,
		Steps:    s.Steps + 1,
	}
}
