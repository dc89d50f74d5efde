package types

// Environment that the agent interacts with.
// Reset is called at the start of each episode.
type Environment interface {
	// Reset the environment and return the initial state
	Reset(*EpisodeContext) (State, error)
	// Step applies the action and returns the outcome of the transition
	Step(Action, *StepContext) (*StepResult, error)
}

// State of the system that RL policies observe
type State interface {
	// Indexed by the Hash
	// Should be deterministic
	Hash() string
	// Actions possible from the state, in a fixed order.
	// Value based policies use the position of an action as its index.
	Actions() []Action
}

// VectorState is a state that can be fed to a function approximator
type VectorState interface {
	State
	Vector() []float64
}

// And Action that RL policy can take
type Action interface {
	// Index of the action
	// Should be deterministic
	Hash() string
}

// StepResult is the outcome of a single environment step
type StepResult struct {
	State  State
	Reward float64
	// Terminated is set when the episode reached a terminal state
	Terminated bool
	// Truncated is set when the episode was cut short by a time limit
	Truncated bool
}

// Done returns true if the episode cannot continue
func (s *StepResult) Done() bool {
	return s.Terminated || s.Truncated
}

// ActionIndex returns the position of the action among the available actions
// or -1 if it is not present.
func ActionIndex(actions []Action, action Action) int {
	hash := action.Hash()
	for i, a := range actions {
		if a.Hash() == hash {
			return i
		}
	}
	return -1
}
