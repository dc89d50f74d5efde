package types

var (
	InitState string = "init"
)

// StatePredicate is a boolean property of a single state
type StatePredicate func(State) bool

func (p StatePredicate) And(other StatePredicate) StatePredicate {
	return func(s State) bool {
		return p(s) && other(s)
	}
}

func (p StatePredicate) Or(other StatePredicate) StatePredicate {
	return func(s State) bool {
		return p(s) || other(s)
	}
}

func (p StatePredicate) Not() StatePredicate {
	return func(s State) bool {
		return !p(s)
	}
}

// OnNext lifts the predicate to a condition on the state reached by a transition
func (p StatePredicate) OnNext() MonitorCondition {
	return func(_ State, _ Action, ns State) bool {
		return p(ns)
	}
}

// MonitorState is a state in the state machine (Monitor)
// Use MonitorBuilder to create monitor states (do not instantiate directly)
type MonitorState struct {
	Success     bool
	Name        string
	transitions []monitorTransition
}

type monitorTransition struct {
	next string
	cond MonitorCondition
}

// Transitions of a Monitor are labelled with a MonitorCondition
// MonitorCondition is a predicate on the transition of RL (state, action, nextState)
type MonitorCondition func(State, Action, State) bool

// Not operator on the MonitorCondition
func (m MonitorCondition) Not() MonitorCondition {
	return func(s State, a Action, ns State) bool {
		return !m(s, a, ns)
	}
}

// Or operator between MonitorCondition's
func (m MonitorCondition) Or(other MonitorCondition) MonitorCondition {
	return func(s State, a Action, ns State) bool {
		return m(s, a, ns) || other(s, a, ns)
	}
}

// And operator between MonitorCondition's
func (m MonitorCondition) And(other MonitorCondition) MonitorCondition {
	return func(s State, a Action, ns State) bool {
		return m(s, a, ns) && other(s, a, ns)
	}
}

// Monitor is a generic state machine over traces.
// Transitions out of a state are tried in the order they were added.
type Monitor struct {
	states map[string]*MonitorState
}

// Check simulates the monitor on the trace and returns
// the shortest prefix that reaches a success state
func (m *Monitor) Check(t *Trace) (*Trace, bool) {
	curState := m.states[InitState]
	if curState.Success {
		prefix, _ := t.GetPrefix(0)
		return prefix, true
	}
	for i := 0; i < t.Len(); i++ {
		s, a, ns, _ := t.Get(i)
		for _, tr := range curState.transitions {
			if tr.cond(s, a, ns) {
				curState = m.states[tr.next]
				break
			}
		}
		if curState.Success {
			return t.GetPrefix(i + 1)
		}
	}
	return nil, false
}

// Creates a new Monitor
// with a default initial state
func NewMonitor() *Monitor {
	m := &Monitor{
		states: make(map[string]*MonitorState),
	}
	m.states[InitState] = &MonitorState{
		Name:        InitState,
		Success:     false,
		transitions: make([]monitorTransition, 0),
	}
	return m
}

// Returns a MonitorBuilder to construct the remainder of the state machine
// Initialized at the initial state
func (m *Monitor) Build() *MonitorBuilder {
	return &MonitorBuilder{
		monitor:  m,
		curState: m.states[InitState],
	}
}

// Encodes a Builder pattern to create the state machine
// The builder is indexed at a particular state of the state machine (Monitor)
type MonitorBuilder struct {
	monitor  *Monitor
	curState *MonitorState
}

// On defines a transition from the current state to `next` guarded by cond and
// returns a builder indexed at the next state, so chains read s1.On().On().On()...
// If `next` is not part of the state machine it is created, otherwise the existing state is indexed
func (m *MonitorBuilder) On(cond MonitorCondition, next string) *MonitorBuilder {
	nextState, ok := m.monitor.states[next]
	if !ok {
		nextState = &MonitorState{
			Name:        next,
			Success:     false,
			transitions: make([]monitorTransition, 0),
		}
		m.monitor.states[next] = nextState
	}
	m.curState.transitions = append(m.curState.transitions, monitorTransition{next: next, cond: cond})
	return &MonitorBuilder{
		monitor:  m.monitor,
		curState: nextState,
	}
}

// Mark the corresponding state indexed at this builder instance as a success state
func (m *MonitorBuilder) MarkSuccess() *MonitorBuilder {
	m.curState.Success = true
	return m
}
