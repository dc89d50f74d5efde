package types

import (
	"context"
	"sync"
	"time"
)

// EpisodeContext wraps static and dynamic information of an episode.
// Static: which run/episode/experiment it belongs to.
// Dynamic: the trace, the outcome and the statistics reported by the policy.
type EpisodeContext struct {
	// Context used when running to stop if required
	Context context.Context
	Cancel  context.CancelFunc

	Experiment    string
	Run           int
	Episode       int
	Horizon       int
	StartTimeStep int

	// Trace including the steps taken in this episode
	Trace     *Trace
	Timesteps int

	// outcome of the episode
	Err         error
	TimedOut    bool
	Terminated  bool // reached a terminal state of the environment
	Truncated   bool // cut by the environment time limit
	HorizonEnd  bool // cut by the experiment horizon
	RunDuration time.Duration

	statsLock *sync.Mutex
	stats     map[string]float64
}

// NewEpisodeContext creates a new episode context, with a timeout if one is specified
func NewEpisodeContext(ctx context.Context, experiment string, run, episode, startTimeStep, horizon int, timeout time.Duration) *EpisodeContext {
	var eCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		eCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		eCtx, cancel = context.WithCancel(ctx)
	}

	return &EpisodeContext{
		Context: eCtx,
		Cancel:  cancel,

		Experiment:    experiment,
		Run:           run,
		Episode:       episode,
		Horizon:       horizon,
		StartTimeStep: startTimeStep,

		Trace: NewTrace(),

		statsLock: new(sync.Mutex),
		stats:     make(map[string]float64),
	}
}

func (e *EpisodeContext) SetError(err error) {
	e.Err = err
}

func (e *EpisodeContext) SetTimedOut() {
	e.TimedOut = true
}

// Valid returns true if the episode completed without errors or timeouts
func (e *EpisodeContext) Valid() bool {
	return e.Err == nil && !e.TimedOut
}

// SetStat records a statistic about the episode, e.g. the current epsilon
func (e *EpisodeContext) SetStat(key string, value float64) {
	e.statsLock.Lock()
	defer e.statsLock.Unlock()
	e.stats[key] = value
}

// Stat returns the statistic recorded under key
func (e *EpisodeContext) Stat(key string) (float64, bool) {
	e.statsLock.Lock()
	defer e.statsLock.Unlock()
	v, ok := e.stats[key]
	return v, ok
}

// Stats returns a copy of all the recorded statistics
func (e *EpisodeContext) Stats() map[string]float64 {
	e.statsLock.Lock()
	defer e.statsLock.Unlock()
	out := make(map[string]float64, len(e.stats))
	for k, v := range e.stats {
		out[k] = v
	}
	return out
}

// StepContext is the episode context indexed at a particular step
type StepContext struct {
	Step int
	*EpisodeContext
}

func NewStepContext(eCtx *EpisodeContext, step int) *StepContext {
	return &StepContext{
		Step:           step,
		EpisodeContext: eCtx,
	}
}
