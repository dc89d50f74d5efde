package types

// Policy decides the actions of the agent and learns from the transitions
type Policy interface {
	// ResetEpisode is called before the first step of every episode
	ResetEpisode(*EpisodeContext)
	// PickAction returns the next action, false if no action can be taken
	PickAction(*StepContext, State, []Action) (Action, bool)
	// UpdateStep is called with the outcome of every step
	UpdateStep(*StepContext, State, Action, *StepResult)
	// UpdateEpisode is called once the episode ended without errors
	UpdateEpisode(*EpisodeContext)
	// Reset clears everything learned, used between runs
	Reset()
}
