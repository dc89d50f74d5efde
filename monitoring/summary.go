package monitoring

import (
	"github.com/zeu5/cartpole-dqn/types"
)

// EpisodeSummary is the outcome of an episode as exported by the monitor and the sinks
type EpisodeSummary struct {
	Experiment string             `json:"experiment"`
	Run        int                `json:"run"`
	Episode    int                `json:"episode"`
	Steps      int                `json:"steps"`
	Return     float64            `json:"return"`
	Terminated bool               `json:"terminated"`
	Truncated  bool               `json:"truncated"`
	TimedOut   bool               `json:"timed_out,omitempty"`
	Error      string             `json:"error,omitempty"`
	DurationMs float64            `json:"duration_ms"`
	Stats      map[string]float64 `json:"stats,omitempty"`
}

func Summarize(eCtx *types.EpisodeContext) EpisodeSummary {
	s := EpisodeSummary{
		Experiment: eCtx.Experiment,
		Run:        eCtx.Run,
		Episode:    eCtx.Episode,
		Steps:      eCtx.Trace.Len(),
		Return:     eCtx.Trace.Return(),
		Terminated: eCtx.Terminated,
		Truncated:  eCtx.Truncated || eCtx.HorizonEnd,
		TimedOut:   eCtx.TimedOut,
		DurationMs: float64(eCtx.RunDuration.Microseconds()) / 1000,
		Stats:      eCtx.Stats(),
	}
	if eCtx.Err != nil {
		s.Error = eCtx.Err.Error()
	}
	return s
}

// Outcome is the label used to count episodes
func (s EpisodeSummary) Outcome() string {
	switch {
	case s.Error != "":
		return "error"
	case s.TimedOut:
		return "timeout"
	case s.Terminated:
		return "terminated"
	case s.Truncated:
		return "truncated"
	}
	return "stopped"
}
