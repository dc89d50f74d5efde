package monitoring

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeu5/cartpole-dqn/types"
)

// ExperimentSnapshot is the latest known state of an experiment
type ExperimentSnapshot struct {
	Experiment  string         `json:"experiment"`
	Run         int            `json:"run"`
	Episodes    int            `json:"episodes"`
	MeanReturn  float64        `json:"mean_return"`
	BestReturn  float64        `json:"best_return"`
	LastEpisode EpisodeSummary `json:"last_episode"`

	recent []float64
}

func (s *ExperimentSnapshot) copy() *ExperimentSnapshot {
	out := *s
	out.recent = nil
	return &out
}

// Recorder is an analyzer that exports every episode as prometheus metrics
// and keeps a snapshot per experiment for the HTTP monitor
type Recorder struct {
	window int

	registry   *prometheus.Registry
	episodes   *prometheus.CounterVec
	steps      *prometheus.CounterVec
	lastReturn *prometheus.GaugeVec
	meanReturn *prometheus.GaugeVec
	stats      *prometheus.GaugeVec

	lock      *sync.Mutex
	snapshots map[string]*ExperimentSnapshot
}

var _ types.Analyzer = &Recorder{}

// NewRecorder creates the recorder, mean returns are computed over the last `window` episodes
func NewRecorder(window int) *Recorder {
	if window <= 0 {
		window = types.SmoothingWindow
	}
	r := &Recorder{
		window:   window,
		registry: prometheus.NewRegistry(),
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartpole",
			Name:      "episodes_total",
			Help:      "Number of episodes run, by outcome",
		}, []string{"experiment", "outcome"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartpole",
			Name:      "steps_total",
			Help:      "Number of environment steps taken",
		}, []string{"experiment"}),
		lastReturn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cartpole",
			Name:      "episode_return",
			Help:      "Return of the last episode",
		}, []string{"experiment"}),
		meanReturn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cartpole",
			Name:      "episode_return_mean",
			Help:      "Mean return over the last episodes of the current run",
		}, []string{"experiment"}),
		stats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cartpole",
			Name:      "policy_stat",
			Help:      "Statistics reported by the policy, e.g. epsilon or loss",
		}, []string{"experiment", "stat"}),
		lock:      new(sync.Mutex),
		snapshots: make(map[string]*ExperimentSnapshot),
	}
	r.registry.MustRegister(r.episodes, r.steps, r.lastReturn, r.meanReturn, r.stats)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Analyze(eCtx *types.EpisodeContext) {
	summary := Summarize(eCtx)
	name := summary.Experiment

	r.episodes.WithLabelValues(name, summary.Outcome()).Inc()
	r.steps.WithLabelValues(name).Add(float64(summary.Steps))
	r.lastReturn.WithLabelValues(name).Set(summary.Return)
	for k, v := range summary.Stats {
		r.stats.WithLabelValues(name, k).Set(v)
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	snap, ok := r.snapshots[name]
	if !ok || snap.Run != summary.Run {
		snap = &ExperimentSnapshot{
			Experiment: name,
			Run:        summary.Run,
			recent:     make([]float64, 0, r.window),
		}
		r.snapshots[name] = snap
	}
	snap.Episodes += 1
	snap.LastEpisode = summary
	if snap.Episodes == 1 || summary.Return > snap.BestReturn {
		snap.BestReturn = summary.Return
	}
	snap.recent = append(snap.recent, summary.Return)
	if len(snap.recent) > r.window {
		snap.recent = snap.recent[1:]
	}
	sum := 0.0
	for _, v := range snap.recent {
		sum += v
	}
	snap.MeanReturn = sum / float64(len(snap.recent))
	r.meanReturn.WithLabelValues(name).Set(snap.MeanReturn)
}

// Snapshot returns the latest state of the experiment
func (r *Recorder) Snapshot(experiment string) (*ExperimentSnapshot, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	snap, ok := r.snapshots[experiment]
	if !ok {
		return nil, false
	}
	return snap.copy(), true
}

// Snapshots returns the state of every experiment sorted by name
func (r *Recorder) Snapshots() []*ExperimentSnapshot {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]*ExperimentSnapshot, 0, len(r.snapshots))
	for _, s := range r.snapshots {
		out = append(out, s.copy())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Experiment < out[j].Experiment
	})
	return out
}

func (r *Recorder) DataSet() types.DataSet {
	return r.Snapshots()
}

// Reset is a no-op, snapshots start over when a new run is observed
func (r *Recorder) Reset() {}
