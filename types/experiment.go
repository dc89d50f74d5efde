package types

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zeu5/cartpole-dqn/util"
)

type experimentRunConfig struct {
	// execution configuration
	CurrentRun int
	Episodes   int
	Horizon    int
	Analyzers  []Analyzer
	Timeout    time.Duration
	Context    context.Context

	// thresholds to abort the experiment
	ConsecutiveTimeoutsAbort int
	ConsecutiveErrorsAbort   int

	RecordTraces   bool
	ReportSavePath string

	Logger log.Logger
	// where the progress line is written, printed to stdout if nil
	Output *ParallelOutput

	//misc
	LongestExpNameLen int
}

// Experiment encapsulates the different parameters to configure an agent and analyze the traces
type Experiment struct {
	Name        string
	policy      Policy
	environment Environment
}

// NewExperiment creates a new experiment instance
func NewExperiment(name string, policy Policy, environment Environment) *Experiment {
	return &Experiment{
		Name:        name,
		policy:      policy,
		environment: environment,
	}
}

func (e *Experiment) recordTrace(rConfig *experimentRunConfig, trace *Trace) error {
	tracesFile := path.Join(rConfig.ReportSavePath, "traces", e.Name+"_"+strconv.Itoa(rConfig.CurrentRun)+".jsonl")
	bs, err := json.Marshal(trace)
	if err != nil {
		return errors.Wrap(err, "marshal trace")
	}
	return util.AppendToFile(tracesFile, string(bs))
}

// experimentStats are the counters displayed while running
type experimentStats struct {
	totalEpisodes      int
	totalValidEpisodes int
	totalTimesteps     int
	totalTimeout       int
	totalWithError     int
	totalTerminated    int
	totalTruncated     int
	lastReturn         float64
}

func (e *Experiment) status(rConfig *experimentRunConfig, s *experimentStats) string {
	EPPadding := len(strconv.Itoa(rConfig.Episodes))
	return fmt.Sprintf("Exp:%*s, Eps:%*d/%d, Valid:%*d, TOut:%*d, Err:%*d || TSteps:%d, Term:%*d, Trunc:%*d, Return:%6.1f",
		rConfig.LongestExpNameLen, e.Name, EPPadding, s.totalEpisodes, rConfig.Episodes, EPPadding, s.totalValidEpisodes,
		EPPadding, s.totalTimeout, EPPadding, s.totalWithError, s.totalTimesteps,
		EPPadding, s.totalTerminated, EPPadding, s.totalTruncated, s.lastReturn)
}

func (e *Experiment) display(rConfig *experimentRunConfig, s *experimentStats) {
	status := e.status(rConfig, s)
	if rConfig.Output != nil {
		rConfig.Output.TrySet(status)
		return
	}
	fmt.Printf("\r%s", status)
}

// Run the experiment for the specified number of episodes
// Every episode (even failed ones) is handed to the analyzers
func (e *Experiment) Run(rConfig *experimentRunConfig) {
	select {
	case <-rConfig.Context.Done():
		return
	default:
	}
	logger := rConfig.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = log.With(logger, "experiment", e.Name, "run", rConfig.CurrentRun)

	if rConfig.RecordTraces {
		tracesFolder := path.Join(rConfig.ReportSavePath, "traces")
		if err := util.EnsureDir(tracesFolder); err != nil {
			level.Warn(logger).Log("msg", "cannot create traces folder", "err", err)
		}
	}

	consecutiveTimeouts := 0
	consecutiveErrors := 0
	stats := &experimentStats{}

	agent := NewAgent(&AgentConfig{
		Horizon:     rConfig.Horizon,
		Policy:      e.policy,
		Environment: e.environment,
	})
	e.display(rConfig, stats)

	for episode := 0; episode < rConfig.Episodes; episode++ {
		select {
		case <-rConfig.Context.Done():
			return
		default:
		}

		eCtx := NewEpisodeContext(rConfig.Context, e.Name, rConfig.CurrentRun, episode, stats.totalTimesteps, rConfig.Horizon, rConfig.Timeout)
		e.runEpisode(eCtx, agent)

		stats.totalEpisodes += 1
		stats.totalTimesteps += eCtx.Timesteps

		// episode timedout
		if eCtx.TimedOut {
			stats.totalTimeout += 1
			consecutiveTimeouts += 1
		} else {
			consecutiveTimeouts = 0
		}

		// episode with error
		if eCtx.Err != nil {
			stats.totalWithError += 1
			consecutiveErrors += 1
			level.Debug(logger).Log("msg", "episode failed", "episode", episode, "err", eCtx.Err)
		} else {
			consecutiveErrors = 0
		}

		if eCtx.Valid() {
			stats.totalValidEpisodes += 1
			stats.lastReturn = eCtx.Trace.Return()
			if eCtx.Terminated {
				stats.totalTerminated += 1
			} else if eCtx.Truncated || eCtx.HorizonEnd {
				stats.totalTruncated += 1
			}
		}

		if rConfig.RecordTraces {
			if err := e.recordTrace(rConfig, eCtx.Trace); err != nil {
				level.Warn(logger).Log("msg", "cannot record trace", "err", err)
			}
		}

		// analyze the trace, even if the episode timed out or ended with an error
		for _, a := range rConfig.Analyzers {
			a.Analyze(eCtx)
		}

		// check to eventually abort the experiment
		if consecutiveTimeouts >= rConfig.ConsecutiveTimeoutsAbort {
			level.Error(logger).Log("msg", "aborting experiment", "consecutive_timeouts", consecutiveTimeouts)
			break
		}

		if consecutiveErrors >= rConfig.ConsecutiveErrorsAbort {
			level.Error(logger).Log("msg", "aborting experiment", "consecutive_errors", consecutiveErrors, "err", eCtx.Err)
			break
		}

		e.display(rConfig, stats)
	}

	if rConfig.Output == nil {
		fmt.Println("")
	}
	level.Info(logger).Log("msg", "experiment finished", "episodes", stats.totalEpisodes, "valid", stats.totalValidEpisodes,
		"timesteps", stats.totalTimesteps, "errors", stats.totalWithError, "timeouts", stats.totalTimeout)
}

func (e *Experiment) runEpisode(eCtx *EpisodeContext, agent *Agent) {
	defer eCtx.Cancel()

	select {
	case <-eCtx.Context.Done():
		return
	default:
	}

	done := make(chan struct{})

	go func(eCtx *EpisodeContext, agent *Agent) {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				eCtx.SetError(fmt.Errorf("%v", r))
			}
		}()
		start := time.Now()
		agent.RunEpisode(eCtx)
		eCtx.RunDuration = time.Since(start)
	}(eCtx, agent)

	select {
	case <-eCtx.Context.Done():
		// Timeout occurred
		deadline, ok := eCtx.Context.Deadline()
		if ok && time.Now().After(deadline) {
			eCtx.SetTimedOut()
		}
		// the episode observes the context, wait for it to return before reusing the agent
		<-done
	case <-done:
	}
}

// Reset cleans the information learned by the policy
func (e *Experiment) Reset() {
	e.policy.Reset()
}

// Generic Dataset that contains information after processing the traces
type DataSet interface{}

// Analyzer compresses the information in the episodes to a DataSet
type Analyzer interface {
	// Analyze is called at the end of every episode
	Analyze(*EpisodeContext)
	// Resulting dataset
	DataSet() DataSet
	// Reset the analyzer
	Reset()
}

// Comparator differentiates between different datasets with associated names
// run, total episodes, experiment names, datasets
type Comparator func(int, int, []string, []DataSet)

func NoopComparator() Comparator {
	return func(i, _ int, s []string, ds []DataSet) {}
}

// Comparators runs every comparator on the same datasets
func Comparators(comparators ...Comparator) Comparator {
	return func(run, episodes int, names []string, ds []DataSet) {
		for _, c := range comparators {
			c(run, episodes, names, ds)
		}
	}
}

// ErrRecordPathIsWorkingDir is returned instead of cleaning the working directory
var ErrRecordPathIsWorkingDir = errors.New("record path is the working directory")

// ComparisonConfig contains the configuration for the comparison
type ComparisonConfig struct {
	Runs     int // number of runs
	Episodes int // number of episodes
	Horizon  int // number of steps

	RecordPath string        // path to store the results
	Timeout    time.Duration // timeout for each episode

	// thresholds to abort the experiment
	ConsecutiveTimeoutsAbort int
	ConsecutiveErrorsAbort   int

	RecordTraces bool
	// LiveOutput refreshes the progress line with uilive instead of carriage returns
	LiveOutput bool

	Logger log.Logger
}

// Comparison contains the different experiments to compare
// The traces obtained from the experiments are analyzed
// The analyzed datasets are then compared
type Comparison struct {
	ID          string
	Experiments []*Experiment
	analyzers   map[string]Analyzer
	comparators map[string]Comparator
	cConfig     *ComparisonConfig
}

// NewComparison creates a comparison instance, cleaning the record path
func NewComparison(config *ComparisonConfig) (*Comparison, error) {
	if cwd, err := isWorkingDir(config.RecordPath); err != nil {
		return nil, err
	} else if cwd {
		return nil, errors.Wrapf(ErrRecordPathIsWorkingDir, "%q", config.RecordPath)
	}
	if _, err := os.Stat(config.RecordPath); err == nil {
		if err := RemoveContents(config.RecordPath); err != nil {
			return nil, errors.Wrapf(err, "cleaning %s", config.RecordPath)
		}
	}
	if err := util.EnsureDir(config.RecordPath); err != nil {
		return nil, err
	}

	if config.RecordTraces {
		if err := util.EnsureDir(path.Join(config.RecordPath, "traces")); err != nil {
			return nil, err
		}
	}
	if config.Logger == nil {
		config.Logger = log.NewNopLogger()
	}

	return &Comparison{
		ID:          uuid.NewString(),
		Experiments: make([]*Experiment, 0),
		analyzers:   make(map[string]Analyzer),
		comparators: make(map[string]Comparator),
		cConfig:     config,
	}, nil
}

// record the configuration of the comparison
func (c *Comparison) recordConfig() error {
	cfg := c.cConfig

	out := make(map[string]interface{})
	out["id"] = c.ID
	out["runs"] = cfg.Runs
	out["episodes"] = cfg.Episodes
	out["horizon"] = cfg.Horizon
	out["record_traces"] = cfg.RecordTraces
	if cfg.Timeout != 0 {
		out["timeout"] = cfg.Timeout.String()
	}

	experiments := make([]string, 0)
	for _, e := range c.Experiments {
		experiments = append(experiments, e.Name)
	}
	out["experiments"] = experiments

	analyzers := make([]string, 0)
	for name := range c.analyzers {
		analyzers = append(analyzers, name)
	}
	out["analyzers"] = analyzers

	bs, err := json.Marshal(out)
	if err != nil {
		return errors.Wrap(err, "marshal comparison config")
	}
	return util.WriteToFile(path.Join(cfg.RecordPath, "comparison_config.json"), string(bs))
}

// AddAnalysis adds an analyzer and comparator to the comparison
func (c *Comparison) AddAnalysis(name string, analyzer Analyzer, comparator Comparator) {
	c.analyzers[name] = analyzer
	c.comparators[name] = comparator
}

// Add experiments to compare
func (c *Comparison) AddExperiment(e *Experiment) {
	c.Experiments = append(c.Experiments, e)
}

// Run the comparison
func (c *Comparison) Run(ctx context.Context) error {
	if err := c.recordConfig(); err != nil {
		return err
	}

	longestNameLen := 0
	for _, e := range c.Experiments {
		if len(e.Name) > longestNameLen {
			longestNameLen = len(e.Name)
		}
	}

	var output *ParallelOutput
	if c.cConfig.LiveOutput {
		output = NewParallelOutput()
		outputs := []*ParallelOutput{output}
		printer := NewTerminalPrinter(ctx, &outputs, time.Second)
		printer.Start()
		defer printer.Stop()
	}

	for run := 0; run < c.cConfig.Runs; run++ { // number of runs
		level.Info(c.cConfig.Logger).Log("msg", "starting run", "run", run+1, "comparison", c.ID)
		datasets := make(map[string][]DataSet)

		for name := range c.analyzers {
			datasets[name] = make([]DataSet, len(c.Experiments))
		}

		names := make([]string, len(c.Experiments))
		for i, e := range c.Experiments {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			e.Run(c.prepareRunConfig(ctx, run, longestNameLen, output))
			for name, a := range c.analyzers {
				datasets[name][i] = a.DataSet()
				a.Reset()
			}
			names[i] = e.Name
			e.Reset()
		}
		for name, comp := range c.comparators {
			comp(run, c.cConfig.Episodes, names, datasets[name])
		}
	}
	return nil
}

// prepare the run configuration for the experiment
func (c *Comparison) prepareRunConfig(ctx context.Context, run int, longestExpNameLen int, output *ParallelOutput) *experimentRunConfig {
	rCfg := &experimentRunConfig{
		CurrentRun:     run,
		Episodes:       c.cConfig.Episodes,
		Horizon:        c.cConfig.Horizon,
		Analyzers:      make([]Analyzer, 0),
		RecordTraces:   c.cConfig.RecordTraces,
		ReportSavePath: c.cConfig.RecordPath,
		Timeout:        c.cConfig.Timeout,
		Context:        ctx,
		Logger:         c.cConfig.Logger,
		Output:         output,

		ConsecutiveErrorsAbort:   c.cConfig.ConsecutiveErrorsAbort,
		ConsecutiveTimeoutsAbort: c.cConfig.ConsecutiveTimeoutsAbort,

		LongestExpNameLen: longestExpNameLen,
	}

	if rCfg.ConsecutiveErrorsAbort == 0 {
		rCfg.ConsecutiveErrorsAbort = 10
	}
	if rCfg.ConsecutiveTimeoutsAbort == 0 {
		rCfg.ConsecutiveTimeoutsAbort = 10
	}

	for _, a := range c.analyzers {
		rCfg.Analyzers = append(rCfg.Analyzers, a)
	}
	return rCfg
}

// RemoveContents deletes everything inside dir, keeping dir itself
func RemoveContents(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	names, err := d.Readdirnames(-1)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := os.RemoveAll(path.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// isWorkingDir returns true if dir resolves to the current working directory
func isWorkingDir(dir string) (bool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, errors.Wrapf(err, "resolve %s", dir)
	}
	wd, err := os.Getwd()
	if err != nil {
		return false, errors.Wrap(err, "working directory")
	}
	return abs == filepath.Clean(wd), nil
}
