package benchmarks

import (
	"bytes"
	"context"
	"os"
	"os/signal"
	"path"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zeu5/cartpole-dqn/cartpole"
	"github.com/zeu5/cartpole-dqn/dqn"
	"github.com/zeu5/cartpole-dqn/monitoring"
	"github.com/zeu5/cartpole-dqn/policies"
	"github.com/zeu5/cartpole-dqn/types"
	"github.com/zeu5/cartpole-dqn/util"
	"golang.org/x/sync/errgroup"
)

// trainOptions are the flags shared by the train and random commands
type trainOptions struct {
	dqn          bool
	baseline     bool
	monitorAddr  string
	redisAddr    string
	recordTraces bool
	liveOutput   bool
	timeout      time.Duration
}

func (o *trainOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.monitorAddr, "monitor-addr", "", "Serve the training statistics and metrics on this address")
	cmd.Flags().StringVar(&o.redisAddr, "redis-addr", "", "Push a summary of every episode to this Redis server")
	cmd.Flags().BoolVar(&o.recordTraces, "record-traces", false, "Record the traces of every episode")
	cmd.Flags().BoolVar(&o.liveOutput, "live", false, "Refresh the progress line in place")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "Timeout of each episode, 0 disables it")
}

func TrainCommand() *cobra.Command {
	o := &trainOptions{dqn: true}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a DQN agent on the cart-pole task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraining(o)
		},
	}
	o.addFlags(cmd)
	cmd.Flags().BoolVar(&o.baseline, "baseline", false, "Compare with a uniformly random policy")
	return cmd
}

// runTraining builds the comparison and runs it until done or interrupted,
// serving the statistics in the meantime if requested
func runTraining(o *trainOptions) error {
	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	config, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comparison, err := types.NewComparison(&types.ComparisonConfig{
		Runs:         runs,
		Episodes:     episodes,
		Horizon:      horizon,
		RecordPath:   saveFile,
		Timeout:      o.timeout,
		RecordTraces: o.recordTraces,
		LiveOutput:   o.liveOutput,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	if err := saveConfig(config); err != nil {
		return err
	}

	if o.dqn {
		agent, err := dqn.NewAgent(config, cartpole.ObservationSize, 2, logger)
		if err != nil {
			return err
		}
		comparison.AddExperiment(types.NewExperiment("dqn", agent, newEnv(config.Seed)))
	}
	if o.baseline {
		comparison.AddExperiment(types.NewExperiment("random", policies.NewRandomPolicy(config.Seed), newEnv(config.Seed)))
	}

	comparison.AddAnalysis("returns", types.NewReturnAnalyzer(), types.Comparators(
		types.ReturnPlotter(saveFile, logger),
		types.ReturnChart(saveFile, logger),
		types.SummaryComparator(os.Stdout),
	))
	balanced := cartpole.DefaultMaxSteps
	if horizon < balanced {
		balanced = horizon
	}
	addProperty(comparison, "balanced", "balanced for "+strconv.Itoa(balanced)+" steps", cartpole.BalancedMonitor(balanced), logger)
	addProperty(comparison, "recovered", "recovered to the center", cartpole.CenteredMonitor(recoverDistance), logger)

	if o.redisAddr != "" {
		sink := monitoring.NewRedisSink(&monitoring.RedisConfig{Addr: o.redisAddr}, logger)
		defer sink.Close()
		if err := sink.Ping(ctx); err != nil {
			return err
		}
		comparison.AddAnalysis("redis", sink, types.NoopComparator())
	}

	stopProfiling, err := startProfiling(logger)
	if err != nil {
		return err
	}
	defer stopProfiling()

	g, gCtx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gCtx)
	defer cancel()

	if o.monitorAddr != "" {
		recorder := monitoring.NewRecorder(types.SmoothingWindow)
		comparison.AddAnalysis("monitor", recorder, types.NoopComparator())
		server := monitoring.NewServer(o.monitorAddr, recorder, logger)
		g.Go(func() error {
			return server.Start(runCtx)
		})
	}
	g.Go(func() error {
		// the server stops once training is over
		defer cancel()
		return comparison.Run(runCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		level.Info(logger).Log("msg", "interrupted", "comparison", comparison.ID)
		return nil
	}
	return err
}

// the cart counts as drifted beyond this distance from the center
const recoverDistance = 1.0

// addProperty counts the episodes satisfying the monitor and saves the first witness trace
func addProperty(comparison *types.Comparison, name, description string, monitor *types.Monitor, logger log.Logger) {
	comparison.AddAnalysis(name, types.NewPropertyAnalyzer(description, monitor), types.Comparators(
		types.PropertyComparator(description, os.Stdout),
		witnessWriter(name, logger),
	))
}

// witnessWriter saves the first trace satisfying the property of every experiment
func witnessWriter(name string, logger log.Logger) types.Comparator {
	return func(run, _ int, names []string, ds []types.DataSet) {
		for i, exp := range names {
			data, ok := ds[i].(*types.PropertyData)
			if !ok || data == nil || data.Witness == nil {
				continue
			}
			file := path.Join(saveFile, strconv.Itoa(run)+"_"+exp+"_"+name+".txt")
			header := "episode " + strconv.Itoa(data.WitnessEpisode)
			if err := util.WriteToFile(file, header, strings.TrimRight(cartpole.FormatTrace(data.Witness), "\n")); err != nil {
				level.Warn(logger).Log("msg", "cannot save witness", "property", name, "err", err)
			}
		}
	}
}

func newEnv(seed uint64) *cartpole.Env {
	return cartpole.NewEnv(&cartpole.EnvConfig{
		MaxSteps: cartpole.DefaultMaxSteps,
		Seed:     seed,
	})
}

// saveConfig writes the hyper-parameters next to the results
func saveConfig(config *dqn.Config) error {
	buf := new(bytes.Buffer)
	if err := config.WriteConfig(buf); err != nil {
		return err
	}
	return util.WriteToFile(path.Join(saveFile, "dqn.yaml"), strings.TrimRight(buf.String(), "\n"))
}
