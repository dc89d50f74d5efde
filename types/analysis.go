package types

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/logrusorgru/aurora"
	"github.com/zeu5/cartpole-dqn/util"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// SmoothingWindow is the number of episodes averaged in the learning curves
const SmoothingWindow = 100

// ReturnData is the dataset of the ReturnAnalyzer
type ReturnData struct {
	Returns []float64 `json:"returns"`
	Lengths []int     `json:"lengths"`
}

// ReturnAnalyzer records the return and length of every episode
type ReturnAnalyzer struct {
	returns []float64
	lengths []int
}

func NewReturnAnalyzer() *ReturnAnalyzer {
	return &ReturnAnalyzer{
		returns: make([]float64, 0),
		lengths: make([]int, 0),
	}
}

func (r *ReturnAnalyzer) Analyze(eCtx *EpisodeContext) {
	r.returns = append(r.returns, eCtx.Trace.Return())
	r.lengths = append(r.lengths, eCtx.Trace.Len())
}

func (r *ReturnAnalyzer) DataSet() DataSet {
	out := &ReturnData{
		Returns: make([]float64, len(r.returns)),
		Lengths: make([]int, len(r.lengths)),
	}
	copy(out.Returns, r.returns)
	copy(out.Lengths, r.lengths)
	return out
}

func (r *ReturnAnalyzer) Reset() {
	r.returns = make([]float64, 0)
	r.lengths = make([]int, 0)
}

var _ Analyzer = &ReturnAnalyzer{}

// MovingAverage returns the mean of the last `window` values at every index.
// The first entries average over the values seen so far.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window < 1 {
		window = 1
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

func returnData(ds DataSet) (*ReturnData, bool) {
	data, ok := ds.(*ReturnData)
	return data, ok && data != nil
}

// ReturnPlotter saves a PNG with the smoothed return of each experiment
// together with the raw data as JSON
func ReturnPlotter(plotPath string, logger log.Logger) Comparator {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if err := util.EnsureDir(plotPath); err != nil {
		level.Warn(logger).Log("msg", "cannot create plot directory", "err", err)
	}
	return func(run, _ int, names []string, ds []DataSet) {
		p := plot.New()
		p.Title.Text = "Comparison"
		p.X.Label.Text = "Episode"
		p.Y.Label.Text = "Return (moving average " + strconv.Itoa(SmoothingWindow) + ")"

		raw := make(map[string]*ReturnData)
		for i := 0; i < len(names); i++ {
			data, ok := returnData(ds[i])
			if !ok {
				continue
			}
			raw[names[i]] = data
			smoothed := MovingAverage(data.Returns, SmoothingWindow)
			points := make(plotter.XYs, len(smoothed))
			for j, v := range smoothed {
				points[j] = plotter.XY{
					X: float64(j),
					Y: v,
				}
			}
			line, err := plotter.NewLine(points)
			if err != nil {
				continue
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
			p.Legend.Add(names[i], line)
		}

		if err := p.Save(8*vg.Inch, 8*vg.Inch, path.Join(plotPath, strconv.Itoa(run)+"_returns.png")); err != nil {
			level.Warn(logger).Log("msg", "cannot save plot", "run", run, "err", err)
		}

		bs, err := json.Marshal(raw)
		if err == nil {
			err = os.WriteFile(path.Join(plotPath, strconv.Itoa(run)+"_returns.json"), bs, 0644)
		}
		if err != nil {
			level.Warn(logger).Log("msg", "cannot save returns", "run", run, "err", err)
		}
	}
}

// ReturnChart renders an interactive HTML page with the raw and smoothed returns
func ReturnChart(chartPath string, logger log.Logger) Comparator {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if err := util.EnsureDir(chartPath); err != nil {
		level.Warn(logger).Log("msg", "cannot create chart directory", "err", err)
	}
	return func(run, episodes int, names []string, ds []DataSet) {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title:    "Episode returns",
				Subtitle: "run " + strconv.Itoa(run),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		)

		steps := make([]string, 0, episodes)
		for i := 0; i < episodes; i++ {
			steps = append(steps, strconv.Itoa(i))
		}
		line = line.SetXAxis(steps)

		for i := 0; i < len(names); i++ {
			data, ok := returnData(ds[i])
			if !ok {
				continue
			}
			rawItems := make([]opts.LineData, 0, len(data.Returns))
			for _, v := range data.Returns {
				rawItems = append(rawItems, opts.LineData{Value: v})
			}
			smoothItems := make([]opts.LineData, 0, len(data.Returns))
			for _, v := range MovingAverage(data.Returns, SmoothingWindow) {
				smoothItems = append(smoothItems, opts.LineData{Value: v})
			}
			line.AddSeries(names[i], rawItems)
			line.AddSeries(names[i]+" (avg)", smoothItems)
		}

		page := components.NewPage()
		page.AddCharts(line)

		f, err := os.Create(path.Join(chartPath, strconv.Itoa(run)+"_returns.html"))
		if err != nil {
			level.Warn(logger).Log("msg", "cannot create chart file", "run", run, "err", err)
			return
		}
		defer f.Close()
		if err := page.Render(f); err != nil {
			level.Warn(logger).Log("msg", "cannot render chart", "run", run, "err", err)
		}
	}
}

// ReturnSummary is the statistics of the last episodes of an experiment
type ReturnSummary struct {
	Episodes int
	Mean     float64
	StdDev   float64
	Best     float64
}

// Summarize computes the summary over the last `window` returns
func Summarize(returns []float64, window int) ReturnSummary {
	if len(returns) == 0 {
		return ReturnSummary{}
	}
	tail := returns
	if window > 0 && len(tail) > window {
		tail = tail[len(tail)-window:]
	}
	summary := ReturnSummary{
		Episodes: len(returns),
		Mean:     stat.Mean(tail, nil),
		Best:     floats.Max(returns),
	}
	if len(tail) > 1 {
		summary.StdDev = stat.StdDev(tail, nil)
	}
	return summary
}

// SummaryComparator prints the mean return over the last episodes, highlighting the best experiment
func SummaryComparator(w io.Writer) Comparator {
	return func(run, _ int, names []string, ds []DataSet) {
		summaries := make([]ReturnSummary, len(names))
		best := -1
		bestMean := math.Inf(-1)
		for i := range names {
			data, ok := returnData(ds[i])
			if !ok {
				continue
			}
			summaries[i] = Summarize(data.Returns, SmoothingWindow)
			if summaries[i].Episodes > 0 && summaries[i].Mean > bestMean {
				best = i
				bestMean = summaries[i].Mean
			}
		}

		fmt.Fprintf(w, "%s\n", aurora.Bold(fmt.Sprintf("Run %d: mean return over the last %d episodes", run, SmoothingWindow)))
		for i, name := range names {
			s := summaries[i]
			line := fmt.Sprintf("%-12s episodes: %6d, mean: %7.2f, std: %7.2f, best: %6.1f", name, s.Episodes, s.Mean, s.StdDev, s.Best)
			if i == best {
				fmt.Fprintf(w, "%s\n", aurora.Green(line))
			} else {
				fmt.Fprintln(w, line)
			}
		}
	}
}

// PropertyData is the dataset of the PropertyAnalyzer
type PropertyData struct {
	// cumulative number of satisfying episodes after every episode
	Counts []int
	// shortest prefix of the first satisfying episode, nil if none
	Witness *Trace
	// episode of the witness, -1 if none
	WitnessEpisode int
}

// PropertyAnalyzer counts the episodes whose trace satisfies the monitor
type PropertyAnalyzer struct {
	Name           string
	monitor        *Monitor
	satisfied      int
	cumulative     []int
	witness        *Trace
	witnessEpisode int
}

func NewPropertyAnalyzer(name string, monitor *Monitor) *PropertyAnalyzer {
	return &PropertyAnalyzer{
		Name:           name,
		monitor:        monitor,
		cumulative:     make([]int, 0),
		witnessEpisode: -1,
	}
}

func (p *PropertyAnalyzer) Analyze(eCtx *EpisodeContext) {
	if prefix, ok := p.monitor.Check(eCtx.Trace); ok {
		if p.satisfied == 0 {
			p.witness = prefix
			p.witnessEpisode = len(p.cumulative)
		}
		p.satisfied += 1
	}
	p.cumulative = append(p.cumulative, p.satisfied)
}

func (p *PropertyAnalyzer) DataSet() DataSet {
	out := &PropertyData{
		Counts:         make([]int, len(p.cumulative)),
		Witness:        p.witness,
		WitnessEpisode: p.witnessEpisode,
	}
	copy(out.Counts, p.cumulative)
	return out
}

func (p *PropertyAnalyzer) Reset() {
	p.satisfied = 0
	p.cumulative = make([]int, 0)
	p.witness = nil
	p.witnessEpisode = -1
}

var _ Analyzer = &PropertyAnalyzer{}

// PropertyComparator prints how many episodes satisfied the property and the first one that did
func PropertyComparator(property string, w io.Writer) Comparator {
	return func(run, _ int, names []string, ds []DataSet) {
		for i, name := range names {
			data, ok := ds[i].(*PropertyData)
			if !ok || data == nil || len(data.Counts) == 0 {
				continue
			}
			total := data.Counts[len(data.Counts)-1]
			msg := fmt.Sprintf("Run %d, %s: %q satisfied in %d/%d episodes", run, name, property, total, len(data.Counts))
			if data.WitnessEpisode >= 0 {
				fmt.Fprintf(w, "%s (first at episode %d)\n", aurora.Green(msg), data.WitnessEpisode)
			} else {
				fmt.Fprintln(w, aurora.Red(msg))
			}
		}
	}
}
