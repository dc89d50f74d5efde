package policies

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Explorer picks an action index given the estimated value of every action
// and anneals its exploration parameter over time.
type Explorer interface {
	// Pick returns the index of the chosen action, values must not be empty
	Pick(values []float64) int
	// Decay anneals the exploration parameter towards its floor
	Decay()
	// Value of the exploration parameter
	Value() float64
	// Name of the exploration parameter
	Name() string
	// Reset restores the initial exploration parameter
	Reset()
}

// ExplorationSchedule is a multiplicative decay with a floor
type ExplorationSchedule struct {
	Start float64 `yaml:"start"`
	Decay float64 `yaml:"decay"`
	Min   float64 `yaml:"min"`
}

func (s ExplorationSchedule) next(cur float64) float64 {
	return math.Max(s.Min, cur*s.Decay)
}

// EpsilonGreedy takes a uniformly random action with probability epsilon, the greedy one otherwise
type EpsilonGreedy struct {
	schedule ExplorationSchedule
	epsilon  float64
	rand     *rand.Rand
}

var _ Explorer = &EpsilonGreedy{}

func NewEpsilonGreedy(schedule ExplorationSchedule, seed uint64) *EpsilonGreedy {
	return &EpsilonGreedy{
		schedule: schedule,
		epsilon:  schedule.Start,
		rand:     rand.New(rand.NewSource(seed)),
	}
}

func (e *EpsilonGreedy) Pick(values []float64) int {
	if e.rand.Float64() < e.epsilon {
		return e.rand.Intn(len(values))
	}
	return floats.MaxIdx(values)
}

func (e *EpsilonGreedy) Decay() {
	e.epsilon = e.schedule.next(e.epsilon)
}

func (e *EpsilonGreedy) Value() float64 {
	return e.epsilon
}

func (e *EpsilonGreedy) Name() string {
	return "epsilon"
}

func (e *EpsilonGreedy) Reset() {
	e.epsilon = e.schedule.Start
}

// Boltzmann samples actions with probability proportional to exp(value / temperature)
type Boltzmann struct {
	schedule    ExplorationSchedule
	temperature float64
	rand        rand.Source
}

var _ Explorer = &Boltzmann{}

func NewBoltzmann(schedule ExplorationSchedule, seed uint64) *Boltzmann {
	return &Boltzmann{
		schedule:    schedule,
		temperature: schedule.Start,
		rand:        rand.NewSource(seed),
	}
}

// Probabilities returns the softmax of the values at the current temperature
func (b *Boltzmann) Probabilities(values []float64) []float64 {
	weights := make([]float64, len(values))
	maxVal := floats.Max(values)
	sum := 0.0
	for i, v := range values {
		// shifted by the max to avoid overflow
		weights[i] = math.Exp((v - maxVal) / b.temperature)
		sum += weights[i]
	}
	floats.Scale(1/sum, weights)
	return weights
}

func (b *Boltzmann) Pick(values []float64) int {
	i, ok := sampleuv.NewWeighted(b.Probabilities(values), b.rand).Take()
	if !ok {
		return floats.MaxIdx(values)
	}
	return i
}

func (b *Boltzmann) Decay() {
	b.temperature = b.schedule.next(b.temperature)
}

func (b *Boltzmann) Value() float64 {
	return b.temperature
}

func (b *Boltzmann) Name() string {
	return "temperature"
}

func (b *Boltzmann) Reset() {
	b.temperature = b.schedule.Start
}
