package dqn

import (
	"github.com/gammazero/deque"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"
)

var ErrNotEnoughSamples = errors.New("not enough transitions in memory")

// Transition is one step of experience.
// NextState is nil when the step terminated the episode.
type Transition struct {
	State     []float64
	Action    int
	NextState []float64
	Reward    float64
	Done      bool
}

func (t Transition) copy() Transition {
	out := t
	out.State = append([]float64(nil), t.State...)
	if t.NextState != nil {
		out.NextState = append([]float64(nil), t.NextState...)
	}
	return out
}

// Memory is a fixed capacity replay buffer, the oldest transition is evicted when full
type Memory struct {
	capacity int
	buffer   *deque.Deque[Transition]
	source   rand.Source
}

func NewMemory(capacity int, seed uint64) *Memory {
	return &Memory{
		capacity: capacity,
		buffer:   deque.New[Transition](capacity),
		source:   rand.NewSource(seed),
	}
}

// Push stores a copy of the transition
func (m *Memory) Push(t Transition) {
	if m.buffer.Len() >= m.capacity {
		m.buffer.PopFront()
	}
	m.buffer.PushBack(t.copy())
}

// Sample returns n distinct transitions drawn uniformly at random
func (m *Memory) Sample(n int) ([]Transition, error) {
	if n > m.buffer.Len() {
		return nil, errors.Wrapf(ErrNotEnoughSamples, "requested %d, stored %d", n, m.buffer.Len())
	}
	if n <= 0 {
		return []Transition{}, nil
	}
	idxs := make([]int, n)
	sampleuv.WithoutReplacement(idxs, m.buffer.Len(), m.source)
	out := make([]Transition, n)
	for i, idx := range idxs {
		out[i] = m.buffer.At(idx).copy()
	}
	return out, nil
}

func (m *Memory) Len() int {
	return m.buffer.Len()
}

func (m *Memory) Capacity() int {
	return m.capacity
}

// Full returns true once the memory holds capacity transitions
func (m *Memory) Full() bool {
	return m.buffer.Len() >= m.capacity
}

func (m *Memory) Clear() {
	m.buffer.Clear()
}
