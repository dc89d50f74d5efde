package dqn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// AdamW is Adam with decoupled weight decay and optionally the AMSGrad variant
type AdamW struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64
	AMSGrad     bool

	t    int
	m    [][]float64
	v    [][]float64
	vMax [][]float64
}

// NewAdamW creates the optimizer for the given parameters
func NewAdamW(params []*mat.Dense, c *OptimizerConfig) *AdamW {
	a := &AdamW{
		LR:          c.LR,
		Beta1:       c.Beta1,
		Beta2:       c.Beta2,
		Eps:         c.Eps,
		WeightDecay: c.WeightDecay,
		AMSGrad:     c.AMSGrad,
	}
	a.init(params)
	return a
}

func (a *AdamW) init(params []*mat.Dense) {
	a.t = 0
	a.m = make([][]float64, len(params))
	a.v = make([][]float64, len(params))
	a.vMax = make([][]float64, len(params))
	for i, p := range params {
		size := len(p.RawMatrix().Data)
		a.m[i] = make([]float64, size)
		a.v[i] = make([]float64, size)
		if a.AMSGrad {
			a.vMax[i] = make([]float64, size)
		}
	}
}

// Steps returns the number of updates applied
func (a *AdamW) Steps() int {
	return a.t
}

// Step updates params in place with the matching grads
func (a *AdamW) Step(params, grads []*mat.Dense) {
	a.t += 1
	bc1 := 1 - math.Pow(a.Beta1, float64(a.t))
	bc2Sqrt := math.Sqrt(1 - math.Pow(a.Beta2, float64(a.t)))
	stepSize := a.LR / bc1
	decay := 1 - a.LR*a.WeightDecay

	for i, p := range params {
		data := p.RawMatrix().Data
		g := grads[i].RawMatrix().Data
		m, v := a.m[i], a.v[i]
		for j := range data {
			data[j] *= decay
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g[j]
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g[j]*g[j]
			second := v[j]
			if a.AMSGrad {
				a.vMax[i][j] = math.Max(a.vMax[i][j], v[j])
				second = a.vMax[i][j]
			}
			denom := math.Sqrt(second)/bc2Sqrt + a.Eps
			data[j] -= stepSize * m[j] / denom
		}
	}
}
