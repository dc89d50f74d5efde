package dqn

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected layer computing x*W + b
type Dense struct {
	W *mat.Dense // in x out
	B *mat.Dense // 1 x out
}

func newDense(in, out int, rng *rand.Rand) *Dense {
	bound := 1 / math.Sqrt(float64(in))
	uniform := func(n int) []float64 {
		data := make([]float64, n)
		for i := range data {
			data[i] = (2*rng.Float64() - 1) * bound
		}
		return data
	}
	return &Dense{
		W: mat.NewDense(in, out, uniform(in*out)),
		B: mat.NewDense(1, out, uniform(out)),
	}
}

func (d *Dense) forward(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	_, out := d.W.Dims()
	z := mat.NewDense(n, out, nil)
	z.Mul(x, d.W)
	bias := d.B.RawRowView(0)
	for i := 0; i < n; i++ {
		floats.Add(z.RawRowView(i), bias)
	}
	return z
}

// Network is a multilayer perceptron with ReLU hidden activations and a linear output
type Network struct {
	sizes  []int
	layers []*Dense
}

// NewNetwork creates a network with the given layer sizes (input, hidden..., output).
// Weights and biases are drawn uniformly in [-1/sqrt(fan_in), 1/sqrt(fan_in)].
func NewNetwork(sizes []int, seed uint64) (*Network, error) {
	if len(sizes) < 2 {
		return nil, errors.Errorf("network needs at least an input and an output size, got %v", sizes)
	}
	for _, s := range sizes {
		if s <= 0 {
			return nil, errors.Errorf("invalid layer size in %v", sizes)
		}
	}
	rng := rand.New(rand.NewSource(seed))
	n := &Network{
		sizes:  append([]int(nil), sizes...),
		layers: make([]*Dense, len(sizes)-1),
	}
	for i := range n.layers {
		n.layers[i] = newDense(sizes[i], sizes[i+1], rng)
	}
	return n, nil
}

func (n *Network) InputSize() int {
	return n.sizes[0]
}

func (n *Network) OutputSize() int {
	return n.sizes[len(n.sizes)-1]
}

// forwardCache keeps the intermediate values needed by Backward
type forwardCache struct {
	inputs []*mat.Dense // input of every layer
	pre    []*mat.Dense // pre-activation output of every layer
}

// Forward computes the output for a batch, one sample per row
func (n *Network) Forward(x *mat.Dense) *mat.Dense {
	out, _ := n.forward(x)
	return out
}

func (n *Network) forward(x *mat.Dense) (*mat.Dense, *forwardCache) {
	cache := &forwardCache{
		inputs: make([]*mat.Dense, len(n.layers)),
		pre:    make([]*mat.Dense, len(n.layers)),
	}
	a := x
	for i, l := range n.layers {
		cache.inputs[i] = a
		z := l.forward(a)
		cache.pre[i] = z
		if i == len(n.layers)-1 {
			return z, cache
		}
		r, c := z.Dims()
		act := mat.NewDense(r, c, nil)
		act.Apply(func(_, _ int, v float64) float64 {
			return math.Max(0, v)
		}, z)
		a = act
	}
	return a, cache
}

// QValues returns the output for a single input
func (n *Network) QValues(state []float64) []float64 {
	x := mat.NewDense(1, len(state), append([]float64(nil), state...))
	out := n.Forward(x)
	return append([]float64(nil), out.RawRowView(0)...)
}

// backward propagates the gradient of the loss w.r.t. the output
// and returns the gradients in the order of Params
func (n *Network) backward(cache *forwardCache, dOut *mat.Dense) []*mat.Dense {
	grads := make([]*mat.Dense, 2*len(n.layers))
	delta := dOut
	for i := len(n.layers) - 1; i >= 0; i-- {
		l := n.layers[i]
		if i < len(n.layers)-1 {
			// ReLU derivative
			r, c := delta.Dims()
			masked := mat.NewDense(r, c, nil)
			masked.Apply(func(r, c int, v float64) float64 {
				if cache.pre[i].At(r, c) > 0 {
					return v
				}
				return 0
			}, delta)
			delta = masked
		}
		in, out := l.W.Dims()
		gradW := mat.NewDense(in, out, nil)
		gradW.Mul(cache.inputs[i].T(), delta)

		rows, _ := delta.Dims()
		gradB := mat.NewDense(1, out, nil)
		bRow := gradB.RawRowView(0)
		for r := 0; r < rows; r++ {
			floats.Add(bRow, delta.RawRowView(r))
		}
		grads[2*i] = gradW
		grads[2*i+1] = gradB

		if i > 0 {
			prev := mat.NewDense(rows, in, nil)
			prev.Mul(delta, l.W.T())
			delta = prev
		}
	}
	return grads
}

// Params returns the parameters of the network as [W0, b0, W1, b1, ...]
func (n *Network) Params() []*mat.Dense {
	params := make([]*mat.Dense, 0, 2*len(n.layers))
	for _, l := range n.layers {
		params = append(params, l.W, l.B)
	}
	return params
}

// Clone returns a deep copy of the network
func (n *Network) Clone() *Network {
	c := &Network{
		sizes:  append([]int(nil), n.sizes...),
		layers: make([]*Dense, len(n.layers)),
	}
	for i, l := range n.layers {
		c.layers[i] = &Dense{
			W: mat.DenseCopyOf(l.W),
			B: mat.DenseCopyOf(l.B),
		}
	}
	return c
}

// CopyFrom overwrites the parameters with the ones of src, the shapes must match
func (n *Network) CopyFrom(src *Network) {
	dst := n.Params()
	for i, p := range src.Params() {
		dst[i].Copy(p)
	}
}

// SoftUpdate moves the parameters towards src: p = tau*src + (1-tau)*p
func (n *Network) SoftUpdate(src *Network, tau float64) {
	if tau >= 1 {
		n.CopyFrom(src)
		return
	}
	dst := n.Params()
	for i, p := range src.Params() {
		d := dst[i].RawMatrix().Data
		floats.Scale(1-tau, d)
		floats.AddScaled(d, tau, p.RawMatrix().Data)
	}
}
