package dqn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewNetworkInit(t *testing.T) {
	n, err := NewNetwork([]int{4, 128, 128, 2}, 42)
	require.NoError(t, err)
	require.Equal(t, 4, n.InputSize())
	require.Equal(t, 2, n.OutputSize())

	params := n.Params()
	require.Len(t, params, 6)
	fanIn := []int{4, 4, 128, 128, 128, 128}
	for i, p := range params {
		bound := 1 / math.Sqrt(float64(fanIn[i]))
		for _, v := range p.RawMatrix().Data {
			require.LessOrEqual(t, math.Abs(v), bound)
		}
	}

	_, err = NewNetwork([]int{4}, 1)
	require.Error(t, err)
	_, err = NewNetwork([]int{4, 0, 2}, 1)
	require.Error(t, err)
}

func TestForwardBatchMatchesSingle(t *testing.T) {
	n, err := NewNetwork([]int{3, 8, 2}, 7)
	require.NoError(t, err)

	x := mat.NewDense(2, 3, []float64{0.1, -0.2, 0.3, 1, 0.5, -1})
	out := n.Forward(x)
	r, c := out.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 2, c)

	require.InDeltaSlice(t, out.RawRowView(0), n.QValues([]float64{0.1, -0.2, 0.3}), 1e-12)
	require.InDeltaSlice(t, out.RawRowView(1), n.QValues([]float64{1, 0.5, -1}), 1e-12)
}

// weightedSum is sum(out .* coef), its gradient w.r.t. out is coef
func weightedSum(out, coef *mat.Dense) float64 {
	var e mat.Dense
	e.MulElem(out, coef)
	return mat.Sum(&e)
}

func TestBackwardGradientCheck(t *testing.T) {
	n, err := NewNetwork([]int{3, 5, 4, 2}, 3)
	require.NoError(t, err)
	x := mat.NewDense(4, 3, []float64{
		0.5, -0.3, 0.8,
		-1.2, 0.4, 0.1,
		0.3, 0.9, -0.7,
		1.1, -0.6, 0.2,
	})
	coef := mat.NewDense(4, 2, []float64{1, -0.5, 0.3, 2, -1, 0.7, 0.2, 0.4})

	_, cache := n.forward(x)
	grads := n.backward(cache, coef)

	const h = 1e-6
	for pi, p := range n.Params() {
		data := p.RawMatrix().Data
		g := grads[pi].RawMatrix().Data
		require.Len(t, g, len(data))
		for j := range data {
			orig := data[j]
			data[j] = orig + h
			plus := weightedSum(n.Forward(x), coef)
			data[j] = orig - h
			minus := weightedSum(n.Forward(x), coef)
			data[j] = orig
			numeric := (plus - minus) / (2 * h)
			require.InDelta(t, numeric, g[j], 1e-5, "param %d entry %d", pi, j)
		}
	}
}

func TestCopyAndSoftUpdate(t *testing.T) {
	a, err := NewNetwork([]int{2, 3, 2}, 1)
	require.NoError(t, err)
	b, err := NewNetwork([]int{2, 3, 2}, 2)
	require.NoError(t, err)

	before := mat.DenseCopyOf(b.Params()[0])
	b.SoftUpdate(a, 0.25)
	for i, v := range b.Params()[0].RawMatrix().Data {
		expected := 0.25*a.Params()[0].RawMatrix().Data[i] + 0.75*before.RawMatrix().Data[i]
		require.InDelta(t, expected, v, 1e-12)
	}

	b.CopyFrom(a)
	for i, p := range b.Params() {
		require.True(t, mat.Equal(p, a.Params()[i]))
	}

	c := a.Clone()
	c.Params()[0].Set(0, 0, 100)
	require.NotEqual(t, 100.0, a.Params()[0].At(0, 0))

	b.SoftUpdate(c, 1)
	require.Equal(t, 100.0, b.Params()[0].At(0, 0))
}
