package dqn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// HuberLoss is the smooth L1 loss with beta 1 averaged over the batch.
// It returns the loss and its gradient w.r.t. every prediction.
func HuberLoss(pred, target []float64) (float64, []float64) {
	n := float64(len(pred))
	loss := 0.0
	grad := make([]float64, len(pred))
	for i := range pred {
		d := pred[i] - target[i]
		if math.Abs(d) < 1 {
			loss += 0.5 * d * d
			grad[i] = d / n
		} else {
			loss += math.Abs(d) - 0.5
			grad[i] = math.Copysign(1, d) / n
		}
	}
	return loss / n, grad
}

// ClipGradValue clamps every gradient entry to [-clip, clip]
func ClipGradValue(grads []*mat.Dense, clip float64) {
	for _, g := range grads {
		g.Apply(func(_, _ int, v float64) float64 {
			return math.Max(-clip, math.Min(clip, v))
		}, g)
	}
}
