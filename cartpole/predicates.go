package cartpole

import (
	"math"

	"github.com/zeu5/cartpole-dqn/types"
)

func asState(s types.State) (*State, bool) {
	cs, ok := s.(*State)
	return cs, ok
}

// PoleWithin holds when the pole angle is within the given degrees of upright
func PoleWithin(degrees float64) types.StatePredicate {
	limit := degrees * math.Pi / 180
	return func(s types.State) bool {
		cs, ok := asState(s)
		return ok && math.Abs(cs.Theta) <= limit
	}
}

// CartWithin holds when the cart is at most dist away from the center of the track
func CartWithin(dist float64) types.StatePredicate {
	return func(s types.State) bool {
		cs, ok := asState(s)
		return ok && math.Abs(cs.X) <= dist
	}
}

// StepsAtLeast holds once the episode lasted n steps
func StepsAtLeast(n int) types.StatePredicate {
	return func(s types.State) bool {
		cs, ok := asState(s)
		return ok && cs.Steps >= n
	}
}

// BalancedFor holds when n steps were taken without failing
func BalancedFor(n int) types.StatePredicate {
	return StepsAtLeast(n).And(func(s types.State) bool {
		cs, ok := asState(s)
		return ok && !cs.Failed()
	})
}

// BalancedMonitor is satisfied by episodes that keep the pole up for n steps
func BalancedMonitor(n int) *types.Monitor {
	m := types.NewMonitor()
	m.Build().On(BalancedFor(n).OnNext(), "balanced").MarkSuccess()
	return m
}

// CenteredMonitor is satisfied by episodes where the cart drifts beyond dist
// and later comes back near the center with the pole still up
func CenteredMonitor(dist float64) *types.Monitor {
	m := types.NewMonitor()
	m.Build().
		On(CartWithin(dist).Not().OnNext(), "drifted").
		On(CartWithin(dist/2).And(PoleWithin(6)).OnNext(), "recovered").
		MarkSuccess()
	return m
}
