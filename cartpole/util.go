package cartpole

import (
	"fmt"
	"math"
	"strings"

	"github.com/zeu5/cartpole-dqn/types"
)

// FormatTrace renders one line per step with the cart position, pole angle (degrees) and action
func FormatTrace(trace *types.Trace) string {
	var b strings.Builder
	for i := 0; i < trace.Len(); i++ {
		s, a, ns, _ := trace.Get(i)
		cs, ok := asState(s)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%4d x=%+.3f theta=%+6.2f %-5s", i, cs.X, cs.Theta*180/math.Pi, a.Hash())
		if next, ok := asState(ns); ok && next.Failed() {
			b.WriteString(" fail")
		}
		b.WriteString("\n")
	}
	return b.String()
}
