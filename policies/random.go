package policies

import (
	"github.com/zeu5/cartpole-dqn/types"
	"golang.org/x/exp/rand"
)

// RandomPolicy picks uniformly among the available actions and learns nothing
type RandomPolicy struct {
	seed uint64
	rand *rand.Rand
}

var _ types.Policy = &RandomPolicy{}

func NewRandomPolicy(seed uint64) *RandomPolicy {
	return &RandomPolicy{
		seed: seed,
		rand: rand.New(rand.NewSource(seed)),
	}
}

func (r *RandomPolicy) ResetEpisode(_ *types.EpisodeContext) {}

func (r *RandomPolicy) PickAction(_ *types.StepContext, _ types.State, actions []types.Action) (types.Action, bool) {
	if len(actions) == 0 {
		return nil, false
	}
	return actions[r.rand.Intn(len(actions))], true
}

func (r *RandomPolicy) UpdateStep(_ *types.StepContext, _ types.State, _ types.Action, _ *types.StepResult) {
}

func (r *RandomPolicy) UpdateEpisode(_ *types.EpisodeContext) {}

// Reset reseeds the source so every run draws the same actions
func (r *RandomPolicy) Reset() {
	r.rand = rand.New(rand.NewSource(r.seed))
}
