// Package bandit chooses a content template with a UCB1-style rule that
// balances observed engagement against an exploration bonus.
package bandit

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/me/postpilot/pkg/model"
)

// tieEpsilon is the score distance under which two candidates count as tied.
const tieEpsilon = 1e-12

// Candidate is one arm: a template eligible within the chosen slot.
type Candidate struct {
	TemplateID        string
	Uses              int
	AvgEngagementRate float64 // percentage, 0-100
}

// Selection is the outcome of a Select call.
type Selection struct {
	TemplateID string
	Score      float64
	Label      model.SelectionLabel
	Rationale  string
}

// Selector picks templates. It is safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector drawing from rng. A nil rng gets a randomly seeded source.
func NewSelector(rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{rng: rng}
}

// Normalize maps a stored engagement percentage into [0, 1].
func Normalize(avgEngagementRate float64) float64 {
	v := avgEngagementRate / 100
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Score returns normalize(avg) + c*sqrt(ln(totalTrials)/uses).
// A candidate with zero uses scores +Inf.
func Score(c Candidate, totalTrials int, explorationFactor float64) float64 {
	if c.Uses <= 0 {
		return math.Inf(1)
	}
	bonus := 0.0
	if totalTrials > 1 {
		bonus = explorationFactor * math.Sqrt(math.Log(float64(totalTrials))/float64(c.Uses))
	}
	return Normalize(c.AvgEngagementRate) + bonus
}

// Select chooses one candidate.
//
//   - totalTrials == 0: uniform over all candidates (RANDOM).
//   - any candidate with Uses < minTrials: uniform over those (EXPLORATION).
//   - otherwise the highest Score wins, ties broken uniformly (EXPLOITATION).
//
// It returns model.ErrEmptyCandidateSet when candidates is empty.
func (s *Selector) Select(candidates []Candidate, totalTrials int, explorationFactor float64, minTrials int) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, model.ErrEmptyCandidateSet
	}

	if totalTrials <= 0 {
		c := candidates[s.intN(len(candidates))]
		return Selection{
			TemplateID: c.TemplateID,
			Label:      model.LabelRandom,
			Rationale:  fmt.Sprintf("random: no history yet, uniform over %d candidates", len(candidates)),
		}, nil
	}

	var under []Candidate
	for _, c := range candidates {
		if c.Uses < minTrials {
			under = append(under, c)
		}
	}
	if len(under) > 0 {
		c := under[s.intN(len(under))]
		return Selection{
			TemplateID: c.TemplateID,
			Label:      model.LabelExploration,
			Rationale: fmt.Sprintf("exploration: %d of %d candidates below %d trials, picked one with %d uses",
				len(under), len(candidates), minTrials, c.Uses),
		}, nil
	}

	best := math.Inf(-1)
	var tied []int
	for i, c := range candidates {
		score := Score(c, totalTrials, explorationFactor)
		switch {
		case score > best+tieEpsilon:
			best = score
			tied = append(tied[:0], i)
		case math.Abs(score-best) <= tieEpsilon || (math.IsInf(score, 1) && math.IsInf(best, 1)):
			tied = append(tied, i)
		}
	}
	c := candidates[tied[s.intN(len(tied))]]

	// An untried arm in the scored set only happens with minTrials == 0; its
	// bonus is unbounded so it wins, but the score is recorded as zero.
	score := best
	if math.IsInf(score, 1) {
		score = 0
	}
	return Selection{
		TemplateID: c.TemplateID,
		Score:      score,
		Label:      model.LabelExploitation,
		Rationale: fmt.Sprintf("exploitation: ucb=%.4f avg=%.2f%% uses=%d total=%d c=%.2f ties=%d",
			score, c.AvgEngagementRate, c.Uses, totalTrials, explorationFactor, len(tied)),
	}, nil
}

func (s *Selector) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
