// Package confidence scores how likely a grounded answer can be produced
// from the validated passages. The scorer is deterministic: identical inputs
// always produce identical scores, which escalation decisions depend on.
package confidence

import (
	"math"

	"github.com/supportdesk/backend/internal/intent"
	"github.com/supportdesk/backend/internal/pipeline"
)

// Agreement bonus per additional retained passage, and its cap. Multiple
// consistent passages raise the score but can never push it past 1.
const (
	agreementStep = 0.1
	agreementCap  = 0.3
)

type Scorer struct{}

func New() *Scorer {
	return &Scorer{}
}

// Score blends the classifier's confidence with the passage evidence:
//
//	evidence = max + (1-max) * min(agreementStep*(n-1), agreementCap)
//	score    = (intent confidence + evidence) / 2
//
// It is monotonically non-decreasing in the maximum passage score and in the
// number of retained passages.
func (s *Scorer) Score(passages []pipeline.Passage, it intent.Intent) float64 {
	if len(passages) == 0 {
		return clamp(it.Confidence / 2)
	}

	maxScore := 0.0
	for _, p := range passages {
		if p.Score > maxScore {
			maxScore = p.Score
		}
	}

	agreement := math.Min(agreementStep*float64(len(passages)-1), agreementCap)
	evidence := maxScore + (1-maxScore)*agreement

	return clamp((it.Confidence + evidence) / 2)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
