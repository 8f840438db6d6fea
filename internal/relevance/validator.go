// Package relevance decides whether retrieved passages can support an answer.
package relevance

import "github.com/supportdesk/backend/internal/pipeline"

// Verdict classifies a retrieval outcome.
type Verdict int

const (
	// Insufficient: no passage clears the relevance floor; the topic is not
	// covered by the client's documents at all. Routes to the fixed refusal.
	Insufficient Verdict = iota
	// Ambiguous: some passages clear the floor but none is strong enough to
	// answer confidently; the query itself needs disambiguation.
	Ambiguous
	// Sufficient: the retained passages can ground an answer.
	Sufficient
)

func (v Verdict) String() string {
	switch v {
	case Sufficient:
		return "sufficient"
	case Ambiguous:
		return "ambiguous"
	default:
		return "insufficient"
	}
}

// Validation is the verdict plus the passages retained for downstream stages
// and the validator's own confidence (the top passage score).
type Validation struct {
	Verdict  Verdict
	Retained []pipeline.Passage
	Score    float64
}

type Validator struct {
	relevanceFloor   float64
	sufficiencyFloor float64
}

// NewValidator builds a validator. relevanceFloor is the minimum score for a
// passage to count as evidence; sufficiencyFloor is the top-score threshold
// separating an ambiguous query from an answerable one.
func NewValidator(relevanceFloor, sufficiencyFloor float64) *Validator {
	return &Validator{
		relevanceFloor:   relevanceFloor,
		sufficiencyFloor: sufficiencyFloor,
	}
}

// Validate expects passages ordered by score descending, as the retriever
// returns them.
func (v *Validator) Validate(passages []pipeline.Passage, _ string) Validation {
	retained := make([]pipeline.Passage, 0, len(passages))
	for _, p := range passages {
		if p.Score >= v.relevanceFloor {
			retained = append(retained, p)
		}
	}

	if len(retained) == 0 {
		return Validation{Verdict: Insufficient, Score: 0}
	}

	top := retained[0].Score
	if top < v.sufficiencyFloor {
		return Validation{Verdict: Ambiguous, Retained: retained, Score: top}
	}

	return Validation{Verdict: Sufficient, Retained: retained, Score: top}
}
