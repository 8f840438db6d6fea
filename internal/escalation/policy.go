// Package escalation decides human handoff and assigns conversations to
// support agents.
package escalation

import "github.com/supportdesk/backend/internal/intent"

// Policy applies the escalation rule. The confidence threshold and the
// high-risk tag set (folded into the intent's risk tier) are configuration;
// the AND of all three conditions is fixed.
type Policy struct {
	threshold float64
}

func NewPolicy(confidenceThreshold float64) *Policy {
	return &Policy{threshold: confidenceThreshold}
}

// Decide escalates iff the intent is high-risk AND the message requests an
// action AND the confidence clears the threshold. An informational mention of
// a high-risk topic never escalates on its own.
func (p *Policy) Decide(it intent.Intent, confidence float64) bool {
	return it.RiskTier == intent.RiskHigh &&
		it.Actionable &&
		confidence >= p.threshold
}

func (p *Policy) Threshold() float64 {
	return p.threshold
}
