// Package intent classifies support messages with a deterministic rule-based
// classifier: regex patterns for the intent tag, keyword sets for whether the
// message requests an action or only information.
package intent

import (
	"context"
	"math"
	"regexp"
	"strings"

	prose "github.com/jdkato/prose/v2"
)

// Intent tags. High-risk membership is configuration, not code; the defaults
// live in pkg/config.
const (
	TagGeneralQuestion = "general_question"
	TagFeatureInquiry  = "feature_inquiry"
	TagPricingQuestion = "pricing_question"
	TagLoginIssue      = "login_issue"
	TagPasswordReset   = "password_reset"
	TagAccountDeletion = "account_deletion"
	TagBillingRefund   = "billing_refund"
	TagChargeback      = "chargeback"
	TagDataExport      = "data_export"
	TagBugReport       = "bug_report"
	TagIntegrationHelp = "integration_help"
	TagAPISupport      = "api_support"
	TagFeedback        = "feedback"
	TagComplaint       = "complaint"
)

// Risk tiers.
const (
	RiskHigh = "high"
	RiskLow  = "low"
)

// Intent is the classification of one message. Derived once per request,
// never mutated.
type Intent struct {
	Tag            string
	Confidence     float64
	RiskTier       string
	Actionable     bool
	Specialization string
	Severity       string
}

type pattern struct {
	re       *regexp.Regexp
	tag      string
	baseConf float64
}

var intentPatterns = []pattern{
	{regexp.MustCompile(`\b(delete|remove|close|terminate)\s+(my\s+)?(account|profile)\b`), TagAccountDeletion, 0.8},
	{regexp.MustCompile(`\bpermanently\s+(delete|remove)\b`), TagAccountDeletion, 0.85},
	{regexp.MustCompile(`\b(want|need)\s+to\s+(delete|close)\b`), TagAccountDeletion, 0.75},

	{regexp.MustCompile(`\b(refund|money\s+back|reimburse)\b`), TagBillingRefund, 0.7},
	{regexp.MustCompile(`\b(get|want|need)\s+(a\s+)?refund\b`), TagBillingRefund, 0.8},
	{regexp.MustCompile(`\bcharge(d|s)?\s+(wrong|incorrect|twice|duplicate)\b`), TagBillingRefund, 0.75},

	{regexp.MustCompile(`\bchargeback\b`), TagChargeback, 0.9},
	{regexp.MustCompile(`\bdispute\s+(charge|transaction|payment)\b`), TagChargeback, 0.8},
	{regexp.MustCompile(`\bcontact(ing)?\s+(my\s+)?bank\b`), TagChargeback, 0.7},

	{regexp.MustCompile(`\b(export|download)\s+(my\s+)?data\b`), TagDataExport, 0.8},
	{regexp.MustCompile(`\bgdpr\s+(request|data)\b`), TagDataExport, 0.85},
	{regexp.MustCompile(`\b(all\s+)?my\s+information\b`), TagDataExport, 0.6},

	{regexp.MustCompile(`\b(can'?t|cannot|unable)\s+(to\s+)?(login|log\s*in|sign\s*in)\b`), TagLoginIssue, 0.85},
	{regexp.MustCompile(`\blogin\s+(problem|issue|error)\b`), TagLoginIssue, 0.8},
	{regexp.MustCompile(`\baccount\s+locked\b`), TagLoginIssue, 0.85},

	{regexp.MustCompile(`\b(reset|forgot|change)\s+(my\s+)?password\b`), TagPasswordReset, 0.9},
	{regexp.MustCompile(`\bpassword\s+(reset|recovery)\b`), TagPasswordReset, 0.85},

	{regexp.MustCompile(`\b(bug|error|broken|not\s+working)\b`), TagBugReport, 0.6},
	{regexp.MustCompile(`\b(crash|crashes|crashed)\b`), TagBugReport, 0.7},
	{regexp.MustCompile(`\b(issue|problem)\s+with\b`), TagBugReport, 0.5},

	{regexp.MustCompile(`\bapi\s+(key|documentation|endpoint)\b`), TagAPISupport, 0.8},
	{regexp.MustCompile(`\b(integrate|integration|webhook)\b`), TagIntegrationHelp, 0.75},

	{regexp.MustCompile(`\b(price|pricing|cost|subscription|plan)\b`), TagPricingQuestion, 0.7},
	{regexp.MustCompile(`\bhow\s+much\b`), TagPricingQuestion, 0.6},

	{regexp.MustCompile(`\b(complaint|complain|disappointed|frustrated)\b`), TagComplaint, 0.7},
	{regexp.MustCompile(`\b(feedback|suggestion|recommend)\b`), TagFeedback, 0.7},

	{regexp.MustCompile(`\b(feature|capability|can\s+you|does\s+it)\b`), TagFeatureInquiry, 0.5},
}

// Single-word keywords matched against tokens; phrases checked by substring.
var actionKeywords = map[string]bool{
	"want": true, "need": true, "please": true, "now": true,
	"initiate": true, "process": true, "start": true,
	"do": true, "make": true, "get": true, "give": true,
	"immediately": true, "asap": true, "urgent": true,
}

var informationalKeywords = map[string]bool{
	"how": true, "what": true, "when": true, "where": true, "why": true,
	"policy": true, "policies": true, "information": true, "info": true,
	"explain": true, "describe": true,
}

var informationalPhrases = []string{
	"tell me about", "can i", "is it possible", "do you",
}

var questionStarters = []string{
	"how", "what", "when", "where", "why", "can i", "is it", "do you",
}

var specializations = map[string]string{
	TagBillingRefund:   "billing",
	TagChargeback:      "billing",
	TagPricingQuestion: "billing",
	TagAccountDeletion: "account",
	TagLoginIssue:      "account",
	TagPasswordReset:   "account",
	TagDataExport:      "security",
	TagBugReport:       "technical",
	TagIntegrationHelp: "technical",
	TagAPISupport:      "technical",
	TagComplaint:       "general",
	TagFeedback:        "general",
	TagGeneralQuestion: "general",
	TagFeatureInquiry:  "general",
}

var severities = map[string]string{
	TagChargeback:      "high",
	TagAccountDeletion: "high",
	TagBillingRefund:   "medium",
	TagDataExport:      "medium",
	TagComplaint:       "medium",
	TagBugReport:       "medium",
}

// Classifier labels messages with an intent tag, risk tier and actionability.
type Classifier struct {
	highRisk map[string]bool
}

// NewClassifier builds a classifier whose high-risk tag set comes from
// configuration.
func NewClassifier(highRiskTags []string) *Classifier {
	highRisk := make(map[string]bool, len(highRiskTags))
	for _, tag := range highRiskTags {
		highRisk[tag] = true
	}
	return &Classifier{highRisk: highRisk}
}

// Classify is deterministic: identical messages always yield identical intents.
func (c *Classifier) Classify(_ context.Context, message string) (Intent, error) {
	msg := strings.ToLower(strings.TrimSpace(message))
	tokens := tokenize(msg)

	informational := isInformational(msg, tokens)
	actionable := hasActionKeyword(tokens)

	bestTag := TagGeneralQuestion
	bestConf := 0.3

	for _, p := range intentPatterns {
		if !p.re.MatchString(msg) {
			continue
		}

		conf := p.baseConf
		if c.highRisk[p.tag] {
			// High-risk tags need an action request for high confidence;
			// informational mentions are scored down.
			if actionable && !informational {
				conf = math.Min(conf+0.1, 0.95)
			} else if informational {
				conf = math.Max(conf-0.3, 0.3)
			}
		}

		if conf > bestConf {
			bestConf = conf
			bestTag = p.tag
		}
	}

	riskTier := RiskLow
	if c.highRisk[bestTag] {
		riskTier = RiskHigh
	}

	specialization := specializations[bestTag]
	if specialization == "" {
		specialization = "general"
	}
	severity := severities[bestTag]
	if severity == "" {
		severity = "low"
	}

	return Intent{
		Tag:            bestTag,
		Confidence:     math.Round(bestConf*100) / 100,
		RiskTier:       riskTier,
		Actionable:     actionable && !informational,
		Specialization: specialization,
		Severity:       severity,
	}, nil
}

// tokenize returns lowercase word tokens. prose handles unicode and
// punctuation splitting; on failure fall back to whitespace fields.
func tokenize(msg string) []string {
	doc, err := prose.NewDocument(msg,
		prose.WithExtraction(false),
		prose.WithTagging(false),
	)
	if err != nil {
		return strings.Fields(msg)
	}

	tokens := doc.Tokens()
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		words = append(words, strings.ToLower(tok.Text))
	}
	return words
}

func hasActionKeyword(tokens []string) bool {
	for _, tok := range tokens {
		if actionKeywords[tok] {
			return true
		}
	}
	return false
}

func isInformational(msg string, tokens []string) bool {
	for _, tok := range tokens {
		if informationalKeywords[tok] {
			return true
		}
	}
	for _, phrase := range informationalPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	for _, starter := range questionStarters {
		if strings.HasPrefix(msg, starter) {
			return true
		}
	}
	return false
}
