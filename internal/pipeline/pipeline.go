// Package pipeline holds the request/result types that flow through the
// support pipeline and the stage-failure taxonomy.
package pipeline

import "time"

// Request is one incoming support message. Immutable for the life of a run.
type Request struct {
	ClientID       string
	UserID         string
	Message        string
	ConversationID string
}

// Result is the externally visible outcome of a pipeline run.
type Result struct {
	Reply      string    `json:"reply"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Escalated  bool      `json:"escalated"`
	AgentID    string    `json:"agent_id,omitempty"`
	TicketID   string    `json:"ticket_id,omitempty"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reply sources.
const (
	SourceDocument = "document"
	SourceHuman    = "human"
)

// Passage is a retrieved document chunk. ClientID records which tenant's
// index it came from; it must always equal the requesting client.
type Passage struct {
	DocID    string
	Text     string
	Score    float64
	ClientID string
}
