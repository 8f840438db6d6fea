package models

import "time"

// Client is the persisted per-tenant bookkeeping row. The index itself is
// rebuilt by ingestion; the version counter survives restarts so cache keys
// stay meaningful.
type Client struct {
	ID             string
	Version        int64
	DocumentCount  int
	LastIngestedAt time.Time
}

type Document struct {
	ID          string
	ClientID    string
	Filename    string
	ContentHash string
	ChunkCount  int
	IngestedAt  time.Time
}

// Conversation is one finished pipeline run. ID identifies the row;
// ConversationID groups the turns of a multi-message session.
type Conversation struct {
	ID             string
	ConversationID string
	ClientID       string
	UserID         string
	Message        string
	Reply          string
	Intent         string
	Confidence     float64
	Escalated      bool
	AgentID        string
	TicketID       string
	CacheHit       bool
	LatencyMS      int
	CreatedAt      time.Time
}

type Escalation struct {
	TicketID       string
	ConversationID string
	ClientID       string
	UserID         string
	AgentID        string
	Intent         string
	Reason         string
	CreatedAt      time.Time
}
