package escalation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supportdesk/backend/internal/intent"
	"github.com/supportdesk/backend/internal/pipeline"
	"github.com/supportdesk/backend/pkg/logger"
)

// Event is published when a conversation is escalated, whether or not an
// agent could be assigned.
type Event struct {
	TicketID       string    `json:"ticket_id"`
	ConversationID string    `json:"conversation_id"`
	ClientID       string    `json:"client_id"`
	UserID         string    `json:"user_id"`
	AgentID        string    `json:"agent_id,omitempty"`
	Intent         string    `json:"intent"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

// EventSink receives escalation events; the websocket hub implements it.
type EventSink interface {
	Broadcast(event Event)
}

// Outcome reports what the router did for an escalated conversation.
type Outcome struct {
	TicketID string
	AgentID  string
	Assigned bool
}

// Router assigns escalated conversations to human agents and publishes the
// resulting events. An exhausted pool still yields a ticket: escalation is
// never downgraded for capacity reasons.
type Router struct {
	pool *Pool
	sink EventSink
}

func NewRouter(pool *Pool, sink EventSink) *Router {
	return &Router{pool: pool, sink: sink}
}

func (r *Router) Pool() *Pool {
	return r.pool
}

// Route creates a ticket for the conversation and tries to book an agent.
func (r *Router) Route(req pipeline.Request, it intent.Intent, reason string) Outcome {
	outcome := Outcome{TicketID: newTicketID()}

	assignment, ok := r.pool.Assign(req.ConversationID)
	if ok {
		outcome.AgentID = assignment.AgentID
		outcome.Assigned = true
	} else {
		logger.Warn("No agent available for escalation",
			zap.String("ticket_id", outcome.TicketID),
			zap.String("client_id", req.ClientID),
		)
	}

	if r.sink != nil {
		r.sink.Broadcast(Event{
			TicketID:       outcome.TicketID,
			ConversationID: req.ConversationID,
			ClientID:       req.ClientID,
			UserID:         req.UserID,
			AgentID:        outcome.AgentID,
			Intent:         it.Tag,
			Reason:         reason,
			CreatedAt:      time.Now().UTC(),
		})
	}

	logger.Info("Conversation escalated",
		zap.String("ticket_id", outcome.TicketID),
		zap.String("client_id", req.ClientID),
		zap.String("intent", it.Tag),
		zap.String("agent_id", outcome.AgentID),
		zap.Bool("assigned", outcome.Assigned),
	)

	return outcome
}

func newTicketID() string {
	stamp := time.Now().UTC().Format("20060102")
	unique := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("TKT-%s-%s", stamp, unique)
}
