package escalation

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusOffline   Status = "offline"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusAvailable, StatusBusy, StatusOffline:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid agent status %q", s)
	}
}

// Agent is a human support agent. Agents are never deleted; they retire via
// status.
type Agent struct {
	ID             string
	Status         Status
	ConversationID string
}

// Assignment records one escalated conversation handed to an agent.
type Assignment struct {
	ConversationID string
	AgentID        string
	AssignedAt     time.Time
}

// Pool tracks agent status and assignments. Assignment is compare-and-set
// under the pool lock: an agent observed available transitions to busy in the
// same critical section, so two conversations can never book the same agent.
type Pool struct {
	mu          sync.Mutex
	agents      map[string]*Agent
	assignments map[string]Assignment
}

func NewPool() *Pool {
	return &Pool{
		agents:      make(map[string]*Agent),
		assignments: make(map[string]Assignment),
	}
}

// Register adds an agent in the available state. Re-registering an existing
// agent keeps its current status.
func (p *Pool) Register(agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.agents[agentID]; !ok {
		p.agents[agentID] = &Agent{ID: agentID, Status: StatusAvailable}
	}
}

func (p *Pool) UpdateStatus(agentID string, status Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return fmt.Errorf("unknown agent %q", agentID)
	}

	if agent.Status == StatusBusy && status != StatusBusy {
		// Leaving busy closes the current assignment.
		delete(p.assignments, agent.ConversationID)
		agent.ConversationID = ""
	}
	agent.Status = status

	return nil
}

// Assign books one available agent for the conversation. Selection is
// deterministic (lowest agent ID) so repeated runs behave reproducibly.
// Returns false when every agent is busy or offline.
func (p *Pool) Assign(conversationID string) (Assignment, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.agents))
	for id, agent := range p.agents {
		if agent.Status == StatusAvailable {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return Assignment{}, false
	}
	sort.Strings(ids)

	agent := p.agents[ids[0]]
	agent.Status = StatusBusy
	agent.ConversationID = conversationID

	assignment := Assignment{
		ConversationID: conversationID,
		AgentID:        agent.ID,
		AssignedAt:     time.Now().UTC(),
	}
	p.assignments[conversationID] = assignment

	return assignment, true
}

// Release returns a busy agent to the pool when its conversation resolves.
func (p *Pool) Release(agentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return fmt.Errorf("unknown agent %q", agentID)
	}
	if agent.Status != StatusBusy {
		return fmt.Errorf("agent %q is not assigned", agentID)
	}

	delete(p.assignments, agent.ConversationID)
	agent.ConversationID = ""
	agent.Status = StatusAvailable

	return nil
}

func (p *Pool) Agents() []Agent {
	p.mu.Lock()
	defer p.mu.Unlock()

	agents := make([]Agent, 0, len(p.agents))
	for _, a := range p.agents {
		agents = append(agents, *a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, a := range p.agents {
		if a.Status == StatusAvailable {
			n++
		}
	}
	return n
}
