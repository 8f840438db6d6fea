package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/supportdesk/backend/internal/answer"
	"github.com/supportdesk/backend/internal/cache"
	"github.com/supportdesk/backend/internal/confidence"
	"github.com/supportdesk/backend/internal/escalation"
	"github.com/supportdesk/backend/internal/intent"
	"github.com/supportdesk/backend/internal/pipeline"
	"github.com/supportdesk/backend/internal/registry"
	"github.com/supportdesk/backend/internal/relevance"
	"github.com/supportdesk/backend/internal/storage/models"
)

type fakeClassifier struct {
	intent intent.Intent
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (intent.Intent, error) {
	f.calls++
	return f.intent, f.err
}

type fakeRetriever struct {
	passages []pipeline.Passage
	err      error
	calls    int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ registry.Snapshot, _ string, _ int) ([]pipeline.Passage, error) {
	f.calls++
	return f.passages, f.err
}

type fakeRouter struct {
	outcome escalation.Outcome
	reasons []string
}

func (f *fakeRouter) Route(_ pipeline.Request, _ intent.Intent, reason string) escalation.Outcome {
	f.reasons = append(f.reasons, reason)
	return f.outcome
}

type fakeGenerator struct {
	reply string
	err   error
	calls int
}

func (f *fakeGenerator) Generate(_ context.Context, passages []pipeline.Passage, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(passages) == 0 {
		return answer.RefusalMessage, nil
	}
	return f.reply, nil
}

type fakeStore struct {
	conversations []*models.Conversation
	escalations   []*models.Escalation
}

func (f *fakeStore) InsertConversation(conv *models.Conversation) error {
	f.conversations = append(f.conversations, conv)
	return nil
}

func (f *fakeStore) InsertEscalation(esc *models.Escalation) error {
	f.escalations = append(f.escalations, esc)
	return nil
}

func lowRiskIntent() intent.Intent {
	return intent.Intent{
		Tag:        intent.TagGeneralQuestion,
		Confidence: 0.6,
		RiskTier:   intent.RiskLow,
	}
}

func highRiskIntent() intent.Intent {
	return intent.Intent{
		Tag:        intent.TagAccountDeletion,
		Confidence: 0.9,
		RiskTier:   intent.RiskHigh,
		Actionable: true,
	}
}

type fixture struct {
	orch       *Orchestrator
	registry   *registry.Registry
	classifier *fakeClassifier
	retriever  *fakeRetriever
	router     *fakeRouter
	generator  *fakeGenerator
	cache      *cache.Memory
}

func newFixture(classifier *fakeClassifier, retriever *fakeRetriever, generator *fakeGenerator) *fixture {
	reg := registry.New()
	reg.Register("acme")

	router := &fakeRouter{outcome: escalation.Outcome{
		TicketID: "TKT-20260827-ABC123",
		AgentID:  "agent-1",
		Assigned: true,
	}}
	mem := cache.NewMemory(0)

	orch := New(
		reg,
		classifier,
		mem,
		retriever,
		relevance.NewValidator(0.25, 0.5),
		confidence.New(),
		escalation.NewPolicy(0.75),
		router,
		generator,
		nil,
		Config{TopK: 5},
	)

	return &fixture{
		orch:       orch,
		registry:   reg,
		classifier: classifier,
		retriever:  retriever,
		router:     router,
		generator:  generator,
		cache:      mem,
	}
}

func request(msg string) pipeline.Request {
	return pipeline.Request{
		ClientID: "acme",
		UserID:   "user-1",
		Message:  msg,
	}
}

func TestHandleUnknownClientFailsFast(t *testing.T) {
	f := newFixture(&fakeClassifier{intent: lowRiskIntent()}, &fakeRetriever{}, &fakeGenerator{})

	_, err := f.orch.Handle(context.Background(), pipeline.Request{
		ClientID: "ghost",
		Message:  "hello",
	})
	if !IsUnknownClient(err) {
		t.Fatalf("Handle() error = %v, want unknown client", err)
	}
	if f.classifier.calls != 0 {
		t.Error("pipeline ran for an unknown client")
	}
}

func TestHandleAnsweredPath(t *testing.T) {
	f := newFixture(
		&fakeClassifier{intent: lowRiskIntent()},
		&fakeRetriever{passages: []pipeline.Passage{
			{DocID: "guide.md", Text: "relevant content", Score: 0.8, ClientID: "acme"},
		}},
		&fakeGenerator{reply: "Here is what the documentation says."},
	)

	res, err := f.orch.Handle(context.Background(), request("how does feature x work?"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if res.Reply != "Here is what the documentation says." {
		t.Errorf("Reply = %q", res.Reply)
	}
	if res.Escalated {
		t.Error("low-risk answered request marked escalated")
	}
	if res.Source != pipeline.SourceDocument {
		t.Errorf("Source = %q, want %q", res.Source, pipeline.SourceDocument)
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		t.Errorf("Confidence = %v out of range", res.Confidence)
	}
	if len(f.router.reasons) != 0 {
		t.Errorf("router called for a non-escalated request: %v", f.router.reasons)
	}
}

func TestHandleCacheHitShortCircuits(t *testing.T) {
	f := newFixture(
		&fakeClassifier{intent: lowRiskIntent()},
		&fakeRetriever{passages: []pipeline.Passage{
			{DocID: "guide.md", Text: "relevant content", Score: 0.8, ClientID: "acme"},
		}},
		&fakeGenerator{reply: "Cached answer."},
	)

	first, err := f.orch.Handle(context.Background(), request("How does feature X work?"))
	if err != nil {
		t.Fatalf("first Handle() error = %v", err)
	}
	if f.generator.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", f.generator.calls)
	}

	// Same question, different casing and spacing: must hit the cache.
	second, err := f.orch.Handle(context.Background(), request("  how does   feature x work?! "))
	if err != nil {
		t.Fatalf("second Handle() error = %v", err)
	}

	if f.retriever.calls != 1 {
		t.Errorf("retriever calls = %d, want 1 (second run cached)", f.retriever.calls)
	}
	if f.generator.calls != 1 {
		t.Errorf("generator calls = %d, want 1 (second run cached)", f.generator.calls)
	}
	if second.Reply != first.Reply {
		t.Errorf("cached Reply = %q, want %q", second.Reply, first.Reply)
	}
}

func TestHandleVersionBumpInvalidatesCache(t *testing.T) {
	f := newFixture(
		&fakeClassifier{intent: lowRiskIntent()},
		&fakeRetriever{passages: []pipeline.Passage{
			{DocID: "guide.md", Text: "relevant content", Score: 0.8, ClientID: "acme"},
		}},
		&fakeGenerator{reply: "Answer."},
	)

	if _, err := f.orch.Handle(context.Background(), request("how does feature x work?")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	// New documents ingested: the version bumps, old entries are orphaned.
	f.registry.Swap("acme", nil, 1, time.Now())

	if _, err := f.orch.Handle(context.Background(), request("how does feature x work?")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if f.generator.calls != 2 {
		t.Errorf("generator calls = %d, want 2 after version bump", f.generator.calls)
	}
}

func TestHandleRefusalWhenNothingRelevant(t *testing.T) {
	f := newFixture(
		&fakeClassifier{intent: lowRiskIntent()},
		&fakeRetriever{passages: []pipeline.Passage{
			{DocID: "guide.md", Text: "unrelated", Score: 0.1, ClientID: "acme"},
		}},
		&fakeGenerator{reply: "should not be used"},
	)

	res, err := f.orch.Handle(context.Background(), request("something not in the docs"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if res.Reply != answer.RefusalMessage {
		t.Errorf("Reply = %q, want the refusal sentence", res.Reply)
	}
	if res.Escalated {
		t.Error("refusal marked escalated")
	}

	// Refusals are cacheable: the repeat must not re-run the pipeline.
	if _, err := f.orch.Handle(context.Background(), request("something not in the docs")); err != nil {
		t.Fatalf("repeat Handle() error = %v", err)
	}
	if f.retriever.calls != 1 {
		t.Errorf("retriever calls = %d, want 1 (refusal cached)", f.retriever.calls)
	}
}

func TestHandleClarificationNotCached(t *testing.T) {
	f := newFixture(
		&fakeClassifier{intent: lowRiskIntent()},
		&fakeRetriever{passages: []pipeline.Passage{
			{DocID: "guide.md", Text: "weakly related", Score: 0.35, ClientID: "acme"},
		}},
		&fakeGenerator{reply: "should not be used"},
	)

	res, err := f.orch.Handle(context.Background(), request("it is broken"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if res.Reply != ClarificationMessage {
		t.Errorf("Reply = %q, want the clarification prompt", res.Reply)
	}
	if res.Escalated {
		t.Error("clarification marked escalated")
	}
	if f.generator.calls != 0 {
		t.Error("generator called for an ambiguous query")
	}

	// Clarifications are conversation-specific: the repeat re-runs retrieval.
	if _, err := f.orch.Handle(context.Background(), request("it is broken")); err != nil {
		t.Fatalf("repeat Handle() error = %v", err)
	}
	if f.retriever.calls != 2 {
		t.Errorf("retriever calls = %d, want 2 (clarification never cached)", f.retriever.calls)
	}
}

func TestHandleEscalation(t *testing.T) {
	f := newFixture(
		&fakeClassifier{intent: highRiskIntent()},
		&fakeRetriever{passages: []pipeline.Passage{
			{DocID: "deletion.md", Text: "account deletion procedure", Score: 0.9, ClientID: "acme"},
		}},
		&fakeGenerator{reply: "should not be used"},
	)

	res, err := f.orch.Handle(context.Background(), request("delete my account now"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if !res.Escalated {
		t.Fatal("high-risk actionable request not escalated")
	}
	if res.Source != pipeline.SourceHuman {
		t.Errorf("Source = %q, want %q", res.Source, pipeline.SourceHuman)
	}
	if res.TicketID == "" || res.AgentID == "" {
		t.Errorf("missing ticket/agent: %+v", res)
	}
	if f.generator.calls != 0 {
		t.Error("generator called for an escalated request")
	}
	if len(f.router.reasons) != 1 {
		t.Fatalf("router calls = %d, want 1", len(f.router.reasons))
	}

	// Escalations are never cached.
	if _, err := f.orch.Handle(context.Background(), request("delete my account now")); err != nil {
		t.Fatalf("repeat Handle() error = %v", err)
	}
	if len(f.router.reasons) != 2 {
		t.Errorf("router calls = %d, want 2 (escalation never cached)", len(f.router.reasons))
	}
}

// An informational question about a high-risk topic is answered, not
// escalated.
func TestHandleHighRiskInformationalAnswered(t *testing.T) {
	it := highRiskIntent()
	it.Actionable = false
	it.Confidence = 0.4

	f := newFixture(
		&fakeClassifier{intent: it},
		&fakeRetriever{passages: []pipeline.Passage{
			{DocID: "deletion.md", Text: "account deletion procedure", Score: 0.9, ClientID: "acme"},
		}},
		&fakeGenerator{reply: "Deletion works like this."},
	)

	res, err := f.orch.Handle(context.Background(), request("what happens when an account is deleted?"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Escalated {
		t.Error("informational high-risk question escalated")
	}
	if res.Reply != "Deletion works like this." {
		t.Errorf("Reply = %q", res.Reply)
	}
}

func TestHandleDegradedOnRetrievalFailure(t *testing.T) {
	f := newFixture(
		&fakeClassifier{intent: lowRiskIntent()},
		&fakeRetriever{err: errors.New("index corrupted")},
		&fakeGenerator{reply: "should not be used"},
	)

	res, err := f.orch.Handle(context.Background(), request("how does feature x work?"))
	if err != nil {
		t.Fatalf("Handle() error = %v, degraded path must not surface errors", err)
	}

	if !res.Escalated {
		t.Error("degraded result not escalated")
	}
	if res.Reply != DegradedMessage {
		t.Errorf("Reply = %q, want the degraded message", res.Reply)
	}
	if res.Source != pipeline.SourceHuman {
		t.Errorf("Source = %q, want %q", res.Source, pipeline.SourceHuman)
	}
	if len(f.router.reasons) != 1 || f.router.reasons[0] != "stage_failure:retrieve" {
		t.Errorf("router reasons = %v", f.router.reasons)
	}

	// Failures are never cached: the next attempt retries the pipeline.
	if _, err := f.orch.Handle(context.Background(), request("how does feature x work?")); err != nil {
		t.Fatalf("repeat Handle() error = %v", err)
	}
	if f.retriever.calls != 2 {
		t.Errorf("retriever calls = %d, want 2", f.retriever.calls)
	}
}

func TestHandleDegradedOnGenerationFailure(t *testing.T) {
	f := newFixture(
		&fakeClassifier{intent: lowRiskIntent()},
		&fakeRetriever{passages: []pipeline.Passage{
			{DocID: "guide.md", Text: "relevant content", Score: 0.8, ClientID: "acme"},
		}},
		&fakeGenerator{err: errors.New("model unavailable")},
	)

	res, err := f.orch.Handle(context.Background(), request("how does feature x work?"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !res.Escalated || res.Reply != DegradedMessage {
		t.Errorf("got %+v, want degraded escalation", res)
	}
	if len(f.router.reasons) != 1 || f.router.reasons[0] != "stage_failure:generate" {
		t.Errorf("router reasons = %v", f.router.reasons)
	}
}

func TestHandleAssignsConversationID(t *testing.T) {
	f := newFixture(
		&fakeClassifier{intent: lowRiskIntent()},
		&fakeRetriever{passages: []pipeline.Passage{
			{DocID: "guide.md", Text: "relevant content", Score: 0.8, ClientID: "acme"},
		}},
		&fakeGenerator{reply: "Answer."},
	)

	res, err := f.orch.Handle(context.Background(), request("how does feature x work?"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestHandlePersistsEachTurnSeparately(t *testing.T) {
	reg := registry.New()
	reg.Register("acme")

	store := &fakeStore{}
	orch := New(
		reg,
		&fakeClassifier{intent: lowRiskIntent()},
		cache.NewMemory(0),
		&fakeRetriever{passages: []pipeline.Passage{
			{DocID: "guide.md", Text: "relevant content", Score: 0.8, ClientID: "acme"},
		}},
		relevance.NewValidator(0.25, 0.5),
		confidence.New(),
		escalation.NewPolicy(0.75),
		&fakeRouter{},
		&fakeGenerator{reply: "Answer."},
		store,
		Config{TopK: 5},
	)

	for _, msg := range []string{"how do I reset my password?", "the reset link expired"} {
		req := request(msg)
		req.ConversationID = "conv-1"
		if _, err := orch.Handle(context.Background(), req); err != nil {
			t.Fatalf("Handle(%q) error = %v", msg, err)
		}
	}

	if len(store.conversations) != 2 {
		t.Fatalf("persisted rows = %d, want 2", len(store.conversations))
	}
	first, second := store.conversations[0], store.conversations[1]
	if first.ConversationID != "conv-1" || second.ConversationID != "conv-1" {
		t.Errorf("conversation IDs = %q, %q, want conv-1", first.ConversationID, second.ConversationID)
	}
	if first.ID == "" || first.ID == second.ID {
		t.Errorf("row IDs = %q, %q, want distinct per turn", first.ID, second.ID)
	}
	if first.ID == first.ConversationID {
		t.Error("row ID reuses the conversation ID")
	}
}
