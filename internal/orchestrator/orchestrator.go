// Package orchestrator drives a support request through the fixed pipeline:
// classify, cache lookup, retrieve, validate, score, decide, then either
// escalate or generate and cache. The pipeline is an explicit state machine
// with short-circuit exits; each request flows through it exactly once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supportdesk/backend/internal/cache"
	"github.com/supportdesk/backend/internal/escalation"
	"github.com/supportdesk/backend/internal/intent"
	"github.com/supportdesk/backend/internal/metrics"
	"github.com/supportdesk/backend/internal/pipeline"
	"github.com/supportdesk/backend/internal/registry"
	"github.com/supportdesk/backend/internal/relevance"
	"github.com/supportdesk/backend/internal/storage/models"
	"github.com/supportdesk/backend/pkg/logger"
)

// DegradedMessage is the reply for unrecoverable stage failures. Ambiguity
// prefers escalation over silent failure, so the degraded path always reports
// escalated = true.
const DegradedMessage = "We're unable to process your request right now. Connecting you to a support agent."

// ClarificationMessage asks the user to disambiguate. Clarifications are
// conversation-specific and never cached.
const ClarificationMessage = "I'm not sure I understood your question. Could you rephrase it with a bit more detail about what you need?"

type Classifier interface {
	Classify(ctx context.Context, message string) (intent.Intent, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, snap registry.Snapshot, query string, k int) ([]pipeline.Passage, error)
}

type Validator interface {
	Validate(passages []pipeline.Passage, query string) relevance.Validation
}

type Scorer interface {
	Score(passages []pipeline.Passage, it intent.Intent) float64
}

type Policy interface {
	Decide(it intent.Intent, confidence float64) bool
}

type Router interface {
	Route(req pipeline.Request, it intent.Intent, reason string) escalation.Outcome
}

type Generator interface {
	Generate(ctx context.Context, passages []pipeline.Passage, query string) (string, error)
}

// Store persists finished conversations and escalation tickets. May be nil.
type Store interface {
	InsertConversation(conv *models.Conversation) error
	InsertEscalation(esc *models.Escalation) error
}

// Timeouts bound each stage that can block on an external service.
// Zero disables the bound for that stage.
type Timeouts struct {
	Classify time.Duration
	Retrieve time.Duration
	Generate time.Duration
	Cache    time.Duration
}

type Config struct {
	TopK     int
	Timeouts Timeouts
}

type Orchestrator struct {
	registry   *registry.Registry
	classifier Classifier
	cache      cache.ResponseCache
	retriever  Retriever
	validator  Validator
	scorer     Scorer
	policy     Policy
	router     Router
	generator  Generator
	store      Store
	cfg        Config
}

func New(
	reg *registry.Registry,
	classifier Classifier,
	responseCache cache.ResponseCache,
	retriever Retriever,
	validator Validator,
	scorer Scorer,
	policy Policy,
	router Router,
	generator Generator,
	store Store,
	cfg Config,
) *Orchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Orchestrator{
		registry:   reg,
		classifier: classifier,
		cache:      responseCache,
		retriever:  retriever,
		validator:  validator,
		scorer:     scorer,
		policy:     policy,
		router:     router,
		generator:  generator,
		store:      store,
		cfg:        cfg,
	}
}

// Pipeline states.
type state int

const (
	stateClassify state = iota
	stateCacheLookup
	stateRetrieve
	stateValidate
	stateScore
	stateDecide
	stateEscalate
	stateGenerate
	stateCacheWrite
	stateDone
)

// run carries the mutable state of one request through the machine.
type run struct {
	req        pipeline.Request
	snap       registry.Snapshot
	normQuery  string
	intent     intent.Intent
	passages   []pipeline.Passage
	validation relevance.Validation
	confidence float64
	result     pipeline.Result
	outcome    string
	cacheHit   bool
}

// Handle runs the pipeline for one request. The only error it returns is
// ErrUnknownClient, which fails fast before the pipeline starts; every stage
// failure inside the pipeline converts to the degraded escalation result.
func (o *Orchestrator) Handle(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	start := time.Now()

	// The snapshot pins (index, version) for the whole run: retrieval and the
	// final cache write both use it, so an ingestion swap mid-request can
	// never produce an entry keyed to the wrong version.
	snap, err := o.registry.Snapshot(req.ClientID)
	if err != nil {
		return pipeline.Result{}, err
	}

	if req.ConversationID == "" {
		req.ConversationID = uuid.New().String()
	}

	r := &run{
		req:       req,
		snap:      snap,
		normQuery: cache.Normalize(req.Message),
	}

	for st := stateClassify; st != stateDone; {
		st = o.step(ctx, st, r)
	}

	latency := time.Since(start)
	metrics.PipelineDuration.Observe(latency.Seconds())
	metrics.RequestTotal.WithLabelValues(r.outcome).Inc()
	metrics.ConfidenceScore.Observe(r.result.Confidence)

	o.persist(r, latency)

	logger.Info("Request handled",
		zap.String("client_id", req.ClientID),
		zap.String("conversation_id", req.ConversationID),
		zap.String("intent", r.result.Intent),
		zap.String("outcome", r.outcome),
		zap.Float64("confidence", r.result.Confidence),
		zap.Bool("escalated", r.result.Escalated),
		zap.Duration("latency", latency),
	)

	return r.result, nil
}

func (o *Orchestrator) step(ctx context.Context, st state, r *run) state {
	switch st {
	case stateClassify:
		return o.classify(ctx, r)
	case stateCacheLookup:
		return o.cacheLookup(ctx, r)
	case stateRetrieve:
		return o.retrieve(ctx, r)
	case stateValidate:
		return o.validate(r)
	case stateScore:
		return o.score(r)
	case stateDecide:
		return o.decide(r)
	case stateEscalate:
		return o.escalate(r)
	case stateGenerate:
		return o.generate(ctx, r)
	case stateCacheWrite:
		return o.cacheWrite(ctx, r)
	default:
		return stateDone
	}
}

func (o *Orchestrator) classify(ctx context.Context, r *run) state {
	defer observeStage(pipeline.StageClassify)()

	ctx, cancel := withTimeout(ctx, o.cfg.Timeouts.Classify)
	defer cancel()

	it, err := o.classifier.Classify(ctx, r.req.Message)
	if err != nil {
		return o.degrade(r, pipeline.NewStageError(pipeline.StageClassify, fmt.Errorf("%w: %v", pipeline.ErrClassificationFailure, err)))
	}

	r.intent = it
	return stateCacheLookup
}

func (o *Orchestrator) cacheLookup(ctx context.Context, r *run) state {
	if o.cache == nil {
		return stateRetrieve
	}

	defer observeStage(pipeline.StageCache)()

	ctx, cancel := withTimeout(ctx, o.cfg.Timeouts.Cache)
	defer cancel()

	cached, found, err := o.cache.Get(ctx, r.req.ClientID, r.normQuery, r.snap.Version)
	if err != nil {
		// Cache trouble is non-fatal: proceed as a miss.
		logger.Warn("Response cache lookup failed", zap.Error(err))
		metrics.CacheMisses.Inc()
		return stateRetrieve
	}
	if !found {
		metrics.CacheMisses.Inc()
		return stateRetrieve
	}

	metrics.CacheHits.Inc()
	r.cacheHit = true
	r.result = *cached
	r.outcome = "cache_hit"
	return stateDone
}

func (o *Orchestrator) retrieve(ctx context.Context, r *run) state {
	defer observeStage(pipeline.StageRetrieve)()

	ctx, cancel := withTimeout(ctx, o.cfg.Timeouts.Retrieve)
	defer cancel()

	passages, err := o.retriever.Retrieve(ctx, r.snap, r.req.Message, o.cfg.TopK)
	if err != nil {
		return o.degrade(r, pipeline.NewStageError(pipeline.StageRetrieve, fmt.Errorf("%w: %v", pipeline.ErrRetrievalFailure, err)))
	}

	r.passages = passages
	return stateValidate
}

func (o *Orchestrator) validate(r *run) state {
	defer observeStage(pipeline.StageValidate)()

	r.validation = o.validator.Validate(r.passages, r.req.Message)

	if r.validation.Verdict == relevance.Ambiguous {
		r.result = pipeline.Result{
			Reply:      ClarificationMessage,
			Intent:     r.intent.Tag,
			Confidence: r.validation.Score,
			Escalated:  false,
			Source:     pipeline.SourceDocument,
			CreatedAt:  time.Now().UTC(),
		}
		r.outcome = "clarification"
		return stateDone
	}

	return stateScore
}

func (o *Orchestrator) score(r *run) state {
	defer observeStage(pipeline.StageScore)()

	r.confidence = o.scorer.Score(r.validation.Retained, r.intent)
	return stateDecide
}

func (o *Orchestrator) decide(r *run) state {
	defer observeStage(pipeline.StageDecide)()

	if o.policy.Decide(r.intent, r.confidence) {
		return stateEscalate
	}
	return stateGenerate
}

func (o *Orchestrator) escalate(r *run) state {
	reason := "high_risk_action:" + r.intent.Tag
	outcome := o.router.Route(r.req, r.intent, reason)
	metrics.EscalationsTotal.WithLabelValues("policy").Inc()

	r.result = pipeline.Result{
		Reply:      escalationReply(outcome),
		Intent:     r.intent.Tag,
		Confidence: r.confidence,
		Escalated:  true,
		AgentID:    outcome.AgentID,
		TicketID:   outcome.TicketID,
		Source:     pipeline.SourceHuman,
		CreatedAt:  time.Now().UTC(),
	}
	r.outcome = "escalated"

	// Escalation outcomes are conversation-specific; never cached.
	return stateDone
}

func (o *Orchestrator) generate(ctx context.Context, r *run) state {
	defer observeStage(pipeline.StageGenerate)()

	ctx, cancel := withTimeout(ctx, o.cfg.Timeouts.Generate)
	defer cancel()

	reply, err := o.generator.Generate(ctx, r.validation.Retained, r.req.Message)
	if err != nil {
		return o.degrade(r, pipeline.NewStageError(pipeline.StageGenerate, fmt.Errorf("%w: %v", pipeline.ErrGenerationFailure, err)))
	}

	r.result = pipeline.Result{
		Reply:      reply,
		Intent:     r.intent.Tag,
		Confidence: r.confidence,
		Escalated:  false,
		Source:     pipeline.SourceDocument,
		CreatedAt:  time.Now().UTC(),
	}
	r.outcome = "answered"
	if r.validation.Verdict == relevance.Insufficient {
		r.outcome = "refused"
	}

	return stateCacheWrite
}

func (o *Orchestrator) cacheWrite(ctx context.Context, r *run) state {
	if o.cache == nil {
		return stateDone
	}

	ctx, cancel := withTimeout(ctx, o.cfg.Timeouts.Cache)
	defer cancel()

	// Keyed to the snapshot version taken at the start of the run.
	if err := o.cache.Put(ctx, r.req.ClientID, r.normQuery, r.snap.Version, r.result); err != nil {
		logger.Warn("Response cache write failed", zap.Error(err))
	}

	return stateDone
}

// degrade converts an unrecoverable stage failure into the safe fallback:
// a generic reply, escalated = true, and a best-effort agent assignment.
func (o *Orchestrator) degrade(r *run, stageErr *pipeline.StageError) state {
	logger.Error("Pipeline stage failed, degrading to escalation",
		zap.String("client_id", r.req.ClientID),
		zap.String("stage", string(stageErr.Stage)),
		zap.Error(stageErr),
	)

	outcome := o.router.Route(r.req, r.intent, "stage_failure:"+string(stageErr.Stage))
	metrics.EscalationsTotal.WithLabelValues("degraded").Inc()

	r.result = pipeline.Result{
		Reply:      DegradedMessage,
		Intent:     intentTagOrUnknown(r.intent),
		Confidence: 0,
		Escalated:  true,
		AgentID:    outcome.AgentID,
		TicketID:   outcome.TicketID,
		Source:     pipeline.SourceHuman,
		CreatedAt:  time.Now().UTC(),
	}
	r.outcome = "degraded"

	return stateDone
}

func (o *Orchestrator) persist(r *run, latency time.Duration) {
	if o.store == nil {
		return
	}

	conv := &models.Conversation{
		ID:             uuid.New().String(),
		ConversationID: r.req.ConversationID,
		ClientID:       r.req.ClientID,
		UserID:         r.req.UserID,
		Message:        r.req.Message,
		Reply:          r.result.Reply,
		Intent:         r.result.Intent,
		Confidence:     r.result.Confidence,
		Escalated:      r.result.Escalated,
		AgentID:        r.result.AgentID,
		TicketID:       r.result.TicketID,
		CacheHit:       r.cacheHit,
		LatencyMS:      int(latency.Milliseconds()),
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.store.InsertConversation(conv); err != nil {
		logger.Warn("Failed to persist conversation", zap.Error(err))
	}

	if r.result.Escalated && r.result.TicketID != "" {
		esc := &models.Escalation{
			TicketID:       r.result.TicketID,
			ConversationID: r.req.ConversationID,
			ClientID:       r.req.ClientID,
			UserID:         r.req.UserID,
			AgentID:        r.result.AgentID,
			Intent:         r.result.Intent,
			Reason:         r.outcome,
			CreatedAt:      time.Now().UTC(),
		}
		if err := o.store.InsertEscalation(esc); err != nil {
			logger.Warn("Failed to persist escalation", zap.Error(err))
		}
	}
}

func escalationReply(outcome escalation.Outcome) string {
	if outcome.Assigned {
		return fmt.Sprintf("I've connected you with a support specialist who can help with this request. Ticket %s, agent %s. They will be with you shortly.", outcome.TicketID, outcome.AgentID)
	}
	return fmt.Sprintf("This request requires assistance from our support team. I've created ticket %s and a team member will contact you soon.", outcome.TicketID)
}

func intentTagOrUnknown(it intent.Intent) string {
	if it.Tag == "" {
		return "unknown"
	}
	return it.Tag
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func observeStage(stage pipeline.Stage) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
}

// IsUnknownClient reports whether err is the fail-fast unknown-client error.
func IsUnknownClient(err error) bool {
	return errors.Is(err, pipeline.ErrUnknownClient)
}
