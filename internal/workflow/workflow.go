// Package workflow drives a purchase from evaluation through commit. Each
// submission is a per-instance state machine: unflagged purchases commit
// to the ledger automatically, flagged ones pause for explicit operator
// confirmation.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/spendwatch/spendwatch/internal/classifier"
	"github.com/spendwatch/spendwatch/internal/feature"
	"github.com/spendwatch/spendwatch/internal/idgen"
	"github.com/spendwatch/spendwatch/internal/ledger"
	"github.com/spendwatch/spendwatch/internal/metrics"
	"github.com/spendwatch/spendwatch/internal/risk"
	"github.com/spendwatch/spendwatch/internal/rules"
	"github.com/spendwatch/spendwatch/internal/traces"
)

// State is a workflow instance's position in its lifecycle.
type State string

const (
	StateDraft               State = "draft"
	StateEvaluated           State = "evaluated"
	StatePendingConfirmation State = "pending_confirmation"
	StateCommitted           State = "committed"
	StateCancelled           State = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateCommitted || s == StateCancelled
}

// CommitStatus is the outcome of the ledger write inside Committed.
type CommitStatus string

const (
	StatusRecorded        CommitStatus = "recorded"
	StatusRecordingFailed CommitStatus = "recording_failed"
)

// CommitResult reports how the commit resolved. A failed ledger write is
// a result, not an error: the assessment is preserved and the caller may
// retry the commit without recomputing risk.
type CommitResult struct {
	Status CommitStatus   `json:"status"`
	Reason string         `json:"reason,omitempty"`
	Record *ledger.Record `json:"record,omitempty"`
}

// Workflow misuse errors.
var (
	// ErrConcurrentEvaluation rejects a new evaluation while the account
	// still has an unresolved pending decision.
	ErrConcurrentEvaluation = errors.New("workflow: account already has a pending decision")
	// ErrNoPendingDecision rejects confirm/cancel when nothing is pending.
	ErrNoPendingDecision = errors.New("workflow: no pending decision")
	// ErrClassifierUnavailable marks a dependency failure on the model
	// service. The candidate was rejected before any assessment existed.
	ErrClassifierUnavailable = errors.New("workflow: classifier unavailable")
)

// Instance is one submission's state. The candidate and assessment are
// snapshotted at evaluation time; confirm commits the snapshot without
// re-deriving anything.
type Instance struct {
	ID         string            `json:"id"`
	State      State             `json:"state"`
	Candidate  feature.Candidate `json:"candidate"`
	Assessment *risk.Assessment  `json:"assessment"`
	Commit     *CommitResult     `json:"commit,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Notifier receives workflow lifecycle events, e.g. for the realtime
// stream. Implementations must not block.
type Notifier interface {
	NotifyPending(inst *Instance)
	NotifyResolved(inst *Instance)
	NotifyCommitted(rec *ledger.Record, a *risk.Assessment)
}

// Service owns all workflow instances and enforces the at-most-one
// pending decision per account invariant.
type Service struct {
	deriver *feature.Deriver
	clf     classifier.Classifier
	gate    *classifier.FloorGate
	rules   *rules.Engine
	scorer  *risk.Scorer
	ledger  ledger.Store
	audit   risk.Store

	logger   *slog.Logger
	notifier Notifier

	// accountLocks serializes evaluation and resolution per account.
	// Different accounts share no mutable state and proceed in parallel.
	accountLocks sync.Map // accountID → *sync.Mutex

	mu               sync.Mutex
	pendingByAccount map[string]*Instance
	byID             map[string]*Instance
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithNotifier sets the lifecycle event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithAuditStore sets the assessment audit store. Writes are asynchronous
// and best-effort; an audit failure never fails an evaluation.
func WithAuditStore(store risk.Store) Option {
	return func(s *Service) { s.audit = store }
}

// NewService wires the evaluation pipeline. clf should already be wrapped
// in the FloorGate; pass the gate separately so bypasses can be observed.
func NewService(
	deriver *feature.Deriver,
	gate *classifier.FloorGate,
	ruleEngine *rules.Engine,
	scorer *risk.Scorer,
	ledgerStore ledger.Store,
	opts ...Option,
) *Service {
	s := &Service{
		deriver:          deriver,
		clf:              gate,
		gate:             gate,
		rules:            ruleEngine,
		scorer:           scorer,
		ledger:           ledgerStore,
		logger:           slog.Default(),
		pendingByAccount: make(map[string]*Instance),
		byID:             make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate runs one candidate through derivation, classification, rules,
// and scoring, then either auto-commits or parks it pending confirmation.
// The account is locked for the duration, so the ledger commit is the
// only suspension point and a half-evaluated candidate is never visible.
func (s *Service) Evaluate(ctx context.Context, cand feature.Candidate, fctx feature.Context) (*Instance, error) {
	ctx, span := traces.StartSpan(ctx, "workflow.Evaluate",
		traces.AccountID(cand.AccountID), traces.MerchantID(cand.MerchantID), traces.Amount(cand.Amount))
	defer span.End()

	lock := s.lockAccount(cand.AccountID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	_, hasPending := s.pendingByAccount[cand.AccountID]
	s.mu.Unlock()
	if hasPending {
		return nil, ErrConcurrentEvaluation
	}

	inst := &Instance{
		ID:        idgen.WithPrefix("wf_"),
		State:     StateDraft,
		Candidate: cand,
		CreatedAt: time.Now().UTC(),
	}

	vector, err := s.deriver.Derive(ctx, cand, fctx)
	if err != nil {
		return nil, err
	}
	for _, f := range vector.SyntheticFields() {
		metrics.SyntheticFeaturesTotal.WithLabelValues(f).Inc()
	}

	verdict, err := s.clf.Classify(ctx, vector)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classifier unavailable")
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	if s.gate != nil && s.gate.Bypassed(vector) {
		metrics.ClassifierVerdictsTotal.WithLabelValues("floor_bypass").Inc()
	} else {
		metrics.ClassifierVerdictsTotal.WithLabelValues(string(verdict)).Inc()
	}

	ruleVerdict := s.rules.Evaluate(vector)
	assessment := s.scorer.Score(cand.AccountID, verdict, ruleVerdict, cand.Amount)
	metrics.RiskScore.Observe(assessment.Score)
	span.SetAttributes(traces.Score(assessment.Score), traces.Verdict(string(verdict)))

	inst.Assessment = assessment
	inst.State = StateEvaluated
	inst.UpdatedAt = time.Now().UTC()

	s.recordAudit(ctx, assessment)

	s.logger.Info("candidate evaluated",
		"workflow_id", inst.ID,
		"account_id", cand.AccountID,
		"amount", cand.Amount,
		"verdict", verdict,
		"rules_flagged", ruleVerdict.Flagged,
		"score", assessment.Score,
		"tier", assessment.Tier)

	if !assessment.Risky {
		s.commit(ctx, inst)
		s.remember(inst)
		metrics.EvaluationsTotal.WithLabelValues(string(inst.State)).Inc()
		return s.snapshot(inst), nil
	}

	inst.State = StatePendingConfirmation
	inst.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.pendingByAccount[cand.AccountID] = inst
	s.byID[inst.ID] = inst
	s.mu.Unlock()

	metrics.PendingDecisions.Inc()
	metrics.EvaluationsTotal.WithLabelValues(string(StatePendingConfirmation)).Inc()
	if s.notifier != nil {
		s.notifier.NotifyPending(s.snapshot(inst))
	}

	return s.snapshot(inst), nil
}

// Confirm commits the pending decision for the given workflow. The
// original snapshot is committed; amounts and IDs are not re-derived.
func (s *Service) Confirm(ctx context.Context, workflowID string) (*Instance, error) {
	ctx, span := traces.StartSpan(ctx, "workflow.Confirm", traces.WorkflowID(workflowID))
	defer span.End()

	inst, lock, err := s.takePending(workflowID)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	s.commit(ctx, inst)
	metrics.PendingDecisions.Dec()
	if s.notifier != nil {
		s.notifier.NotifyResolved(s.snapshot(inst))
	}
	return s.snapshot(inst), nil
}

// Cancel discards the pending decision for the given workflow. No ledger
// write happens; the candidate is dropped.
func (s *Service) Cancel(ctx context.Context, workflowID string) (*Instance, error) {
	_, span := traces.StartSpan(ctx, "workflow.Cancel", traces.WorkflowID(workflowID))
	defer span.End()

	inst, lock, err := s.takePending(workflowID)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	s.mu.Lock()
	inst.State = StateCancelled
	inst.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
	metrics.PendingDecisions.Dec()
	metrics.EvaluationsTotal.WithLabelValues(string(StateCancelled)).Inc()

	s.logger.Info("pending decision cancelled",
		"workflow_id", inst.ID,
		"account_id", inst.Candidate.AccountID)

	if s.notifier != nil {
		s.notifier.NotifyResolved(s.snapshot(inst))
	}
	return s.snapshot(inst), nil
}

// Pending returns the account's pending decision, if any.
func (s *Service) Pending(accountID string) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.pendingByAccount[accountID]
	if !ok {
		return nil, false
	}
	return s.snapshot(inst), true
}

// Get returns any known workflow instance by ID.
func (s *Service) Get(workflowID string) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.byID[workflowID]
	if !ok {
		return nil, false
	}
	return s.snapshot(inst), true
}

// takePending resolves a workflow ID to its pending instance, removes it
// from the pending slot, and returns with the account lock held. Exactly
// one of two racing confirm/cancel calls wins; the loser observes the
// slot empty and gets ErrNoPendingDecision.
func (s *Service) takePending(workflowID string) (*Instance, *sync.Mutex, error) {
	s.mu.Lock()
	inst, ok := s.byID[workflowID]
	s.mu.Unlock()
	if !ok || inst.State != StatePendingConfirmation {
		return nil, nil, ErrNoPendingDecision
	}

	lock := s.lockAccount(inst.Candidate.AccountID)
	lock.Lock()

	s.mu.Lock()
	current, ok := s.pendingByAccount[inst.Candidate.AccountID]
	if !ok || current.ID != workflowID || current.State != StatePendingConfirmation {
		s.mu.Unlock()
		lock.Unlock()
		return nil, nil, ErrNoPendingDecision
	}
	delete(s.pendingByAccount, inst.Candidate.AccountID)
	s.mu.Unlock()

	return inst, lock, nil
}

// commit attempts the ledger write and resolves the instance to
// Committed. The write is the only I/O here; its failure is captured in
// the CommitResult and never corrupts the assessment.
func (s *Service) commit(ctx context.Context, inst *Instance) {
	rec := &ledger.Record{
		ID:           idgen.WithPrefix("txn_"),
		AccountID:    inst.Candidate.AccountID,
		MerchantID:   inst.Candidate.MerchantID,
		Amount:       inst.Candidate.Amount,
		Description:  inst.Candidate.Description,
		RiskScore:    inst.Assessment.Score,
		RiskTier:     string(inst.Assessment.Tier),
		AssessmentID: inst.Assessment.ID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.ledger.Append(ctx, rec); err != nil {
		s.mu.Lock()
		inst.State = StateCommitted
		inst.Commit = &CommitResult{
			Status: StatusRecordingFailed,
			Reason: err.Error(),
		}
		inst.UpdatedAt = time.Now().UTC()
		s.mu.Unlock()
		metrics.LedgerWritesTotal.WithLabelValues(string(StatusRecordingFailed)).Inc()
		s.logger.Error("ledger write failed",
			"workflow_id", inst.ID,
			"account_id", rec.AccountID,
			"error", err)
		return
	}

	s.mu.Lock()
	inst.State = StateCommitted
	inst.Commit = &CommitResult{
		Status: StatusRecorded,
		Record: rec,
	}
	inst.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
	metrics.LedgerWritesTotal.WithLabelValues(string(StatusRecorded)).Inc()

	s.logger.Info("purchase recorded",
		"workflow_id", inst.ID,
		"transaction_id", rec.ID,
		"account_id", rec.AccountID,
		"amount", rec.Amount,
		"risk_tier", rec.RiskTier)

	if s.notifier != nil {
		s.notifier.NotifyCommitted(rec, inst.Assessment)
	}
}

// recordAudit persists the assessment asynchronously. Audit is
// best-effort: a store failure is logged, never surfaced.
func (s *Service) recordAudit(ctx context.Context, a *risk.Assessment) {
	if s.audit == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := s.audit.Record(bg, a); err != nil {
			s.logger.Warn("audit record failed", "assessment_id", a.ID, "error", err)
		}
	}()
}

func (s *Service) lockAccount(accountID string) *sync.Mutex {
	lock, _ := s.accountLocks.LoadOrStore(accountID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (s *Service) remember(inst *Instance) {
	s.mu.Lock()
	s.byID[inst.ID] = inst
	s.mu.Unlock()
}

// snapshot copies an instance so callers cannot mutate service state.
func (s *Service) snapshot(inst *Instance) *Instance {
	cp := *inst
	if inst.Commit != nil {
		c := *inst.Commit
		cp.Commit = &c
	}
	return &cp
}
