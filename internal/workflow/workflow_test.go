package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/spendwatch/spendwatch/internal/classifier"
	"github.com/spendwatch/spendwatch/internal/feature"
	"github.com/spendwatch/spendwatch/internal/ledger"
	"github.com/spendwatch/spendwatch/internal/metrics"
	"github.com/spendwatch/spendwatch/internal/risk"
	"github.com/spendwatch/spendwatch/internal/rules"
)

type fixedClassifier struct {
	verdict classifier.Verdict
	err     error
}

func (f *fixedClassifier) Classify(context.Context, feature.Vector) (classifier.Verdict, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.verdict, nil
}

// failingLedger fails Append while delegating reads.
type failingLedger struct {
	*ledger.MemoryStore
	failAppend bool
}

func (f *failingLedger) Append(ctx context.Context, r *ledger.Record) error {
	if f.failAppend {
		return errors.New("ledger down")
	}
	return f.MemoryStore.Append(ctx, r)
}

func newTestService(t *testing.T, verdict classifier.Verdict, store ledger.Store) *Service {
	t.Helper()

	scorer, err := risk.NewScorer(risk.CurveStandard)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	gate := classifier.NewFloorGate(&fixedClassifier{verdict: verdict}, 5)

	return NewService(
		feature.NewDeriver(feature.DefaultSchema(), feature.WithSeed(1)),
		gate,
		rules.NewEngine(rules.DefaultConfig()),
		scorer,
		store,
		WithAuditStore(risk.NewMemoryStore()),
	)
}

func candidate(accountID string, amount float64) (feature.Candidate, feature.Context) {
	count := 2
	spend := 100.0
	return feature.Candidate{
			AccountID:   accountID,
			MerchantID:  "merch_1",
			Amount:      amount,
			Category:    "RETAIL",
			Subtype:     "ONLINE",
			Description: "test purchase",
			PurchasedAt: time.Date(2025, 4, 7, 14, 0, 0, 0, time.UTC),
		}, feature.Context{
			TxCountLastHour: &count,
			SpendLastHour:   &spend,
		}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestEvaluateAutoCommit(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := newTestService(t, classifier.Normal, store)
	ctx := context.Background()

	cand, fctx := candidate("acct_auto", 100)
	inst, err := svc.Evaluate(ctx, cand, fctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if inst.State != StateCommitted {
		t.Fatalf("state = %q, want committed", inst.State)
	}
	if inst.Commit == nil || inst.Commit.Status != StatusRecorded {
		t.Fatalf("commit = %+v, want recorded", inst.Commit)
	}
	if inst.Assessment.Risky {
		t.Error("normal purchase marked risky")
	}

	records, _ := store.List(ctx, "acct_auto", "", 0)
	if len(records) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.RiskScore != inst.Assessment.Score || rec.RiskTier != string(inst.Assessment.Tier) {
		t.Error("ledger record missing assessment metadata")
	}
	if rec.AssessmentID != inst.Assessment.ID {
		t.Error("ledger record not linked to assessment")
	}
}

func TestEvaluateRiskyLandsPending(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := newTestService(t, classifier.Outlier, store)
	ctx := context.Background()

	cand, fctx := candidate("acct_risky", 2000)
	inst, err := svc.Evaluate(ctx, cand, fctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if inst.State != StatePendingConfirmation {
		t.Fatalf("state = %q, want pending_confirmation", inst.State)
	}
	if inst.Assessment.Score != 100 {
		t.Errorf("score = %v, want 100", inst.Assessment.Score)
	}

	// Nothing committed before confirm.
	if records, _ := store.List(ctx, "acct_risky", "", 0); len(records) != 0 {
		t.Fatalf("ledger has %d records before confirm", len(records))
	}

	pending, ok := svc.Pending("acct_risky")
	if !ok || pending.ID != inst.ID {
		t.Fatal("pending decision not retrievable")
	}
}

func TestConfirmCommitsSnapshot(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := newTestService(t, classifier.Outlier, store)
	ctx := context.Background()

	cand, fctx := candidate("acct_confirm", 500)
	inst, err := svc.Evaluate(ctx, cand, fctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	resolved, err := svc.Confirm(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if resolved.State != StateCommitted {
		t.Fatalf("state = %q, want committed", resolved.State)
	}
	if resolved.Commit.Status != StatusRecorded {
		t.Fatalf("commit status = %q, want recorded", resolved.Commit.Status)
	}

	records, _ := store.List(ctx, "acct_confirm", "", 0)
	if len(records) != 1 || records[0].Amount != 500 {
		t.Fatal("confirmed snapshot not in ledger")
	}

	// Slot is free again.
	if _, ok := svc.Pending("acct_confirm"); ok {
		t.Fatal("pending slot still occupied after confirm")
	}

	// Second confirm finds nothing.
	if _, err := svc.Confirm(ctx, inst.ID); !errors.Is(err, ErrNoPendingDecision) {
		t.Errorf("second confirm err = %v, want ErrNoPendingDecision", err)
	}
}

func TestCancelDiscardsWithoutLedgerWrite(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := newTestService(t, classifier.Outlier, store)
	ctx := context.Background()

	cand, fctx := candidate("acct_cancel", 800)
	inst, err := svc.Evaluate(ctx, cand, fctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	resolved, err := svc.Cancel(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if resolved.State != StateCancelled {
		t.Fatalf("state = %q, want cancelled", resolved.State)
	}
	if !resolved.State.IsTerminal() {
		t.Error("cancelled state not terminal")
	}

	if records, _ := store.List(ctx, "acct_cancel", "", 0); len(records) != 0 {
		t.Fatal("cancel produced a ledger write")
	}

	if _, err := svc.Cancel(ctx, inst.ID); !errors.Is(err, ErrNoPendingDecision) {
		t.Errorf("second cancel err = %v, want ErrNoPendingDecision", err)
	}
}

func TestConfirmWithNoPending(t *testing.T) {
	svc := newTestService(t, classifier.Normal, ledger.NewMemoryStore())

	if _, err := svc.Confirm(context.Background(), "wf_unknown"); !errors.Is(err, ErrNoPendingDecision) {
		t.Errorf("err = %v, want ErrNoPendingDecision", err)
	}
	if _, err := svc.Cancel(context.Background(), "wf_unknown"); !errors.Is(err, ErrNoPendingDecision) {
		t.Errorf("err = %v, want ErrNoPendingDecision", err)
	}
}

func TestConcurrentEvaluationRejected(t *testing.T) {
	svc := newTestService(t, classifier.Outlier, ledger.NewMemoryStore())
	ctx := context.Background()

	cand, fctx := candidate("acct_busy", 700)
	first, err := svc.Evaluate(ctx, cand, fctx)
	if err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}

	// Same account: rejected while pending, not overwritten.
	if _, err := svc.Evaluate(ctx, cand, fctx); !errors.Is(err, ErrConcurrentEvaluation) {
		t.Fatalf("second Evaluate err = %v, want ErrConcurrentEvaluation", err)
	}
	if pending, ok := svc.Pending("acct_busy"); !ok || pending.ID != first.ID {
		t.Fatal("original pending decision lost")
	}

	// Different account: independent.
	other, fctx2 := candidate("acct_other", 700)
	if _, err := svc.Evaluate(ctx, other, fctx2); err != nil {
		t.Fatalf("other account Evaluate: %v", err)
	}

	// Resolving frees the slot for a fresh evaluation.
	if _, err := svc.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.Evaluate(ctx, cand, fctx); err != nil {
		t.Fatalf("Evaluate after cancel: %v", err)
	}
}

func TestLedgerFailureIsResultNotError(t *testing.T) {
	store := &failingLedger{MemoryStore: ledger.NewMemoryStore(), failAppend: true}
	svc := newTestService(t, classifier.Normal, store)
	ctx := context.Background()

	failedBefore := counterValue(t, metrics.LedgerWritesTotal.WithLabelValues(string(StatusRecordingFailed)))

	cand, fctx := candidate("acct_fail", 100)
	inst, err := svc.Evaluate(ctx, cand, fctx)
	if err != nil {
		t.Fatalf("Evaluate returned error for ledger failure: %v", err)
	}

	if inst.State != StateCommitted {
		t.Fatalf("state = %q, want committed", inst.State)
	}
	if inst.Commit.Status != StatusRecordingFailed {
		t.Fatalf("commit status = %q, want recording_failed", inst.Commit.Status)
	}
	if inst.Commit.Reason == "" {
		t.Error("recording failure carries no reason")
	}
	// The assessment survives for a later retry.
	if inst.Assessment == nil || inst.Assessment.Score == 0 {
		t.Error("assessment lost on ledger failure")
	}

	failedAfter := counterValue(t, metrics.LedgerWritesTotal.WithLabelValues(string(StatusRecordingFailed)))
	if failedAfter != failedBefore+1 {
		t.Errorf("recording_failed counter moved %v, want +1", failedAfter-failedBefore)
	}
}

func TestClassifierFailureSurfaced(t *testing.T) {
	scorer, _ := risk.NewScorer(risk.CurveStandard)
	gate := classifier.NewFloorGate(&fixedClassifier{err: errors.New("model offline")}, 5)
	svc := NewService(
		feature.NewDeriver(feature.DefaultSchema(), feature.WithSeed(1)),
		gate,
		rules.NewEngine(rules.DefaultConfig()),
		scorer,
		ledger.NewMemoryStore(),
	)

	cand, fctx := candidate("acct_dep", 100)
	if _, err := svc.Evaluate(context.Background(), cand, fctx); !errors.Is(err, ErrClassifierUnavailable) {
		t.Fatalf("err = %v, want ErrClassifierUnavailable", err)
	}
}

func TestFloorBypassForcesNormal(t *testing.T) {
	// Inner classifier screams outlier, but the amount is below the floor.
	svc := newTestService(t, classifier.Outlier, ledger.NewMemoryStore())

	cand, fctx := candidate("acct_floor", 4)
	inst, err := svc.Evaluate(context.Background(), cand, fctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if inst.Assessment.ClassifierVerdict != classifier.Normal {
		t.Errorf("verdict = %q, want forced normal", inst.Assessment.ClassifierVerdict)
	}
	if inst.Assessment.Score != 10 {
		t.Errorf("score = %v, want 10", inst.Assessment.Score)
	}
	if inst.State != StateCommitted {
		t.Errorf("state = %q, want auto-committed", inst.State)
	}
}

func TestRacingResolutionsSingleWinner(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := newTestService(t, classifier.Outlier, store)
	ctx := context.Background()

	cand, fctx := candidate("acct_race", 900)
	inst, err := svc.Evaluate(ctx, cand, fctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(confirm bool) {
			defer wg.Done()
			var err error
			if confirm {
				_, err = svc.Confirm(ctx, inst.ID)
			} else {
				_, err = svc.Cancel(ctx, inst.ID)
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrNoPendingDecision) {
				t.Errorf("unexpected resolution error: %v", err)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("%d resolutions won, want exactly 1", wins)
	}
	// At most one commit regardless of who won.
	if records, _ := store.List(ctx, "acct_race", "", 0); len(records) > 1 {
		t.Fatalf("snapshot committed %d times", len(records))
	}
}

func TestRescreen(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := newTestService(t, classifier.Normal, store)
	ctx := context.Background()

	for _, amount := range []float64{50, 75, 120} {
		cand, fctx := candidate("acct_rescreen", amount)
		if _, err := svc.Evaluate(ctx, cand, fctx); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
	}

	rows, err := svc.Rescreen(ctx, "acct_rescreen", 10)
	if err != nil {
		t.Fatalf("Rescreen: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rescreened %d records, want 3", len(rows))
	}
	for _, row := range rows {
		if row.Record == nil || row.Verdict == "" {
			t.Errorf("incomplete rescreen row: %+v", row)
		}
	}

	// Read-only: ledger unchanged.
	if records, _ := store.List(ctx, "acct_rescreen", "", 0); len(records) != 3 {
		t.Fatal("rescreen mutated the ledger")
	}
}
