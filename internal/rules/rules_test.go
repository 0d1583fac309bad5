package rules

import (
	"context"
	"testing"
	"time"

	"github.com/spendwatch/spendwatch/internal/feature"
)

func vector(t *testing.T, amount float64, count int, spend float64, avg, dist *float64) feature.Vector {
	t.Helper()
	d := feature.NewDeriver(feature.DefaultSchema(), feature.WithSeed(1))
	v, err := d.Derive(context.Background(), feature.Candidate{
		AccountID:   "acct_1",
		MerchantID:  "merch_1",
		Amount:      amount,
		Category:    "RETAIL",
		Subtype:     "ONLINE",
		PurchasedAt: time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC),
	}, feature.Context{
		TxCountLastHour: &count,
		SpendLastHour:   &spend,
		RollingAvg:      avg,
		DistanceKm:      dist,
	})
	if err != nil {
		t.Fatalf("derive vector: %v", err)
	}
	return v
}

func fp(f float64) *float64 { return &f }

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		count  int
		spend  float64
		avg    *float64
		dist   *float64
		want   Verdict
	}{
		{
			name: "nothing exceeded", amount: 100, count: 2, spend: 300,
			avg: fp(50), dist: fp(0.1),
			want: Verdict{},
		},
		{
			name: "ratio exceeded", amount: 600, count: 2, spend: 300,
			avg: fp(100), dist: fp(0.1),
			want: Verdict{RatioExceeded: true, Flagged: true},
		},
		{
			name: "ratio at threshold does not flag", amount: 300, count: 2, spend: 300,
			avg: fp(100), dist: fp(0.1),
			want: Verdict{},
		},
		{
			name: "distance exceeded", amount: 100, count: 2, spend: 300,
			avg: fp(50), dist: fp(0.9),
			want: Verdict{DistanceExceeded: true, Flagged: true},
		},
		{
			name: "velocity exceeded", amount: 100, count: 6, spend: 300,
			avg: fp(50), dist: fp(0.1),
			want: Verdict{VelocityExceeded: true, Flagged: true},
		},
		{
			name: "velocity at threshold does not flag", amount: 100, count: 5, spend: 300,
			avg: fp(50), dist: fp(0.1),
			want: Verdict{},
		},
		{
			name: "multiple rules", amount: 600, count: 9, spend: 300,
			avg: fp(100), dist: fp(0.95),
			want: Verdict{RatioExceeded: true, DistanceExceeded: true, VelocityExceeded: true, Flagged: true},
		},
		{
			name: "missing optional features never flag", amount: 600, count: 2, spend: 300,
			want: Verdict{},
		},
	}

	e := NewEngine(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(vector(t, tt.amount, tt.count, tt.spend, tt.avg, tt.dist))
			if got != tt.want {
				t.Errorf("Evaluate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRuleToggles(t *testing.T) {
	v := vector(t, 600, 9, 300, fp(100), fp(0.95))

	ratioOnly := NewEngine(Config{RatioEnabled: true})
	got := ratioOnly.Evaluate(v)
	if !got.RatioExceeded || got.DistanceExceeded || got.VelocityExceeded {
		t.Errorf("ratio-only engine returned %+v", got)
	}

	off := NewEngine(Config{})
	if got := off.Evaluate(v); got.Flagged {
		t.Errorf("all rules disabled but Flagged: %+v", got)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	// Same candidate, same seed: the synthetic draw repeats, so the
	// verdict must repeat too.
	d := feature.NewDeriver(feature.DefaultSchema(), feature.WithSeed(42))
	cand := feature.Candidate{
		AccountID:   "acct_repeat",
		MerchantID:  "merch_1",
		Amount:      75,
		Category:    "DINING",
		Subtype:     "RESTAURANT",
		PurchasedAt: time.Date(2025, 5, 5, 19, 0, 0, 0, time.UTC),
	}

	e := NewEngine(DefaultConfig())
	v1, err := d.Derive(context.Background(), cand, feature.Context{})
	if err != nil {
		t.Fatalf("first derive: %v", err)
	}
	v2, err := d.Derive(context.Background(), cand, feature.Context{})
	if err != nil {
		t.Fatalf("second derive: %v", err)
	}

	if got1, got2 := e.Evaluate(v1), e.Evaluate(v2); got1 != got2 {
		t.Errorf("verdicts differ across identical evaluations: %+v vs %+v", got1, got2)
	}
}
