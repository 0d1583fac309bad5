package risk

import (
	"testing"

	"github.com/spendwatch/spendwatch/internal/classifier"
	"github.com/spendwatch/spendwatch/internal/rules"
)

func mustScorer(t *testing.T, curve Curve) *Scorer {
	t.Helper()
	s, err := NewScorer(curve)
	if err != nil {
		t.Fatalf("NewScorer(%q): %v", curve, err)
	}
	return s
}

func TestNewScorerRejectsUnknownCurve(t *testing.T) {
	if _, err := NewScorer("parabolic"); err == nil {
		t.Fatal("unknown curve accepted")
	}
}

func TestScoreScenarios(t *testing.T) {
	tests := []struct {
		name      string
		amount    float64
		verdict   classifier.Verdict
		rules     rules.Verdict
		wantRisky bool
		wantScore float64
		wantTier  Tier
	}{
		{
			name:   "small normal purchase floors at 10",
			amount: 4, verdict: classifier.Normal,
			wantRisky: false, wantScore: 10, wantTier: TierLow,
		},
		{
			name:   "large outlier saturates at 100",
			amount: 2000, verdict: classifier.Outlier,
			wantRisky: true, wantScore: 100, wantTier: TierHigh,
		},
		{
			name:   "rule flag overrides normal verdict",
			amount: 600, verdict: classifier.Normal,
			rules:     rules.Verdict{RatioExceeded: true, Flagged: true},
			wantRisky: true, wantScore: 80, wantTier: TierMedium,
		},
		{
			name:   "mid-range normal purchase",
			amount: 400, verdict: classifier.Normal,
			wantRisky: false, wantScore: 20, wantTier: TierLow,
		},
		{
			name:   "normal branch caps at 50",
			amount: 5000, verdict: classifier.Normal,
			wantRisky: false, wantScore: 50, wantTier: TierLow,
		},
	}

	s := mustScorer(t, CurveStandard)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := s.Score("acct_1", tt.verdict, tt.rules, tt.amount)
			if a.Risky != tt.wantRisky {
				t.Errorf("Risky = %v, want %v", a.Risky, tt.wantRisky)
			}
			if a.Score != tt.wantScore {
				t.Errorf("Score = %v, want %v", a.Score, tt.wantScore)
			}
			if a.Tier != tt.wantTier {
				t.Errorf("Tier = %q, want %q", a.Tier, tt.wantTier)
			}
			if a.ID == "" || a.EvaluatedAt.IsZero() {
				t.Error("assessment missing ID or timestamp")
			}
		})
	}
}

func TestScoreBoundsAndMonotonicity(t *testing.T) {
	amounts := []float64{0.01, 1, 4, 5, 20, 100, 399, 400, 600, 999, 1000, 2000, 5000, 1e6}

	for _, curve := range []Curve{CurveStandard, CurveVelocity} {
		s := mustScorer(t, curve)

		var prevRisky, prevNormal float64
		for i, amount := range amounts {
			risky := s.Score("a", classifier.Outlier, rules.Verdict{}, amount)
			normal := s.Score("a", classifier.Normal, rules.Verdict{}, amount)

			for _, a := range []*Assessment{risky, normal} {
				if a.Score < 0 || a.Score > 100 {
					t.Fatalf("curve %s amount %v: score %v out of [0,100]", curve, amount, a.Score)
				}
			}

			// Risky branch never scores below the non-risky branch.
			if risky.Score < normal.Score {
				t.Errorf("curve %s amount %v: risky %v < normal %v", curve, amount, risky.Score, normal.Score)
			}

			// Monotone in amount within each branch.
			if i > 0 {
				if risky.Score < prevRisky {
					t.Errorf("curve %s: risky score decreased at amount %v", curve, amount)
				}
				if normal.Score < prevNormal {
					t.Errorf("curve %s: normal score decreased at amount %v", curve, amount)
				}
			}
			prevRisky, prevNormal = risky.Score, normal.Score
		}
	}
}

func TestVelocityCurve(t *testing.T) {
	s := mustScorer(t, CurveVelocity)

	a := s.Score("a", classifier.Outlier, rules.Verdict{}, 100)
	if a.Score != 70 {
		t.Errorf("risky velocity score for 100 = %v, want 70", a.Score)
	}
	if a.Curve != CurveVelocity {
		t.Errorf("Curve = %q, want velocity", a.Curve)
	}

	a = s.Score("a", classifier.Normal, rules.Verdict{}, 100)
	if a.Score != 32 {
		t.Errorf("normal velocity score for 100 = %v, want 32", a.Score)
	}

	a = s.Score("a", classifier.Normal, rules.Verdict{}, 1e6)
	if a.Score != 60 {
		t.Errorf("normal velocity score ceiling = %v, want 60", a.Score)
	}
}

func TestTierBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  Tier
	}{
		{0, TierLow},
		{50, TierLow},     // exactly 50 is low
		{50.01, TierMedium},
		{80, TierMedium},  // exactly 80 is medium
		{80.01, TierHigh},
		{100, TierHigh},
	}

	for _, tt := range tests {
		if got := TierFor(tt.score); got != tt.want {
			t.Errorf("TierFor(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
