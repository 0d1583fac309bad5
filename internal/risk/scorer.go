package risk

import (
	"fmt"
	"time"

	"github.com/spendwatch/spendwatch/internal/classifier"
	"github.com/spendwatch/spendwatch/internal/idgen"
	"github.com/spendwatch/spendwatch/internal/rules"
)

// Curve names a score curve. Both curves clamp to [0,100], keep the risky
// branch above the non-risky branch for equal amounts, and are monotonic
// in amount within a branch.
type Curve string

const (
	// CurveStandard is the default curve.
	CurveStandard Curve = "standard"
	// CurveVelocity is the alternate curve used on velocity-aware paths:
	// steeper in amount when risky, gentler when not.
	CurveVelocity Curve = "velocity"
)

// Scorer computes assessments from verdicts.
type Scorer struct {
	curve Curve
}

// NewScorer creates a Scorer using the named curve.
func NewScorer(curve Curve) (*Scorer, error) {
	switch curve {
	case CurveStandard, CurveVelocity:
		return &Scorer{curve: curve}, nil
	default:
		return nil, fmt.Errorf("risk: unknown score curve %q", curve)
	}
}

// Score combines the verdicts for one candidate into an Assessment.
// A purchase is risky when the classifier calls it an outlier OR any
// business rule flags it; the rules fail closed against the model.
func (s *Scorer) Score(accountID string, cv classifier.Verdict, rv rules.Verdict, amount float64) *Assessment {
	risky := cv == classifier.Outlier || rv.Flagged
	score := clamp(s.raw(risky, amount))

	return &Assessment{
		ID:                idgen.WithPrefix("risk_"),
		AccountID:         accountID,
		ClassifierVerdict: cv,
		Rules:             rv,
		Risky:             risky,
		Score:             score,
		Tier:              TierFor(score),
		Curve:             s.curve,
		Amount:            amount,
		EvaluatedAt:       time.Now().UTC(),
	}
}

func (s *Scorer) raw(risky bool, amount float64) float64 {
	switch s.curve {
	case CurveVelocity:
		if risky {
			return min(60+amount/10, 100)
		}
		return max(10, min(30+amount/50, 60))
	default:
		if risky {
			return 50 + min(amount/20, 50)
		}
		return max(10, min(amount/20, 50))
	}
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
