// Package risk combines the classifier verdict and rule verdict into a
// bounded risk score with a display tier, and persists assessments for
// audit.
package risk

import (
	"context"
	"time"

	"github.com/spendwatch/spendwatch/internal/classifier"
	"github.com/spendwatch/spendwatch/internal/rules"
)

// Tier is the coarse display bucket derived from the score.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Tier thresholds. Exactly 80 is medium; exactly 50 is low.
const (
	highThreshold   = 80
	mediumThreshold = 50
)

// Assessment is the immutable outcome of scoring one purchase candidate.
// Created fresh per candidate, never mutated, attached to the eventual
// ledger record for audit.
type Assessment struct {
	ID                string             `json:"id"`
	AccountID         string             `json:"account_id"`
	ClassifierVerdict classifier.Verdict `json:"classifier_verdict"`
	Rules             rules.Verdict      `json:"rules"`
	Risky             bool               `json:"risky"`
	Score             float64            `json:"score"`
	Tier              Tier               `json:"tier"`
	Curve             Curve              `json:"curve"`
	Amount            float64            `json:"amount"`
	EvaluatedAt       time.Time          `json:"evaluated_at"`
}

// Store persists assessments for audit and trend read-back.
type Store interface {
	Record(ctx context.Context, a *Assessment) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*Assessment, error)
}

// TierFor buckets a score.
func TierFor(score float64) Tier {
	switch {
	case score > highThreshold:
		return TierHigh
	case score > mediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}
