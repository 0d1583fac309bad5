// Package ledger is the append-only record of committed purchases with
// their risk metadata, and the chronological read-back the dashboard
// trend display consumes.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("ledger: record not found")

// Record is one committed purchase. Risk metadata is attached at commit
// time from the assessment that approved it.
type Record struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	MerchantID   string    `json:"merchant_id"`
	Amount       float64   `json:"amount"`
	Description  string    `json:"description"`
	RiskScore    float64   `json:"risk_score"`
	RiskTier     string    `json:"risk_tier"`
	AssessmentID string    `json:"assessment_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the ledger persistence interface. Reads are chronological and
// restartable: List returns records strictly after afterID in commit
// order, so a caller can resume from the last ID it saw.
type Store interface {
	Append(ctx context.Context, r *Record) error
	List(ctx context.Context, accountID, afterID string, limit int) ([]*Record, error)
	// Window reports the account's trailing activity since the given
	// time: number of records and total amount.
	Window(ctx context.Context, accountID string, since time.Time) (count int, total float64, err error)
}
