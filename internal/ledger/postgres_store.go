package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists ledger records in PostgreSQL. Commit order is a
// BIGSERIAL sequence so the restartable read has a total order even when
// timestamps collide.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed ledger.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the transactions table if it doesn't exist. Demo
// convenience; production schemas go through cmd/migrate.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			seq            BIGSERIAL PRIMARY KEY,
			id             VARCHAR(64) NOT NULL UNIQUE,
			account_id     VARCHAR(64) NOT NULL,
			merchant_id    VARCHAR(64) NOT NULL,
			amount         NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			description    TEXT NOT NULL DEFAULT '',
			risk_score     NUMERIC(5,2) NOT NULL CHECK (risk_score >= 0 AND risk_score <= 100),
			risk_tier      VARCHAR(10) NOT NULL CHECK (risk_tier IN ('low', 'medium', 'high')),
			assessment_id  VARCHAR(64) NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_account_seq
			ON transactions (account_id, seq);

		CREATE INDEX IF NOT EXISTS idx_transactions_account_created
			ON transactions (account_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, r *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, merchant_id, amount, description, risk_score, risk_tier, assessment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		r.ID,
		r.AccountID,
		r.MerchantID,
		r.Amount,
		r.Description,
		r.RiskScore,
		r.RiskTier,
		r.AssessmentID,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger record: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, accountID, afterID string, limit int) ([]*Record, error) {
	afterSeq := int64(0)
	if afterID != "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT seq FROM transactions WHERE id = $1 AND account_id = $2`,
			afterID, accountID,
		).Scan(&afterSeq)
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cursor: %w", err)
		}
	}

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, merchant_id, amount, description, risk_score, risk_tier, assessment_id, created_at
		FROM transactions
		WHERE account_id = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3
	`, accountID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		var r Record
		var createdAt time.Time
		if err := rows.Scan(&r.ID, &r.AccountID, &r.MerchantID, &r.Amount, &r.Description,
			&r.RiskScore, &r.RiskTier, &r.AssessmentID, &createdAt); err != nil {
			continue
		}
		r.CreatedAt = createdAt
		result = append(result, &r)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Window(ctx context.Context, accountID string, since time.Time) (int, float64, error) {
	var count int
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE account_id = $1 AND created_at >= $2
	`, accountID, since).Scan(&count, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute trailing window: %w", err)
	}
	return count, total.Float64, nil
}
