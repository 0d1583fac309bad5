package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spendwatch/spendwatch/internal/classifier"
)

// PostgresStore persists assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_assessments table if it doesn't exist. Demo
// convenience; production schemas go through cmd/migrate.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_assessments (
			id            VARCHAR(64) PRIMARY KEY,
			account_id    VARCHAR(64) NOT NULL,
			verdict       VARCHAR(10) NOT NULL CHECK (verdict IN ('outlier', 'normal')),
			rules         JSONB NOT NULL DEFAULT '{}',
			risky         BOOLEAN NOT NULL,
			score         NUMERIC(5,2) NOT NULL CHECK (score >= 0 AND score <= 100),
			tier          VARCHAR(10) NOT NULL CHECK (tier IN ('low', 'medium', 'high')),
			curve         VARCHAR(20) NOT NULL,
			amount        NUMERIC(12,2) NOT NULL,
			evaluated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_account
			ON risk_assessments (account_id, evaluated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_risky
			ON risk_assessments (evaluated_at DESC) WHERE risky;
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, a *Assessment) error {
	rulesJSON, err := json.Marshal(a.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rule verdict: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, account_id, verdict, rules, risky, score, tier, curve, amount, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		a.ID,
		a.AccountID,
		string(a.ClassifierVerdict),
		rulesJSON,
		a.Risky,
		a.Score,
		string(a.Tier),
		string(a.Curve),
		a.Amount,
		a.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, verdict, rules, risky, score, tier, curve, amount, evaluated_at
		FROM risk_assessments
		WHERE account_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Assessment
	for rows.Next() {
		var a Assessment
		var verdict, tier, curve string
		var rulesJSON []byte
		var evaluatedAt time.Time

		if err := rows.Scan(&a.ID, &a.AccountID, &verdict, &rulesJSON, &a.Risky,
			&a.Score, &tier, &curve, &a.Amount, &evaluatedAt); err != nil {
			continue
		}
		a.ClassifierVerdict = classifier.Verdict(verdict)
		a.Tier = Tier(tier)
		a.Curve = Curve(curve)
		a.EvaluatedAt = evaluatedAt
		_ = json.Unmarshal(rulesJSON, &a.Rules)
		result = append(result, &a)
	}
	return result, rows.Err()
}
