package workflow

import (
	"context"
	"fmt"

	"github.com/spendwatch/spendwatch/internal/classifier"
	"github.com/spendwatch/spendwatch/internal/feature"
	"github.com/spendwatch/spendwatch/internal/ledger"
	"github.com/spendwatch/spendwatch/internal/traces"
)

// RescreenRow is one historical purchase re-run through the classifier.
type RescreenRow struct {
	Record  *ledger.Record     `json:"record"`
	Verdict classifier.Verdict `json:"verdict"`
	Flagged bool               `json:"flagged"`
}

// Rescreen re-derives and re-classifies an account's committed purchases.
// Read-only: no workflow instances are created and the ledger is not
// touched. Ledger records carry no merchant labels, so the derivation
// uses the RETAIL/ONLINE defaults, matching how the model was applied to
// stored purchases originally.
func (s *Service) Rescreen(ctx context.Context, accountID string, limit int) ([]RescreenRow, error) {
	ctx, span := traces.StartSpan(ctx, "workflow.Rescreen", traces.AccountID(accountID))
	defer span.End()

	records, err := s.ledger.List(ctx, accountID, "", limit)
	if err != nil {
		return nil, fmt.Errorf("list purchases for rescreen: %w", err)
	}

	rows := make([]RescreenRow, 0, len(records))
	for _, rec := range records {
		cand := feature.Candidate{
			AccountID:   rec.AccountID,
			MerchantID:  rec.MerchantID,
			Amount:      rec.Amount,
			Category:    "RETAIL",
			Subtype:     "ONLINE",
			Description: rec.Description,
			PurchasedAt: rec.CreatedAt,
		}

		vector, err := s.deriver.Derive(ctx, cand, feature.Context{})
		if err != nil {
			return nil, fmt.Errorf("derive features for %s: %w", rec.ID, err)
		}

		verdict, err := s.clf.Classify(ctx, vector)
		if err != nil {
			return nil, fmt.Errorf("%w: rescreen %s: %v", ErrClassifierUnavailable, rec.ID, err)
		}

		ruleVerdict := s.rules.Evaluate(vector)
		rows = append(rows, RescreenRow{
			Record:  rec,
			Verdict: verdict,
			Flagged: verdict == classifier.Outlier || ruleVerdict.Flagged,
		})
	}
	return rows, nil
}
