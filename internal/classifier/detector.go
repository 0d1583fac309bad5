package classifier

import (
	"context"

	"github.com/spendwatch/spendwatch/internal/feature"
)

// Detector is a local deterministic fallback used in demo mode when no
// model service is configured. It marks a purchase as an outlier when the
// amount dwarfs the account's trailing-hour spend or the velocity is
// already extreme. It is a stand-in for a trained model, not a model.
type Detector struct {
	// SpendMultiple flags amounts above this multiple of trailing-hour
	// spend. Zero means use the default.
	SpendMultiple float64
	// CountCeiling flags vectors whose trailing-hour count meets or
	// exceeds this value. Zero means use the default.
	CountCeiling float64
}

const (
	defaultSpendMultiple = 2.0
	defaultCountCeiling  = 30
)

// Classify applies the heuristic. It never fails.
func (d *Detector) Classify(_ context.Context, v feature.Vector) (Verdict, error) {
	spendMultiple := d.SpendMultiple
	if spendMultiple <= 0 {
		spendMultiple = defaultSpendMultiple
	}
	countCeiling := d.CountCeiling
	if countCeiling <= 0 {
		countCeiling = defaultCountCeiling
	}

	amount := v.Float(feature.FieldAmount)
	spend := v.Float(feature.FieldSpend)
	count := v.Float(feature.FieldTxCount)

	if spend > 0 && amount > spend*spendMultiple {
		return Outlier, nil
	}
	if count >= countCeiling {
		return Outlier, nil
	}
	return Normal, nil
}
