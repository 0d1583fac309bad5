package feature

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"time"
)

// ErrInvalidAmount rejects non-positive purchase amounts before any
// derivation or classification.
var ErrInvalidAmount = errors.New("feature: amount must be positive")

// Synthetic placeholder bounds. Draws are tagged per field so downstream
// consumers can tell placeholders from telemetry.
const (
	syntheticCountMax = 50
	syntheticSpendMin = 10
	syntheticSpendMax = 20000
)

// Deriver turns a Candidate plus Context into a Vector. Schema fields the
// classifier consumes are produced strictly (fail fast when impossible);
// optional behavioral fields are appended when derivable.
type Deriver struct {
	schema  Schema
	history HistoryProvider
	seed    int64
	logger  *slog.Logger
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithHistory supplies real trailing-hour activity, consulted before the
// synthetic placeholder policy.
func WithHistory(p HistoryProvider) Option {
	return func(d *Deriver) { d.history = p }
}

// WithSeed sets the base seed for synthetic draws. Draws are always
// deterministic per candidate; the seed shifts the whole draw space for
// reproducible test fixtures.
func WithSeed(seed int64) Option {
	return func(d *Deriver) { d.seed = seed }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Deriver) { d.logger = logger }
}

// NewDeriver creates a Deriver for the given classifier schema.
func NewDeriver(schema Schema, opts ...Option) *Deriver {
	d := &Deriver{
		schema: schema,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Derive produces the feature vector for a candidate. Schema-declared
// fields that cannot be produced fail with MissingFeatureError; an
// unknown merchant category fails with UnknownCategoryError before any
// classifier is consulted.
func (d *Deriver) Derive(ctx context.Context, c Candidate, fc Context) (Vector, error) {
	if c.Amount <= 0 || c.Amount != c.Amount {
		return Vector{}, ErrInvalidAmount
	}

	// Validate the merchant labels up front. The subtype set depends on
	// the category, so both are checked even when the schema omits one.
	catCode, err := EncodeCategory(c.Category)
	if err != nil {
		return Vector{}, err
	}
	subCode, err := EncodeSubtype(c.Category, c.Subtype)
	if err != nil {
		return Vector{}, err
	}

	count, spend, synthetic, err := d.behavioral(ctx, c, fc)
	if err != nil {
		return Vector{}, err
	}

	at := c.PurchasedAt
	if at.IsZero() {
		at = time.Now()
	}

	v := Vector{values: make(map[string]Value, len(d.schema.fields)+4)}

	for _, f := range d.schema.fields {
		var val Value
		switch f {
		case FieldAmount:
			val = Value{Value: c.Amount}
		case FieldCategory:
			val = Value{Value: float64(catCode)}
		case FieldType:
			val = Value{Value: float64(subCode)}
		case FieldTxCount:
			val = Value{Value: float64(count), Synthetic: synthetic}
		case FieldSpend:
			val = Value{Value: spend, Synthetic: synthetic}
		case FieldRatio:
			r, err := ratio(c.Amount, fc.RollingAvg)
			if err != nil {
				return Vector{}, err
			}
			val = Value{Value: r}
		case FieldHour:
			val = Value{Value: float64(at.Hour())}
		case FieldWeekend:
			val = Value{Value: boolToFloat(isWeekend(at))}
		case FieldDistance:
			if fc.DistanceKm == nil {
				return Vector{}, &MissingFeatureError{Field: FieldDistance, Reason: "no distance supplied"}
			}
			val = Value{Value: clamp01(*fc.DistanceKm)}
		default:
			return Vector{}, &MissingFeatureError{Field: f, Reason: "no derivation for field"}
		}
		v.fields = append(v.fields, f)
		v.values[f] = val
	}

	// Optional fields the rule engine consumes. Only appended when
	// derivable; rules treat absence as not applicable.
	if !d.schema.Has(FieldRatio) && fc.RollingAvg != nil && *fc.RollingAvg > 0 {
		v.fields = append(v.fields, FieldRatio)
		v.values[FieldRatio] = Value{Value: c.Amount / *fc.RollingAvg}
	}
	if !d.schema.Has(FieldDistance) && fc.DistanceKm != nil {
		v.fields = append(v.fields, FieldDistance)
		v.values[FieldDistance] = Value{Value: clamp01(*fc.DistanceKm)}
	}
	if !d.schema.Has(FieldTxCount) {
		v.fields = append(v.fields, FieldTxCount)
		v.values[FieldTxCount] = Value{Value: float64(count), Synthetic: synthetic}
	}
	if !d.schema.Has(FieldHour) {
		v.fields = append(v.fields, FieldHour)
		v.values[FieldHour] = Value{Value: float64(at.Hour())}
	}
	if !d.schema.Has(FieldWeekend) {
		v.fields = append(v.fields, FieldWeekend)
		v.values[FieldWeekend] = Value{Value: boolToFloat(isWeekend(at))}
	}

	if synthetic {
		d.logger.Debug("behavioral counters synthesized",
			"account_id", c.AccountID,
			"count", count,
			"spend", spend)
	}

	return v, nil
}

// behavioral resolves the trailing-hour counters: caller-supplied values
// win, then real history, then the synthetic placeholder draw.
func (d *Deriver) behavioral(ctx context.Context, c Candidate, fc Context) (count int, spend float64, synthetic bool, err error) {
	if fc.TxCountLastHour != nil && fc.SpendLastHour != nil {
		return *fc.TxCountLastHour, *fc.SpendLastHour, false, nil
	}

	if d.history != nil {
		h, found, err := d.history.LookupHistory(ctx, c.AccountID)
		if err != nil {
			return 0, 0, false, fmt.Errorf("lookup history for %s: %w", c.AccountID, err)
		}
		if found {
			count, spend = h.Count, h.Spend
			if fc.TxCountLastHour != nil {
				count = *fc.TxCountLastHour
			}
			if fc.SpendLastHour != nil {
				spend = *fc.SpendLastHour
			}
			return count, spend, false, nil
		}
	}

	rng := rand.New(rand.NewSource(d.candidateSeed(c)))
	count = rng.Intn(syntheticCountMax)
	spend = syntheticSpendMin + rng.Float64()*(syntheticSpendMax-syntheticSpendMin)
	if fc.TxCountLastHour != nil {
		count = *fc.TxCountLastHour
	}
	if fc.SpendLastHour != nil {
		spend = *fc.SpendLastHour
	}
	return count, spend, true, nil
}

// candidateSeed derives a per-candidate seed so re-evaluating the same
// candidate draws the same placeholders.
func (d *Deriver) candidateSeed(c Candidate) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%.2f|%s|%s|%d",
		c.AccountID, c.MerchantID, c.Amount, c.Category, c.Subtype, c.PurchasedAt.UnixNano())
	return d.seed ^ int64(h.Sum64())
}

func ratio(amount float64, avg *float64) (float64, error) {
	if avg == nil || *avg <= 0 {
		return 0, &MissingFeatureError{Field: FieldRatio, Reason: "no rolling average supplied"}
	}
	return amount / *avg, nil
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
