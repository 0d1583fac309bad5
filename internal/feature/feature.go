// Package feature derives the numeric feature vector the anomaly classifier
// consumes from a raw purchase candidate plus account context.
package feature

import (
	"context"
	"fmt"
	"time"
)

// Feature vector field names. The classifier declares which subset it
// consumes via a Schema; names here must match the model service's
// training columns exactly.
const (
	FieldAmount   = "amount"
	FieldCategory = "merchant_category"
	FieldType     = "merchant_type"
	FieldTxCount  = "num_transactions_last_hour"
	FieldSpend    = "total_spent_last_hour"
	FieldRatio    = "amount_to_avg_ratio"
	FieldHour     = "hour_of_day"
	FieldWeekend  = "is_weekend"
	FieldDistance = "distance_from_home"
)

// Candidate is a raw purchase submitted for evaluation.
type Candidate struct {
	AccountID   string    `json:"account_id"`
	MerchantID  string    `json:"merchant_id"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"merchant_category"`
	Subtype     string    `json:"merchant_type"`
	Description string    `json:"description"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// Context carries caller-supplied behavioral values. Nil fields mean the
// caller has no value; the deriver falls back to history lookup and then
// to the synthetic placeholder policy.
type Context struct {
	TxCountLastHour *int
	SpendLastHour   *float64
	RollingAvg      *float64 // average purchase amount, for the ratio feature
	DistanceKm      *float64 // normalized distance from home, [0,1]
}

// History is an account's trailing-hour activity as reported by a
// HistoryProvider.
type History struct {
	Count int
	Spend float64
}

// HistoryProvider supplies real trailing-hour activity for an account.
// found is false when the provider has no data for the account, in which
// case the deriver applies the synthetic placeholder policy.
type HistoryProvider interface {
	LookupHistory(ctx context.Context, accountID string) (h History, found bool, err error)
}

// Value is a single feature vector entry. Synthetic marks values drawn
// from the placeholder policy rather than real telemetry.
type Value struct {
	Value     float64 `json:"value"`
	Synthetic bool    `json:"synthetic,omitempty"`
}

// Vector is an ordered feature vector. Field order follows the Schema the
// vector was derived against; order and scaling must match what the
// classifier was trained with.
type Vector struct {
	fields []string
	values map[string]Value
}

// Fields returns the field names in schema order.
func (v Vector) Fields() []string {
	out := make([]string, len(v.fields))
	copy(out, v.fields)
	return out
}

// Get returns the named feature value.
func (v Vector) Get(name string) (Value, bool) {
	val, ok := v.values[name]
	return val, ok
}

// Float returns the named feature's numeric value, or 0 if absent.
// Use Get when absence matters.
func (v Vector) Float(name string) float64 {
	return v.values[name].Value
}

// Map returns the vector as a plain name-to-number map, the shape the
// model service expects on the wire.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.fields))
	for _, f := range v.fields {
		out[f] = v.values[f].Value
	}
	return out
}

// Values returns the numeric values in schema order.
func (v Vector) Values() []float64 {
	out := make([]float64, len(v.fields))
	for i, f := range v.fields {
		out[i] = v.values[f].Value
	}
	return out
}

// SyntheticFields returns the names of fields filled by the placeholder
// policy, in schema order.
func (v Vector) SyntheticFields() []string {
	var out []string
	for _, f := range v.fields {
		if v.values[f].Synthetic {
			out = append(out, f)
		}
	}
	return out
}

// Schema is the ordered list of fields the classifier consumes.
type Schema struct {
	fields []string
}

// DefaultSchema matches the model service's training columns.
func DefaultSchema() Schema {
	return Schema{fields: []string{
		FieldAmount,
		FieldCategory,
		FieldType,
		FieldTxCount,
		FieldSpend,
	}}
}

// NewSchema builds a schema from an ordered field list. Unknown field
// names are a configuration error.
func NewSchema(fields ...string) (Schema, error) {
	if len(fields) == 0 {
		return Schema{}, fmt.Errorf("schema must declare at least one field")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !knownFields[f] {
			return Schema{}, fmt.Errorf("schema declares unknown field %q", f)
		}
		if seen[f] {
			return Schema{}, fmt.Errorf("schema declares field %q twice", f)
		}
		seen[f] = true
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return Schema{fields: out}, nil
}

// Fields returns the schema's field names in order.
func (s Schema) Fields() []string {
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

// Has reports whether the schema declares the field.
func (s Schema) Has(name string) bool {
	for _, f := range s.fields {
		if f == name {
			return true
		}
	}
	return false
}

var knownFields = map[string]bool{
	FieldAmount:   true,
	FieldCategory: true,
	FieldType:     true,
	FieldTxCount:  true,
	FieldSpend:    true,
	FieldRatio:    true,
	FieldHour:     true,
	FieldWeekend:  true,
	FieldDistance: true,
}

// MissingFeatureError is returned when a schema-declared field cannot be
// produced from the candidate and context.
type MissingFeatureError struct {
	Field  string
	Reason string
}

func (e *MissingFeatureError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("feature: cannot produce required field %q", e.Field)
	}
	return fmt.Sprintf("feature: cannot produce required field %q: %s", e.Field, e.Reason)
}

// UnknownCategoryError is returned when a merchant category or subtype is
// not in the encoding table. Encoding never guesses a default.
type UnknownCategoryError struct {
	Category string
	Subtype  string
}

func (e *UnknownCategoryError) Error() string {
	if e.Subtype != "" {
		return fmt.Sprintf("feature: unknown merchant subtype %q for category %q", e.Subtype, e.Category)
	}
	return fmt.Sprintf("feature: unknown merchant category %q", e.Category)
}
