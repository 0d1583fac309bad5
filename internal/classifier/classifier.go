// Package classifier defines the anomaly detection capability the risk
// core consumes, plus the clients that satisfy it.
package classifier

import (
	"context"

	"github.com/spendwatch/spendwatch/internal/feature"
)

// Verdict is the binary outcome of anomaly classification.
type Verdict string

const (
	// Outlier means the feature vector is statistically atypical.
	Outlier Verdict = "outlier"
	// Normal means the feature vector looks like ordinary activity.
	Normal Verdict = "normal"
)

// Classifier is the consumed anomaly detection capability. Implementations
// must be deterministic per input; the core never retrains or inspects
// model internals.
type Classifier interface {
	Classify(ctx context.Context, v feature.Vector) (Verdict, error)
}

// FloorGate wraps a Classifier and forces Normal for amounts below the
// floor. Low-value purchases never reach the model; this is a de-noising
// rule, not a classifier behavior.
type FloorGate struct {
	inner Classifier
	floor float64
}

// NewFloorGate wraps inner with an amount floor.
func NewFloorGate(inner Classifier, floor float64) *FloorGate {
	return &FloorGate{inner: inner, floor: floor}
}

// Floor returns the configured amount floor.
func (g *FloorGate) Floor() float64 {
	return g.floor
}

// Classify returns Normal without consulting the wrapped classifier when
// the amount is below the floor.
func (g *FloorGate) Classify(ctx context.Context, v feature.Vector) (Verdict, error) {
	if v.Float(feature.FieldAmount) < g.floor {
		return Normal, nil
	}
	return g.inner.Classify(ctx, v)
}

// Bypassed reports whether a vector would skip the wrapped classifier.
func (g *FloorGate) Bypassed(v feature.Vector) bool {
	return v.Float(feature.FieldAmount) < g.floor
}
