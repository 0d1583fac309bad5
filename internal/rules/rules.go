// Package rules evaluates deterministic threshold checks over a feature
// vector, independent of the anomaly classifier. Rules are pure functions
// with no side effects or I/O.
package rules

import (
	"github.com/spendwatch/spendwatch/internal/feature"
)

// Default thresholds.
const (
	DefaultRatioThreshold    = 3.0
	DefaultDistanceThreshold = 0.8
	DefaultVelocityThreshold = 5
)

// Config declares the rule set. Each rule is independently toggleable.
type Config struct {
	RatioEnabled   bool
	RatioThreshold float64

	DistanceEnabled   bool
	DistanceThreshold float64

	VelocityEnabled   bool
	VelocityThreshold int
}

// DefaultConfig enables every rule at the default thresholds.
func DefaultConfig() Config {
	return Config{
		RatioEnabled:      true,
		RatioThreshold:    DefaultRatioThreshold,
		DistanceEnabled:   true,
		DistanceThreshold: DefaultDistanceThreshold,
		VelocityEnabled:   true,
		VelocityThreshold: DefaultVelocityThreshold,
	}
}

// Verdict is the outcome of rule evaluation. Individual flags stay
// independent; Flagged is their logical OR.
type Verdict struct {
	RatioExceeded    bool `json:"ratio_exceeded"`
	DistanceExceeded bool `json:"distance_exceeded"`
	VelocityExceeded bool `json:"velocity_exceeded"`
	Flagged          bool `json:"flagged"`
}

// Engine evaluates the configured rules.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine. Zero-valued thresholds on enabled rules
// fall back to the defaults.
func NewEngine(cfg Config) *Engine {
	if cfg.RatioEnabled && cfg.RatioThreshold <= 0 {
		cfg.RatioThreshold = DefaultRatioThreshold
	}
	if cfg.DistanceEnabled && cfg.DistanceThreshold <= 0 {
		cfg.DistanceThreshold = DefaultDistanceThreshold
	}
	if cfg.VelocityEnabled && cfg.VelocityThreshold <= 0 {
		cfg.VelocityThreshold = DefaultVelocityThreshold
	}
	return &Engine{cfg: cfg}
}

// Evaluate applies the enabled rules to the vector. A rule whose feature
// is absent from the vector is not applicable and does not flag.
func (e *Engine) Evaluate(v feature.Vector) Verdict {
	var out Verdict

	if e.cfg.RatioEnabled {
		if ratio, ok := v.Get(feature.FieldRatio); ok {
			out.RatioExceeded = ratio.Value > e.cfg.RatioThreshold
		}
	}

	if e.cfg.DistanceEnabled {
		if dist, ok := v.Get(feature.FieldDistance); ok {
			out.DistanceExceeded = dist.Value > e.cfg.DistanceThreshold
		}
	}

	if e.cfg.VelocityEnabled {
		if count, ok := v.Get(feature.FieldTxCount); ok {
			out.VelocityExceeded = count.Value > float64(e.cfg.VelocityThreshold)
		}
	}

	out.Flagged = out.RatioExceeded || out.DistanceExceeded || out.VelocityExceeded
	return out
}
