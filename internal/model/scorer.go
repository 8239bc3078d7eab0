package model

import (
	"log/slog"
	"math"
)

// neutral is reported when a loaded classifier fails to predict.
const neutral = 0.5

// Probability is an optional classifier output. Present is false when no
// classifier was available, which is distinct from a prediction of 0.5.
type Probability struct {
	Value   float64
	Present bool
}

// Or returns the probability, or fallback when none was produced.
func (p Probability) Or(fallback float64) float64 {
	if !p.Present {
		return fallback
	}
	return p.Value
}

// Scorer wraps an optional classifier. It is immutable after construction
// and safe for concurrent use.
type Scorer struct {
	clf Classifier
}

// NewScorer returns a scorer around clf. A nil clf yields a scorer with no model.
func NewScorer(clf Classifier) *Scorer {
	return &Scorer{clf: clf}
}

// Loaded reports whether a classifier is available.
func (s *Scorer) Loaded() bool {
	return s != nil && s.clf != nil
}

// Predict scores v. A failing classifier yields a present, neutral
// probability; a missing one yields an absent probability.
func (s *Scorer) Predict(v Vector) Probability {
	if !s.Loaded() {
		return Probability{}
	}

	p, err := s.clf.Predict(v)
	if err != nil || math.IsNaN(p) || p < 0 || p > 1 {
		slog.Warn("classifier prediction failed, using neutral score",
			"error", err,
			"probability", p,
		)
		return Probability{Value: neutral, Present: true}
	}
	return Probability{Value: p, Present: true}
}
