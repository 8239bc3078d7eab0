// Package fusion combines heuristic and statistical scores into a final
// verdict.
package fusion

import (
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Neutral is the statistical score used when no classifier contributed.
const Neutral = 0.5

// Label band lower bounds, inclusive.
const (
	ScamThreshold       = 0.8
	LikelyScamThreshold = 0.6
	SuspiciousThreshold = 0.4
)

// Input carries everything the fusion policy looks at.
type Input struct {
	Heuristic   float64
	Statistical float64
	Mode        domain.FusionMode

	// Blacklist state of the analyzed value; Trust drives hybrid weighting.
	Listed bool
	Trust  float64
}

// Decision is the fused score with its label.
type Decision struct {
	Score      float64
	Label      domain.Label
	Confidence float64
}

// Fuse combines the heuristic and statistical scores according to mode.
// Unknown modes fall back to balanced.
func Fuse(in Input) float64 {
	h, s := in.Heuristic, in.Statistical
	switch in.Mode {
	case domain.ModeHeuristic:
		return h
	case domain.ModeML:
		return s
	case domain.ModeHybrid:
		if in.Listed {
			return in.Trust*h + (1-in.Trust)*s
		}
		return 0.5*h + 0.5*s
	default:
		return 0.5*h + 0.5*s
	}
}

// Decide fuses the scores and labels the result. The label is taken from
// the unrounded score; Confidence is rounded separately.
func Decide(in Input) Decision {
	score := Fuse(in)
	return Decision{
		Score:      score,
		Label:      LabelFor(score),
		Confidence: Round(score),
	}
}

// LabelFor maps a score to its band.
func LabelFor(score float64) domain.Label {
	switch {
	case score >= ScamThreshold:
		return domain.LabelScam
	case score >= LikelyScamThreshold:
		return domain.LabelLikelyScam
	case score >= SuspiciousThreshold:
		return domain.LabelSuspicious
	default:
		return domain.LabelBenign
	}
}

// Round rounds score to two decimals using the exact binary value, so
// halfway cases resolve the same way a decimal formatter would print them.
func Round(score float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(score, 'f', 2, 64), 64)
	if err != nil {
		return score
	}
	return r
}

// UsesModel reports whether mode asks for the statistical scorer.
func UsesModel(mode domain.FusionMode) bool {
	switch mode {
	case domain.ModeML, domain.ModeBalanced, domain.ModeHybrid:
		return true
	}
	return false
}
