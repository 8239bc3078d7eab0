package analyzer

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// baseline is the neutral score every heuristic tally starts from.
const baseline = 0.5

// benignBelow is the score under which the "no concerns" explanation is added.
const benignBelow = 0.3

// Hit is the blacklist lookup result handed to an extractor.
type Hit struct {
	Listed bool
	Trust  float64
}

// Bundle is the fixed per-kind attribute schema produced by extraction.
type Bundle interface {
	Kind() domain.InputKind
	Raw() string

	// Blacklisted reports the lookup flag and trust carried by the bundle.
	Blacklisted() (bool, float64)

	// Attributes returns the bundle as a flat map. The keys match the
	// feature names stored with training examples.
	Attributes() map[string]any
}

// Detector extracts and scores one input kind.
type Detector interface {
	Kind() domain.InputKind

	// UsesBlacklist reports whether extraction consults the blacklist.
	UsesBlacklist() bool

	// UsesModel reports whether the statistical scorer is wired for this kind.
	UsesModel() bool

	// Extract is total: malformed input degrades features, never fails.
	Extract(raw string, hit Hit) Bundle

	// Score applies the built-in heuristic rules. The returned tally is
	// not clamped yet.
	Score(b Bundle) *Tally

	// Benign is the explanation appended when the final score is below 0.3.
	Benign() string
}

// ScoreResult is a clamped heuristic score with its explanations.
type ScoreResult struct {
	Score   float64
	Explain []string
}

// Tally accumulates heuristic increments and their explanations.
type Tally struct {
	Score   float64
	Reasons []string
}

func newTally() *Tally {
	return &Tally{Score: baseline, Reasons: []string{}}
}

// Add records a triggered rule.
func (t *Tally) Add(increment float64, reason string) {
	t.Score += increment
	t.Reasons = append(t.Reasons, reason)
}

// Finish clamps the score to [0,1] and appends the benign message when the
// result stays below 0.3.
func (t *Tally) Finish(benign string) ScoreResult {
	score := min(1.0, max(0.0, t.Score))
	reasons := t.Reasons
	if score < benignBelow {
		reasons = append(reasons, benign)
	}
	return ScoreResult{Score: score, Explain: reasons}
}

// Heuristic runs d's built-in rules on b and finishes the tally.
func Heuristic(d Detector, b Bundle) ScoreResult {
	return d.Score(b).Finish(d.Benign())
}

// Detectors returns the built-in detector for every supported kind.
func Detectors() []Detector {
	return []Detector{
		PhoneDetector{},
		URLDetector{},
		SMSDetector{},
		FileDetector{},
	}
}
