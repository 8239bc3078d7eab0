package domain

// InputKind identifies the type of signal submitted for analysis.
type InputKind string

const (
	KindPhone InputKind = "phone"
	KindURL   InputKind = "url"
	KindSMS   InputKind = "sms"
	KindFile  InputKind = "file"
)

// Kinds lists every supported input kind in a stable order.
var Kinds = []InputKind{KindPhone, KindURL, KindSMS, KindFile}

// Valid reports whether k is one of the supported kinds.
func (k InputKind) Valid() bool {
	switch k {
	case KindPhone, KindURL, KindSMS, KindFile:
		return true
	}
	return false
}

// FusionMode selects how heuristic and statistical scores are combined.
type FusionMode string

const (
	// ModeHeuristic uses the heuristic score only.
	ModeHeuristic FusionMode = "heuristic"

	// ModeML uses the statistical score only.
	ModeML FusionMode = "ml"

	// ModeBalanced averages the two scores. This is the default.
	ModeBalanced FusionMode = "balanced"

	// ModeHybrid weights the heuristic score by blacklist trust when the
	// value is blacklisted and falls back to balanced otherwise.
	ModeHybrid FusionMode = "hybrid"
)

// DefaultMode is used when a request does not name a mode.
const DefaultMode = ModeBalanced

// Label is the ordinal verdict attached to an analysis.
type Label string

const (
	LabelBenign     Label = "benign"
	LabelSuspicious Label = "suspicious"
	LabelLikelyScam Label = "likely_scam"
	LabelScam       Label = "scam"
)

// IsScam reports whether the label counts as a positive example for
// training purposes.
func (l Label) IsScam() bool {
	return l == LabelScam || l == LabelLikelyScam
}

// Scoring methods recorded in AnalysisResult.UsedMethods.
const (
	MethodHeuristic = "heuristic"
	MethodML        = "ml"
	MethodLookup    = "lookup"
)
