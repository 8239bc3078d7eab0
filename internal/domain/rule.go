package domain

// RuleConfig is an operator-defined CEL scoring rule.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Kind restricts the rule to one input kind. Empty applies to all kinds.
	Kind InputKind `json:"type,omitempty"`

	// CEL expression returning bool, int or double.
	Expression string `json:"expression"`

	// Increment is added to the heuristic score when the rule triggers.
	Increment float64 `json:"increment"`

	// Reason is appended to the explanations when the rule triggers.
	Reason string `json:"reason"`

	Enabled bool `json:"enabled"`
}

// AppliesTo reports whether the rule is evaluated for kind.
func (r *RuleConfig) AppliesTo(kind InputKind) bool {
	return r.Kind == "" || r.Kind == kind
}

// RuleHit is a triggered rule.
type RuleHit struct {
	RuleID    string  `json:"rule_id"`
	Increment float64 `json:"increment"`
	Reason    string  `json:"reason"`
}
