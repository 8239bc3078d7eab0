package domain

import (
	"time"
)

// DefaultTrust is the trust assigned to blacklist entries stored without one.
const DefaultTrust = 0.8

// BlacklistEntry is a known-bad value of a given kind.
type BlacklistEntry struct {
	Kind    InputKind `json:"type"`
	Value   string    `json:"value"`
	Trust   float64   `json:"trust_score"`
	Source  string    `json:"source,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// Blacklist entry sources.
const (
	SourceSeed     = "seed"
	SourceOperator = "operator"
	SourceReports  = "reports"
)
