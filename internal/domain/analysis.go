package domain

import (
	"time"
)

// AnalysisResult is the verdict returned for a single input.
type AnalysisResult struct {
	Label       Label    `json:"label"`
	Confidence  float64  `json:"confidence"`
	Explain     []string `json:"explain"`
	UsedMethods []string `json:"used_methods"`
}

// Analysis is a persisted analysis together with the input that produced it.
type Analysis struct {
	ID        string     `json:"id"`
	Kind      InputKind  `json:"type"`
	Value     string     `json:"value"`
	Mode      FusionMode `json:"mode"`
	CreatedAt time.Time  `json:"created_at"`

	AnalysisResult
}

// AnalysisEvent is published on TopicAnalysisCompleted.
type AnalysisEvent struct {
	ID         string     `json:"id"`
	Kind       InputKind  `json:"type"`
	Mode       FusionMode `json:"mode"`
	Label      Label      `json:"label"`
	Confidence float64    `json:"confidence"`
	TraceID    string     `json:"trace_id,omitempty"`
}
