package domain

import (
	"time"
)

// TrainingExample is a labeled input with the attributes extracted from it.
// Features uses the same keys as the analyzer's attribute bundles.
type TrainingExample struct {
	ID          string         `json:"id"`
	Kind        InputKind      `json:"type"`
	Raw         string         `json:"input_raw"`
	Label       Label          `json:"label"`
	Features    map[string]any `json:"features"`
	IsSynthetic bool           `json:"is_synthetic"`
	CreatedAt   time.Time      `json:"created_at"`
}
