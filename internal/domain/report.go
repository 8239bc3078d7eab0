package domain

import (
	"time"
)

// Report is a user submission flagging a value as a scam.
type Report struct {
	ID          string    `json:"id"`
	Kind        InputKind `json:"type"`
	Value       string    `json:"value"`
	Label       Label     `json:"label"`
	Description string    `json:"description,omitempty"`
	Reporter    string    `json:"reporter,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PromotionEvent is published when enough reports push a value onto the blacklist.
type PromotionEvent struct {
	Kind    InputKind `json:"type"`
	Value   string    `json:"value"`
	Trust   float64   `json:"trust_score"`
	Reports int64     `json:"reports"`
}
