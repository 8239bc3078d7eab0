package fusion_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fusion"
)

func TestFuse(t *testing.T) {
	tests := []struct {
		name string
		in   fusion.Input
		want float64
	}{
		{"Heuristic", fusion.Input{Heuristic: 0.9, Statistical: 0.1, Mode: domain.ModeHeuristic}, 0.9},
		{"ML", fusion.Input{Heuristic: 0.9, Statistical: 0.1, Mode: domain.ModeML}, 0.1},
		{"Balanced", fusion.Input{Heuristic: 0.9, Statistical: 0.1, Mode: domain.ModeBalanced}, 0.5},
		{"HybridListed", fusion.Input{Heuristic: 1.0, Statistical: 0.0, Mode: domain.ModeHybrid, Listed: true, Trust: 0.7}, 0.7},
		{"HybridUnlisted", fusion.Input{Heuristic: 0.9, Statistical: 0.1, Mode: domain.ModeHybrid, Trust: 0.7}, 0.5},
		{"UnknownMode", fusion.Input{Heuristic: 0.9, Statistical: 0.1, Mode: "other"}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, fusion.Fuse(tt.in), 1e-12)
		})
	}
}

func TestLabelFor(t *testing.T) {
	assert.Equal(t, domain.LabelScam, fusion.LabelFor(0.8))
	assert.Equal(t, domain.LabelScam, fusion.LabelFor(1.0))
	assert.Equal(t, domain.LabelLikelyScam, fusion.LabelFor(0.6))
	assert.Equal(t, domain.LabelLikelyScam, fusion.LabelFor(0.7999999999999999))
	assert.Equal(t, domain.LabelSuspicious, fusion.LabelFor(0.4))
	assert.Equal(t, domain.LabelBenign, fusion.LabelFor(0.3999))
	assert.Equal(t, domain.LabelBenign, fusion.LabelFor(0))
}

func TestDecideLabelsBeforeRounding(t *testing.T) {
	d := fusion.Decide(fusion.Input{Heuristic: 0.795, Mode: domain.ModeHeuristic})

	assert.Equal(t, domain.LabelLikelyScam, d.Label)
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, 0.795, d.Score)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.12, fusion.Round(0.125), "exact ties go to even")
	assert.Equal(t, 0.38, fusion.Round(0.375), "exact ties go to even")
	assert.Equal(t, 0.68, fusion.Round(0.675), "0.675 is stored slightly above the tie")
	assert.Equal(t, 0.8, fusion.Round(0.7999999999999999))
	assert.Equal(t, 1.0, fusion.Round(1.0))
	assert.Equal(t, 0.0, fusion.Round(0.001))
}

func TestUsesModel(t *testing.T) {
	assert.False(t, fusion.UsesModel(domain.ModeHeuristic))
	assert.True(t, fusion.UsesModel(domain.ModeML))
	assert.True(t, fusion.UsesModel(domain.ModeBalanced))
	assert.True(t, fusion.UsesModel(domain.ModeHybrid))
	assert.False(t, fusion.UsesModel("other"))
}
