package model

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

var (
	// ErrNoModel is returned by Load when the model file does not exist.
	ErrNoModel = errors.New("model file not found")

	// ErrDimension is returned when a model file was written for a different feature layout.
	ErrDimension = errors.New("feature layout mismatch")
)

// Classifier maps a feature vector to a scam probability.
type Classifier interface {
	Predict(v Vector) (float64, error)
}

// Logistic is a fitted binary logistic regression.
type Logistic struct {
	Weights   Vector    `json:"weights"`
	Intercept float64   `json:"intercept"`
	Features  []string  `json:"features"`
	Samples   int       `json:"samples"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	TrainedAt time.Time `json:"trained_at"`
}

// Predict returns the probability of the scam class.
func (m *Logistic) Predict(v Vector) (float64, error) {
	z := m.Intercept
	for i := range v {
		z += m.Weights[i] * v[i]
	}
	p := sigmoid(z)
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("prediction is not finite (z=%v)", z)
	}
	return p, nil
}

// Load reads a model written by Save.
func Load(path string) (*Logistic, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoModel, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	var m Logistic
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	if len(m.Features) > 0 {
		if len(m.Features) != Dimensions {
			return nil, fmt.Errorf("%w: %d features, want %d", ErrDimension, len(m.Features), Dimensions)
		}
		for i, name := range m.Features {
			if name != FeatureNames[i] {
				return nil, fmt.Errorf("%w: feature %d is %q, want %q", ErrDimension, i, name, FeatureNames[i])
			}
		}
	}

	return &m, nil
}

// Save writes the model atomically to path.
func (m *Logistic) Save(path string) error {
	if len(m.Features) == 0 {
		m.Features = FeatureNames[:]
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return os.Rename(tmp, path)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
