package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var (
	// ErrNoSamples is returned when there is nothing to fit.
	ErrNoSamples = errors.New("no training samples")

	// ErrSingleClass is returned when every sample has the same label.
	ErrSingleClass = errors.New("training samples contain a single class")

	// ErrSingular is returned when the Newton system cannot be solved.
	ErrSingular = errors.New("singular hessian")
)

// Sample is a labeled feature vector. Y is 1 for scam and 0 otherwise.
type Sample struct {
	X Vector
	Y float64
}

// TrainOptions controls the fit.
type TrainOptions struct {
	// C is the inverse L2 regularization strength.
	C float64

	// MaxIter bounds the number of Newton steps.
	MaxIter int

	// Tol stops the fit once every parameter step is smaller than it.
	Tol float64
}

// DefaultTrainOptions matches an L2 logistic regression with C=1.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{C: 1.0, MaxIter: 1000, Tol: 1e-8}
}

// params is intercept followed by the weights.
const params = Dimensions + 1

// Fit trains an L2-regularized logistic regression by Newton's method.
// The intercept is not penalized.
func Fit(samples []Sample, opts TrainOptions) (*Logistic, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	if opts.C <= 0 {
		opts.C = 1.0
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 1000
	}
	if opts.Tol <= 0 {
		opts.Tol = 1e-8
	}

	positives := 0
	for _, s := range samples {
		if s.Y > 0.5 {
			positives++
		}
	}
	if positives == 0 || positives == len(samples) {
		return nil, ErrSingleClass
	}

	lambda := 1 / opts.C
	var theta [params]float64

	for iter := 0; iter < opts.MaxIter; iter++ {
		var grad [params]float64
		var hess [params][params]float64

		for _, s := range samples {
			x := augment(s.X)
			p := sigmoid(dot(theta, x))
			w := p * (1 - p)
			for i := 0; i < params; i++ {
				grad[i] += (p - s.Y) * x[i]
				for j := 0; j < params; j++ {
					hess[i][j] += w * x[i] * x[j]
				}
			}
		}
		for i := 1; i < params; i++ {
			grad[i] += lambda * theta[i]
			hess[i][i] += lambda
		}

		step, err := solve(hess, grad)
		if err != nil {
			return nil, fmt.Errorf("newton step %d: %w", iter, err)
		}

		maxStep := 0.0
		for i := range theta {
			theta[i] -= step[i]
			maxStep = math.Max(maxStep, math.Abs(step[i]))
		}
		if maxStep < opts.Tol {
			break
		}
	}

	m := &Logistic{
		Intercept: theta[0],
		Features:  FeatureNames[:],
		Samples:   len(samples),
		TrainedAt: time.Now().UTC(),
	}
	copy(m.Weights[:], theta[1:])
	return m, nil
}

// Accuracy is the share of samples classified correctly at 0.5.
func Accuracy(clf Classifier, samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	correct := 0
	for _, s := range samples {
		p, err := clf.Predict(s.X)
		if err != nil {
			continue
		}
		if (p >= 0.5) == (s.Y > 0.5) {
			correct++
		}
	}
	return float64(correct) / float64(len(samples))
}

// Split shuffles samples with a fixed seed and holds out testFraction of
// them. The input slice is not modified.
func Split(samples []Sample, testFraction float64, seed uint64) (train, test []Sample) {
	shuffled := make([]Sample, len(samples))
	copy(shuffled, samples)

	r := rand.New(rand.NewPCG(seed, seed))
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nTest := int(math.Ceil(float64(len(shuffled)) * testFraction))
	if nTest >= len(shuffled) {
		nTest = len(shuffled) - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return shuffled[nTest:], shuffled[:nTest]
}

func augment(v Vector) [params]float64 {
	var x [params]float64
	x[0] = 1
	copy(x[1:], v[:])
	return x
}

func dot(a, b [params]float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// solve returns x with a*x = b using Gaussian elimination with partial pivoting.
func solve(a [params][params]float64, b [params]float64) ([params]float64, error) {
	var x [params]float64
	n := params

	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return x, ErrSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			f := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= f * a[col][k]
			}
			b[row] -= f * b[col]
		}
	}

	for row := n - 1; row >= 0; row-- {
		s := b[row]
		for k := row + 1; k < n; k++ {
			s -= a[row][k] * x[k]
		}
		x[row] = s / a[row][row]
	}
	return x, nil
}
