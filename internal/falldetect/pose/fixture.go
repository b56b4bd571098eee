package pose

import (
	"context"
	"image"
)

// fixtureEstimator returns a caller-supplied sequence of results in
// order, then repeats the last one. Used by package tests and by
// collector tests that need a deterministic pose source without an
// ONNX Runtime dependency.
type fixtureEstimator struct {
	Results []*Result
	calls   int
}

func newFixtureEstimator() *fixtureEstimator {
	return &fixtureEstimator{}
}

func (f *fixtureEstimator) Estimate(ctx context.Context, frame image.Image) (*Result, error) {
	if len(f.Results) == 0 {
		return nil, nil
	}
	i := f.calls
	if i >= len(f.Results) {
		i = len(f.Results) - 1
	}
	f.calls++
	return f.Results[i], nil
}

func (f *fixtureEstimator) Close() error { return nil }

// NewFixtureEstimator exposes the fixture backend to package tests
// outside this package (collector tests supply their own Result
// sequences via this constructor rather than going through Build with
// backend="fixture").
func NewFixtureEstimator(results []*Result) Estimator {
	return &fixtureEstimator{Results: results}
}
