// Package pose defines the PoseEstimator contract external backends
// fulfill, and the PoseResult/Keypoint data model the rest of the
// pipeline consumes.
package pose

import (
	"context"
	"fmt"
	"image"
)

// Minimum keypoint indices the feature extractor (internal/falldetect/features)
// requires to be present in any backend's output.
const (
	LeftShoulder  = 11
	RightShoulder = 12
	LeftHip       = 23
	RightHip      = 24
)

// Keypoint is a single joint estimate in image pixel coordinates.
type Keypoint struct {
	X, Y  float64
	Score float64 // visibility/confidence in [0,1]
}

// BBox is an axis-aligned integer bounding box: x, y, w, h.
type BBox [4]int

// Result is one pose estimate for one frame. Immutable once produced.
type Result struct {
	Keypoints []Keypoint
	BBox      BBox
	Score     float64 // mean of keypoint scores
}

// Estimator maps a frame to an optional pose estimate. Implementations
// must be synchronous, thread-confined to whatever single goroutine
// calls them (the inference loop, §4.4), and free of hidden global
// state that would prevent running multiple process instances side by
// side.
type Estimator interface {
	Estimate(ctx context.Context, frame image.Image) (*Result, error)
	Close() error
}

// BackendConfig carries the selectable-backend parameters from
// configuration (model.backend, model.model_path, model.num_threads).
type BackendConfig struct {
	Backend     string
	ModelPath   string
	NumThreads  int
}

// ErrUnknownBackend is returned (and causes a fatal exit 101 at the
// call site) when BackendConfig.Backend names no registered estimator.
type ErrUnknownBackend struct {
	Backend string
}

func (e *ErrUnknownBackend) Error() string {
	return fmt.Sprintf("unknown pose backend %q", e.Backend)
}

// Build constructs the Estimator named by cfg.Backend. Unknown backend
// names are a fatal startup error (§6): the caller is expected to map
// *ErrUnknownBackend to exit code 101.
func Build(cfg BackendConfig) (Estimator, error) {
	switch cfg.Backend {
	case "onnx":
		return newONNXEstimator(cfg)
	case "fixture":
		return newFixtureEstimator(), nil
	default:
		return nil, &ErrUnknownBackend{Backend: cfg.Backend}
	}
}

// clipBBox clamps a bbox to the frame bounds.
func clipBBox(b image.Rectangle, bounds image.Rectangle) BBox {
	b = b.Intersect(bounds)
	if b.Empty() {
		return BBox{bounds.Min.X, bounds.Min.Y, 0, 0}
	}
	return BBox{b.Min.X, b.Min.Y, b.Dx(), b.Dy()}
}

// boundingRect computes the axis-aligned rectangle enclosing all
// keypoints, clipped to frame bounds.
func boundingRect(kps []Keypoint, bounds image.Rectangle) BBox {
	if len(kps) == 0 {
		return BBox{bounds.Min.X, bounds.Min.Y, 0, 0}
	}
	minX, minY := kps[0].X, kps[0].Y
	maxX, maxY := kps[0].X, kps[0].Y
	for _, kp := range kps[1:] {
		if kp.X < minX {
			minX = kp.X
		}
		if kp.X > maxX {
			maxX = kp.X
		}
		if kp.Y < minY {
			minY = kp.Y
		}
		if kp.Y > maxY {
			maxY = kp.Y
		}
	}
	rect := image.Rect(int(minX), int(minY), int(maxX)+1, int(maxY)+1)
	return clipBBox(rect, bounds)
}

func meanScore(kps []Keypoint) float64 {
	if len(kps) == 0 {
		return 0
	}
	var sum float64
	for _, kp := range kps {
		sum += kp.Score
	}
	return sum / float64(len(kps))
}
