// Package features reduces a pose estimate down to the four scalar
// signals the fall-detection state machine evaluates: torso tilt
// angle, bounding-box aspect ratio, hip height, and person height.
package features

import (
	"math"

	"github.com/your-org/falldetect/internal/falldetect/pose"
)

// MinKeypointScore is the minimum per-joint confidence required of the
// four load-bearing joints (shoulders, hips) before a frame's pose is
// considered usable for feature extraction.
const MinKeypointScore = 0.2

// Set is one frame's reduced signal, computed from a single PoseResult.
type Set struct {
	Theta   float64 // torso tilt from vertical, degrees, [0,180]
	Ratio   float64 // bbox height / max(1, bbox width)
	HipY    float64 // midpoint hip y-coordinate, pixels
	HPerson float64 // bbox height, pixels
}

// Extract computes a Set from p, or reports ok=false when p is nil or
// lacks usable shoulder/hip keypoints (score below MinKeypointScore).
func Extract(p *pose.Result) (Set, bool) {
	if p == nil || len(p.Keypoints) <= pose.RightHip {
		return Set{}, false
	}

	ls := p.Keypoints[pose.LeftShoulder]
	rs := p.Keypoints[pose.RightShoulder]
	lh := p.Keypoints[pose.LeftHip]
	rh := p.Keypoints[pose.RightHip]

	if ls.Score < MinKeypointScore || rs.Score < MinKeypointScore ||
		lh.Score < MinKeypointScore || rh.Score < MinKeypointScore {
		return Set{}, false
	}

	shoulderMidX := (ls.X + rs.X) / 2
	shoulderMidY := (ls.Y + rs.Y) / 2
	hipMidX := (lh.X + rh.X) / 2
	hipMidY := (lh.Y + rh.Y) / 2

	// Angle between the body vector (shoulders->hips) and vertical; 0
	// degrees is upright, swapped args measure from vertical rather
	// than horizontal.
	vx := hipMidX - shoulderMidX
	vy := hipMidY - shoulderMidY
	theta := math.Abs(radToDeg(math.Atan2(vx, vy)))

	w := float64(p.BBox[2])
	h := float64(p.BBox[3])
	ratio := h / math.Max(1, w)

	return Set{
		Theta:   theta,
		Ratio:   ratio,
		HipY:    hipMidY,
		HPerson: h,
	}, true
}

func radToDeg(r float64) float64 {
	return r * 180 / math.Pi
}
