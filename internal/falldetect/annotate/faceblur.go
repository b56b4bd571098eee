package annotate

import (
	"image"
	"image/color"

	"github.com/your-org/falldetect/internal/falldetect/pose"
)

// headIndex is the nose keypoint in the 33-joint topology, used as the
// anchor for the approximate face region blurred under privacy.face_blur.
const headIndex = 0

// FaceBlur box-blurs the approximate face region around p's head
// keypoint. No standalone face detector runs in this process, so the
// region is derived from the pose estimate already on hand: a square
// centered on the nose keypoint, sized relative to shoulder width.
// Frames with no pose, or a low-confidence head keypoint, are
// returned unmodified.
func FaceBlur(frame image.Image, p *pose.Result, kernel int) *image.RGBA {
	out := copyToRGBA(frame)
	if p == nil || len(p.Keypoints) <= pose.RightShoulder {
		return out
	}

	head := p.Keypoints[headIndex]
	ls := p.Keypoints[pose.LeftShoulder]
	rs := p.Keypoints[pose.RightShoulder]
	if head.Score < minDrawScore {
		return out
	}

	shoulderW := absF(rs.X - ls.X)
	if shoulderW < 10 {
		shoulderW = 10
	}
	half := int(shoulderW * 0.7)

	x0 := int(head.X) - half
	y0 := int(head.Y) - half
	x1 := int(head.X) + half
	y1 := int(head.Y) + half

	boxBlur(out, x0, y0, x1, y1, oddKernel(kernel))
	return out
}

func oddKernel(k int) int {
	if k < 3 {
		k = 3
	}
	if k%2 == 0 {
		k++
	}
	return k
}

// boxBlur replaces the region [x0,y0)-(x1,y1) with its box-blurred
// average using a kernel x kernel window, clipped to the image bounds.
func boxBlur(img *image.RGBA, x0, y0, x1, y1, kernel int) {
	bounds := img.Bounds()
	if x0 < bounds.Min.X {
		x0 = bounds.Min.X
	}
	if y0 < bounds.Min.Y {
		y0 = bounds.Min.Y
	}
	if x1 > bounds.Max.X {
		x1 = bounds.Max.X
	}
	if y1 > bounds.Max.Y {
		y1 = bounds.Max.Y
	}
	if x1 <= x0 || y1 <= y0 {
		return
	}

	src := copyToRGBA(img)
	radius := kernel / 2

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			var rSum, gSum, bSum, aSum, n uint32
			for dy := -radius; dy <= radius; dy++ {
				sy := y + dy
				if sy < bounds.Min.Y || sy >= bounds.Max.Y {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					sx := x + dx
					if sx < bounds.Min.X || sx >= bounds.Max.X {
						continue
					}
					r, g, b, a := src.At(sx, sy).RGBA()
					rSum += r >> 8
					gSum += g >> 8
					bSum += b >> 8
					aSum += a >> 8
					n++
				}
			}
			if n == 0 {
				continue
			}
			img.Set(x, y, color.RGBA{
				R: uint8(rSum / n),
				G: uint8(gSum / n),
				B: uint8(bSum / n),
				A: uint8(aSum / n),
			})
		}
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
