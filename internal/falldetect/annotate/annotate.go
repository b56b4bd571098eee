// Package annotate draws pose skeletons, HUD overlays, and privacy
// face blur onto frames before they are written to disk or pushed to
// a viewer.
package annotate

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/your-org/falldetect/internal/falldetect/pose"
)

// edges is the minimal set of pose connections drawn for
// visualization, over the 33-joint topology.
var edges = [][2]int{
	{11, 12}, // shoulders
	{23, 24}, // hips
	{11, 23}, {12, 24}, // torso sides
	{11, 13}, {13, 15}, // left arm
	{12, 14}, {14, 16}, // right arm
	{23, 25}, {25, 27}, // left leg
	{24, 26}, {26, 28}, // right leg
}

const minDrawScore = 0.3

// DrawPose renders the skeleton, keypoints and bounding box of p onto
// a copy of frame and returns the annotated copy; frame itself is left
// untouched.
func DrawPose(frame image.Image, p *pose.Result, col color.Color) *image.RGBA {
	out := copyToRGBA(frame)
	if p == nil {
		return out
	}

	for _, e := range edges {
		a, b := e[0], e[1]
		if a >= len(p.Keypoints) || b >= len(p.Keypoints) {
			continue
		}
		pa, pb := p.Keypoints[a], p.Keypoints[b]
		if pa.Score >= minDrawScore && pb.Score >= minDrawScore {
			drawLine(out, int(pa.X), int(pa.Y), int(pb.X), int(pb.Y), col)
		}
	}

	for _, kp := range p.Keypoints {
		if kp.Score >= minDrawScore {
			drawFilledCircle(out, int(kp.X), int(kp.Y), 3, col)
		}
	}

	x, y, w, h := p.BBox[0], p.BBox[1], p.BBox[2], p.BBox[3]
	drawRect(out, x, y, x+w, y+h, color.RGBA{0, 200, 0, 255})

	return out
}

// DrawHUD overlays a left-aligned block of debug text lines, each with
// a 1px drop shadow for legibility against any background.
func DrawHUD(frame image.Image, lines []string, originX, originY int, col color.Color) *image.RGBA {
	out := copyToRGBA(frame)
	face := basicfont.Face7x13

	for i, line := range lines {
		y := originY + i*18
		drawText(out, face, line, originX+1, y+1, color.Black)
		drawText(out, face, line, originX, y, col)
	}
	return out
}

func drawText(dst *image.RGBA, face font.Face, s string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func copyToRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 int, col color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.Set(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func drawFilledCircle(img *image.RGBA, cx, cy, r int, col color.Color) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				img.Set(cx+dx, cy+dy, col)
			}
		}
	}
}

func drawRect(img *image.RGBA, x0, y0, x1, y1 int, col color.Color) {
	for x := x0; x <= x1; x++ {
		img.Set(x, y0, col)
		img.Set(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.Set(x0, y, col)
		img.Set(x1, y, col)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
