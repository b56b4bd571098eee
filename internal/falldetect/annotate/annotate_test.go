package annotate

import (
	"image"
	"image/color"
	"testing"

	"github.com/your-org/falldetect/internal/falldetect/pose"
)

func solidFrame(w, h int, col color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, col)
		}
	}
	return img
}

func fullPose() *pose.Result {
	kps := make([]pose.Keypoint, 33)
	for i := range kps {
		kps[i] = pose.Keypoint{X: 50, Y: 50, Score: 0.9}
	}
	kps[11] = pose.Keypoint{X: 40, Y: 40, Score: 0.9}
	kps[12] = pose.Keypoint{X: 60, Y: 40, Score: 0.9}
	kps[23] = pose.Keypoint{X: 42, Y: 90, Score: 0.9}
	kps[24] = pose.Keypoint{X: 58, Y: 90, Score: 0.9}
	return &pose.Result{Keypoints: kps, BBox: pose.BBox{30, 30, 40, 70}}
}

func TestDrawPoseDoesNotMutateSource(t *testing.T) {
	frame := solidFrame(100, 100, color.RGBA{0, 0, 0, 255})
	beforePix := append([]byte(nil), frame.Pix...)

	out := DrawPose(frame, fullPose(), color.RGBA{0, 255, 0, 255})

	for i, b := range frame.Pix {
		if b != beforePix[i] {
			t.Fatalf("DrawPose must not mutate the source frame (byte %d changed)", i)
		}
	}
	if out == nil || out.Bounds() != frame.Bounds() {
		t.Fatalf("expected an annotated copy with matching bounds")
	}
}

func TestDrawPoseNilResultReturnsPlainCopy(t *testing.T) {
	frame := solidFrame(20, 20, color.RGBA{10, 20, 30, 255})
	out := DrawPose(frame, nil, color.RGBA{255, 0, 0, 255})
	r, g, b, _ := out.At(5, 5).RGBA()
	if uint8(r>>8) != 10 || uint8(g>>8) != 20 || uint8(b>>8) != 30 {
		t.Fatalf("expected an unmodified copy for a nil pose, got RGB(%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestDrawHUDRendersSomePixels(t *testing.T) {
	frame := solidFrame(200, 60, color.RGBA{0, 0, 0, 255})
	out := DrawHUD(frame, []string{"idle", "infer_fps=10.0"}, 5, 15, color.RGBA{255, 255, 0, 255})

	changed := false
	for y := 0; y < out.Bounds().Dy() && !changed; y++ {
		for x := 0; x < out.Bounds().Dx(); x++ {
			r, g, b, _ := out.At(x, y).RGBA()
			if r>>8 != 0 || g>>8 != 0 || b>>8 != 0 {
				changed = true
				break
			}
		}
	}
	if !changed {
		t.Fatalf("expected DrawHUD to render visible text pixels")
	}
}

func TestFaceBlurNoPoseLeavesFrameUnchanged(t *testing.T) {
	frame := solidFrame(30, 30, color.RGBA{100, 110, 120, 255})
	out := FaceBlur(frame, nil, 15)
	r, g, b, _ := out.At(15, 15).RGBA()
	if uint8(r>>8) != 100 || uint8(g>>8) != 110 || uint8(b>>8) != 120 {
		t.Fatalf("expected unchanged pixels with no pose, got RGB(%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestFaceBlurSmoothsAroundHead(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 60, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 60; x++ {
			if (x+y)%2 == 0 {
				frame.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				frame.Set(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}

	p := fullPose()
	p.Keypoints[headIndex] = pose.Keypoint{X: 30, Y: 30, Score: 0.9}

	out := FaceBlur(frame, p, 5)
	r, _, _, _ := out.At(30, 30).RGBA()
	v := r >> 8
	if v == 0 || v == 255 {
		t.Fatalf("expected a blurred (mid-range) pixel at the head center, got %d", v)
	}
}

func TestOddKernelNormalizesToOddMinimumThree(t *testing.T) {
	cases := map[int]int{0: 3, 1: 3, 2: 3, 3: 3, 4: 5, 31: 31, 32: 33}
	for in, want := range cases {
		if got := oddKernel(in); got != want {
			t.Errorf("oddKernel(%d) = %d, want %d", in, got, want)
		}
	}
}
