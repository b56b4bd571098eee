package pose

import (
	"context"
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
)

// numJoints is the topology size of the single-person pose model: at
// minimum indices 11 (left shoulder), 12 (right shoulder), 23 (left
// hip), 24 (right hip) must be populated; the remaining joints ride
// along unused by the feature extractor.
const numJoints = 33

const (
	onnxInputW = 256
	onnxInputH = 256
)

// onnxEstimator runs a single-person 33-keypoint pose model via ONNX
// Runtime. One session per process; Estimate is not safe for concurrent
// use from multiple goroutines (mirrors the single inference-loop
// assumption the rest of the pipeline makes).
type onnxEstimator struct {
	session     *ort.AdvancedSession
	opts        *ort.SessionOptions
	inputTensor *ort.Tensor[float32]
	outTensor   *ort.Tensor[float32] // [33, 3]: x, y, score in model input space
	inputW      int
	inputH      int
}

func newONNXEstimator(cfg BackendConfig) (Estimator, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx pose backend: model_path not set")
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("set num_threads: %w", err)
		}
	}

	inputShape := ort.NewShape(1, 3, int64(onnxInputH), int64(onnxInputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outShape := ort.NewShape(1, numJoints, 3)
	outTensor, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		inputTensor.Destroy()
		opts.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"input"},
		[]string{"keypoints"},
		[]ort.Value{inputTensor},
		[]ort.Value{outTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outTensor.Destroy()
		opts.Destroy()
		return nil, fmt.Errorf("create pose session: %w", err)
	}

	return &onnxEstimator{
		session:     session,
		opts:        opts,
		inputTensor: inputTensor,
		outTensor:   outTensor,
		inputW:      onnxInputW,
		inputH:      onnxInputH,
	}, nil
}

func (e *onnxEstimator) Estimate(ctx context.Context, frame image.Image) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	bounds := frame.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	data := imageToFloat32CHW(frame, e.inputW, e.inputH)
	copy(e.inputTensor.GetData(), data)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run pose inference: %w", err)
	}

	out := e.outTensor.GetData()
	scaleX := float64(origW) / float64(e.inputW)
	scaleY := float64(origH) / float64(e.inputH)

	kps := make([]Keypoint, numJoints)
	for i := 0; i < numJoints; i++ {
		x := float64(out[i*3+0]) * scaleX
		y := float64(out[i*3+1]) * scaleY
		score := float64(out[i*3+2])
		kps[i] = Keypoint{X: x, Y: y, Score: score}
	}

	return &Result{
		Keypoints: kps,
		BBox:      boundingRect(kps, bounds),
		Score:     meanScore(kps),
	}, nil
}

func (e *onnxEstimator) Close() error {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outTensor != nil {
		e.outTensor.Destroy()
	}
	if e.opts != nil {
		e.opts.Destroy()
	}
	return nil
}

// imageToFloat32CHW resizes img to targetW×targetH and writes CHW
// float32 data normalised to [-1, 1] (mean 127.5, std 127.5 per
// channel).
func imageToFloat32CHW(img image.Image, targetW, targetH int) []float32 {
	data := make([]float32, 3*targetH*targetW)
	planeSize := targetH * targetW

	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	minX := bounds.Min.X
	minY := bounds.Min.Y

	if src, ok := img.(*image.RGBA); ok {
		for y := 0; y < targetH; y++ {
			srcY := minY + y*srcH/targetH
			for x := 0; x < targetW; x++ {
				srcX := minX + x*srcW/targetW
				off := src.PixOffset(srcX, srcY)
				pix := src.Pix[off : off+3 : off+3]
				idx := y*targetW + x
				data[idx] = (float32(pix[0]) - 127.5) / 127.5
				data[planeSize+idx] = (float32(pix[1]) - 127.5) / 127.5
				data[2*planeSize+idx] = (float32(pix[2]) - 127.5) / 127.5
			}
		}
		return data
	}

	for y := 0; y < targetH; y++ {
		srcY := minY + y*srcH/targetH
		for x := 0; x < targetW; x++ {
			srcX := minX + x*srcW/targetW
			r, g, b, _ := img.At(srcX, srcY).RGBA()
			idx := y*targetW + x
			data[idx] = (float32(r>>8) - 127.5) / 127.5
			data[planeSize+idx] = (float32(g>>8) - 127.5) / 127.5
			data[2*planeSize+idx] = (float32(b>>8) - 127.5) / 127.5
		}
	}
	return data
}
