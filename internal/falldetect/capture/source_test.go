package capture

import (
	"context"
	"image"
	"testing"
	"time"
)

// fakeSource emits one frame then blocks until ctx is cancelled, or
// fails immediately, depending on how it's configured.
type fakeSource struct {
	fail      bool
	emitAfter time.Duration
}

func (f *fakeSource) Run(ctx context.Context, emit func(image.Image)) error {
	if f.fail {
		return context.DeadlineExceeded
	}
	if f.emitAfter > 0 {
		select {
		case <-time.After(f.emitAfter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	emit(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	<-ctx.Done()
	return ctx.Err()
}

func newTestThread(src FrameSource) *Thread {
	return &Thread{
		cfg:  Config{Source: "test", FPS: 10},
		src:  src,
		ring: NewRing(4),
		done: make(chan struct{}),
	}
}

func TestThreadStartSucceedsOnceFirstFrameArrives(t *testing.T) {
	th := newTestThread(&fakeSource{})
	if err := th.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok := th.Latest(); !ok {
		t.Fatalf("expected a frame to be available after Start returns")
	}
	th.Stop()
}

func TestThreadStartFailsOnDeadSource(t *testing.T) {
	prev := openTimeout
	openTimeout = 50 * time.Millisecond
	defer func() { openTimeout = prev }()

	th := newTestThread(&fakeSource{fail: true})
	err := th.Start(context.Background())
	if err == nil {
		t.Fatalf("expected an error for a source that never produces a frame")
	}
	th.Stop()
}

func TestParseSourcePromotesDigitStringToDevicePath(t *testing.T) {
	cases := map[string]string{
		"0":                      "/dev/video0",
		"2":                      "/dev/video2",
		"/dev/video1":            "/dev/video1",
		"rtsp://cam.local/feed":  "rtsp://cam.local/feed",
		"./clips/sample.mp4":     "./clips/sample.mp4",
	}
	for in, want := range cases {
		if got := parseSource(in); got != want {
			t.Errorf("parseSource(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestThreadStopIsIdempotentSafe(t *testing.T) {
	th := newTestThread(&fakeSource{})
	if err := th.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	th.Stop()
	// A second Stop must not panic or hang (cancel is safe to call
	// again, and done is already closed).
	th.Stop()
}
