package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config shapes one camera source: device, geometry, rates, and ring
// depth.
type Config struct {
	Source      string // device index ("0"), file path, or RTSP/HTTP URL
	Width       int
	Height      int
	FPS         int
	RingSeconds float64
}

// FrameSource is anything capable of producing a decoded frame stream
// for one camera. ffmpegSource is the only production implementation;
// the interface exists so tests can substitute synthetic frames.
type FrameSource interface {
	// Run blocks, invoking emit for each decoded frame, until ctx is
	// cancelled or the source is exhausted.
	Run(ctx context.Context, emit func(image.Image)) error
}

// Thread owns one FrameSource and republishes its output into a Ring:
// a dedicated goroutine paced to the configured fps, writing into a
// bounded history that Latest()/Snapshot() readers never block on.
type Thread struct {
	cfg    Config
	src    FrameSource
	ring   *Ring
	index  int64
	cancel context.CancelFunc
	done   chan struct{}
	failed atomic.Bool

	mu      sync.Mutex
	started bool
}

// NewThread builds a capture Thread backed by an ffmpeg frame source
// for cfg.Source. The ring retains max(6s, RingSeconds) worth of
// frames at cfg.FPS.
func NewThread(cfg Config) *Thread {
	return NewThreadWithSource(cfg, newFFmpegSource(cfg))
}

// NewThreadWithSource builds a capture Thread backed by an arbitrary
// FrameSource, letting callers outside this package (collector
// integration tests, alternate protocols) bypass ffmpeg entirely.
func NewThreadWithSource(cfg Config, src FrameSource) *Thread {
	ringSeconds := cfg.RingSeconds
	if ringSeconds < 6.0 {
		ringSeconds = 6.0
	}
	capacity := int(float64(cfg.FPS) * ringSeconds)
	if capacity < 1 {
		capacity = 1
	}
	return &Thread{
		cfg:  cfg,
		src:  src,
		ring: NewRing(capacity),
		done: make(chan struct{}),
	}
}

// openTimeout bounds how long Start waits for a first frame before
// declaring the source dead. A var, not a const, so tests can shrink
// it.
var openTimeout = 5 * time.Second

// Start launches the capture goroutine and blocks until the first
// frame arrives, the source reports an error, or openTimeout elapses,
// returning an error in the latter two cases so the caller can fail
// fast on a dead source.
func (t *Thread) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("capture thread already started")
	}
	t.started = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	go t.run(ctx)

	deadline := time.Now().Add(openTimeout)
	for time.Now().Before(deadline) {
		if _, ok := t.ring.Latest(); ok {
			return nil
		}
		if t.failed.Load() {
			cancel()
			<-t.done
			return fmt.Errorf("capture source failed to open: %s", t.cfg.Source)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	<-t.done
	return fmt.Errorf("capture source produced no frames within %s: %s", openTimeout, t.cfg.Source)
}

func (t *Thread) run(ctx context.Context) {
	defer close(t.done)

	backoff := 300 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return
		}
		err := t.src.Run(ctx, func(img image.Image) {
			idx := atomic.AddInt64(&t.index, 1)
			t.ring.Push(FrameRecord{TsUTC: time.Now().UTC(), Frame: img, Index: idx})
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("capture source error, retrying", "error", err, "backoff", backoff)
			t.failed.Store(true)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		return
	}
}

// Latest returns the most recently captured frame, or ok=false if
// none has arrived yet.
func (t *Thread) Latest() (FrameRecord, bool) {
	return t.ring.Latest()
}

// Snapshot returns every frame currently retained, oldest first.
func (t *Thread) Snapshot() []FrameRecord {
	return t.ring.Snapshot()
}

// Stop cancels the capture goroutine and waits up to 2s for it to
// exit.
func (t *Thread) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	select {
	case <-t.done:
	case <-time.After(2 * time.Second):
		slog.Warn("capture thread did not stop within 2s")
	}
}

// parseSource promotes a digit-string device index to its Linux v4l2
// device path: "0" becomes /dev/video0. Non-numeric sources (file
// paths, URLs) pass through unchanged.
func parseSource(s string) string {
	if n, err := strconv.Atoi(s); err == nil {
		return fmt.Sprintf("/dev/video%d", n)
	}
	return s
}
