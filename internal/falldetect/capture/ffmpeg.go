package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ffmpegSource decodes a single camera/stream into a JPEG sequence via
// an ffmpeg subprocess: one source, one emit callback, paced to
// cfg.FPS rather than left to ffmpeg's own -vf fps filter alone
// (frames arriving early are held back so the ring fills at the
// configured camera rate, not the decoder's burst rate).
type ffmpegSource struct {
	cfg Config
}

func newFFmpegSource(cfg Config) *ffmpegSource {
	return &ffmpegSource{cfg: cfg}
}

func (f *ffmpegSource) Run(ctx context.Context, emit func(image.Image)) error {
	src := parseSource(f.cfg.Source)

	args := []string{"-hide_banner", "-loglevel", "warning"}
	if strings.HasPrefix(src, "rtsp://") || strings.HasPrefix(src, "rtsps://") {
		args = append(args,
			"-rtsp_transport", "tcp",
			"-stimeout", "5000000",
			"-timeout", "5000000",
		)
	} else if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
		)
	} else if strings.HasPrefix(src, "/dev/video") {
		args = append(args, "-f", "v4l2")
	}

	fps := f.cfg.FPS
	if fps < 1 {
		fps = 30
	}
	width := f.cfg.Width
	if width < 1 {
		width = 1280
	}

	args = append(args,
		"-i", src,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", fps, width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("capture source stderr", "output", scanner.Text())
		}
	}()

	pacing := time.Second / time.Duration(fps)
	nextAt := time.Now()

	err = scanJPEGStream(ctx, stdout, func(data []byte) error {
		img, decErr := jpeg.Decode(bytes.NewReader(data))
		if decErr != nil {
			return nil // drop a malformed frame rather than aborting the stream
		}

		now := time.Now()
		if d := nextAt.Sub(now); d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}
		nextAt = nextAt.Add(pacing)
		if now.Sub(nextAt) > pacing {
			nextAt = now.Add(pacing) // resync after a long stall
		}

		emit(img)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read frames: %w", err)
	}

	return cmd.Wait()
}

// maxFrameBytes bounds a single JPEG so a corrupt stream cannot grow
// the scan window without limit.
const maxFrameBytes = 10 << 20

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// scanJPEGStream splits ffmpeg's concatenated-JPEG stdout into whole
// frames with a windowed marker search: the window grows by block
// reads until it holds a complete SOI..EOI span, the span is copied
// out to callback, and the window is compacted past the consumed
// bytes. First-frame liveness is not this function's concern; the
// capture Thread's Start enforces its own open deadline, so a stream
// that ends before producing anything is reported as a plain error
// and retried by the caller's backoff loop.
func scanJPEGStream(ctx context.Context, r io.Reader, callback func([]byte) error) error {
	window := make([]byte, 0, 256*1024)
	chunk := make([]byte, 64*1024)
	frames := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, readErr := r.Read(chunk)
		if n > 0 {
			window = append(window, chunk[:n]...)
		}

		for {
			start := bytes.Index(window, jpegSOI)
			if start < 0 {
				// Inter-frame noise only. Keep the final byte in case
				// the window ends halfway through a marker.
				if len(window) > 1 {
					window = append(window[:0], window[len(window)-1:]...)
				}
				break
			}
			rel := bytes.Index(window[start+2:], jpegEOI)
			if rel < 0 {
				if start > 0 {
					window = append(window[:0], window[start:]...)
				}
				if len(window) > maxFrameBytes {
					return fmt.Errorf("jpeg frame exceeds %d bytes", maxFrameBytes)
				}
				break
			}
			frameEnd := start + 2 + rel + 2
			frame := append([]byte(nil), window[start:frameEnd]...)
			window = append(window[:0], window[frameEnd:]...)
			frames++
			if err := callback(frame); err != nil {
				return err
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				if frames == 0 {
					return fmt.Errorf("stream ended before the first frame")
				}
				return nil
			}
			return fmt.Errorf("read stream: %w", readErr)
		}
	}
}
