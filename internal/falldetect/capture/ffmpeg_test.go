package capture

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func jpegFrame(payload []byte) []byte {
	frame := []byte{0xFF, 0xD8}
	frame = append(frame, payload...)
	return append(frame, 0xFF, 0xD9)
}

// drip returns at most n bytes per Read, forcing frames to span
// multiple reads.
type drip struct {
	data []byte
	n    int
}

func (d *drip) Read(p []byte) (int, error) {
	if len(d.data) == 0 {
		return 0, io.EOF
	}
	n := d.n
	if n > len(d.data) {
		n = len(d.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, d.data[:n])
	d.data = d.data[n:]
	return n, nil
}

func collectFrames(t *testing.T, r io.Reader) [][]byte {
	t.Helper()
	var got [][]byte
	err := scanJPEGStream(context.Background(), r, func(frame []byte) error {
		got = append(got, frame)
		return nil
	})
	if err != nil {
		t.Fatalf("scanJPEGStream: %v", err)
	}
	return got
}

func TestScanJPEGStreamSplitsConcatenatedFrames(t *testing.T) {
	f1 := jpegFrame([]byte{0x01, 0x02, 0x03})
	f2 := jpegFrame(bytes.Repeat([]byte{0x04}, 100))

	var stream []byte
	stream = append(stream, 0x00, 0x00) // leading noise
	stream = append(stream, f1...)
	stream = append(stream, 0x7F) // inter-frame noise
	stream = append(stream, f2...)

	got := collectFrames(t, bytes.NewReader(stream))
	if len(got) != 2 {
		t.Fatalf("frame count = %d, want 2", len(got))
	}
	if !bytes.Equal(got[0], f1) || !bytes.Equal(got[1], f2) {
		t.Fatalf("frames differ from input")
	}
}

func TestScanJPEGStreamHandlesFramesSpanningReads(t *testing.T) {
	f1 := jpegFrame(bytes.Repeat([]byte{0x11}, 300))
	f2 := jpegFrame(bytes.Repeat([]byte{0x22}, 300))

	got := collectFrames(t, &drip{data: append(append([]byte{}, f1...), f2...), n: 7})
	if len(got) != 2 {
		t.Fatalf("frame count = %d, want 2", len(got))
	}
	if !bytes.Equal(got[0], f1) || !bytes.Equal(got[1], f2) {
		t.Fatalf("frames differ from input when dripped across reads")
	}
}

func TestScanJPEGStreamErrorsOnEmptyStream(t *testing.T) {
	err := scanJPEGStream(context.Background(), bytes.NewReader(nil), func([]byte) error {
		t.Fatalf("callback must not fire for an empty stream")
		return nil
	})
	if err == nil {
		t.Fatalf("expected an error for a stream that ends before the first frame")
	}
}

func TestScanJPEGStreamStopsOnCallbackError(t *testing.T) {
	stream := append(jpegFrame([]byte{0x01}), jpegFrame([]byte{0x02})...)
	calls := 0
	err := scanJPEGStream(context.Background(), bytes.NewReader(stream), func([]byte) error {
		calls++
		return io.ErrClosedPipe
	})
	if err != io.ErrClosedPipe {
		t.Fatalf("expected the callback error back, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("callback fired %d times after an error, want 1", calls)
	}
}
