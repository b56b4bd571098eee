package saver

import (
	"encoding/binary"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/your-org/falldetect/internal/falldetect/config"
)

func clipFrames(n int) []FrameToSave {
	frames := make([]FrameToSave, n)
	for i := range frames {
		frames[i] = FrameToSave{Frame: image.NewRGBA(image.Rect(0, 0, 8, 6)), TRelMs: i * 100}
	}
	return frames
}

// frameCountOf reads dwTotalFrames out of the avih header.
func frameCountOf(t *testing.T, path string) uint32 {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read clip: %v", err)
	}
	if len(data) < 52 {
		t.Fatalf("clip too short to hold an AVI header: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "AVI " {
		t.Fatalf("clip is not a RIFF AVI, got %q %q", data[0:4], data[8:12])
	}
	return binary.LittleEndian.Uint32(data[48:52])
}

func TestWriteClipProducesPlayableAVIHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	clip := config.VideoClipConfig{Enabled: true, FPS: 10, MaxSeconds: 6}

	if err := writeClip(path, clipFrames(5), clip, 90); err != nil {
		t.Fatalf("writeClip: %v", err)
	}
	if got := frameCountOf(t, path); got != 5 {
		t.Errorf("avih frame count = %d, want 5", got)
	}

	// The declared RIFF size must match the bytes on disk.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	declared := binary.LittleEndian.Uint32(data[4:8])
	if int(declared)+8 != len(data) {
		t.Errorf("RIFF size %d+8 != file size %d", declared, len(data))
	}
}

func TestWriteClipCapsAtMaxSeconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	clip := config.VideoClipConfig{Enabled: true, FPS: 10, MaxSeconds: 0.5}

	if err := writeClip(path, clipFrames(20), clip, 90); err != nil {
		t.Fatalf("writeClip: %v", err)
	}
	if got := frameCountOf(t, path); got != 5 {
		t.Errorf("avih frame count = %d, want 5 (0.5s at 10fps)", got)
	}
}

func TestWriteClipRejectsSingleFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	clip := config.VideoClipConfig{Enabled: true, FPS: 10}

	if err := writeClip(path, clipFrames(1), clip, 90); err == nil {
		t.Fatalf("expected an error for a one-frame clip")
	}
}

func TestSaveEventWritesClipWhenEnabled(t *testing.T) {
	base := t.TempDir()
	ev := baseEvent(base)
	ev.Saver.VideoClip = config.VideoClipConfig{Enabled: true, FPS: 15, MaxSeconds: 6}

	outDir, err := saveEvent(ev)
	if err != nil {
		t.Fatalf("saveEvent: %v", err)
	}
	if got := frameCountOf(t, filepath.Join(outDir, "clip.mp4")); got != uint32(len(ev.Frames)) {
		t.Errorf("clip frame count = %d, want %d", got, len(ev.Frames))
	}
}
