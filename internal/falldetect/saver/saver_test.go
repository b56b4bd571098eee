package saver

import (
	"context"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/your-org/falldetect/internal/falldetect/config"
	"github.com/your-org/falldetect/internal/falldetect/ids"
)

func baseEvent(baseDir string) CompletedEvent {
	return CompletedEvent{
		EventID:  "20260305T120000Z_cam01_fall_0001",
		TsUTC:    "2026-03-05T12:00:00Z",
		CameraID: "cam01",
		Frames: []FrameToSave{
			{Frame: image.NewRGBA(image.Rect(0, 0, 4, 4)), TRelMs: -200},
			{Frame: image.NewRGBA(image.Rect(0, 0, 4, 4)), TRelMs: 0},
			{Frame: image.NewRGBA(image.Rect(0, 0, 4, 4)), TRelMs: 300},
		},
		Features: TriggerFeatures{
			AngleDegTh: 55, RatioTh: 0.6, HipDropPxTh: 40,
			ThetaMax: 80, RatioMin: 0.3, HipDrop: 90, StillScore: 0.1,
		},
		ModelBackend: "onnx",
		ModelName:    "movenet.onnx",
		NumThreads:   2,
		InferenceFPS: 12,
		BaseDir:      baseDir,
		Saver:        config.SaverConfig{ImageFormat: "png", PreSeconds: 2, PostSeconds: 3},
		Host:         "test-host",
		AppVersion:   "0.1.0",
	}
}

func readEventJSON(t *testing.T, outDir string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(outDir, "event.json"))
	if err != nil {
		t.Fatalf("read event.json: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal event.json: %v", err)
	}
	return doc
}

func TestSaveEventWritesManifestAndFrames(t *testing.T) {
	base := t.TempDir()
	ev := baseEvent(base)

	outDir, err := saveEvent(ev)
	if err != nil {
		t.Fatalf("saveEvent: %v", err)
	}

	doc := readEventJSON(t, outDir)
	if doc["event_id"] != ev.EventID {
		t.Errorf("event_id = %v, want %v", doc["event_id"], ev.EventID)
	}
	frames := doc["frames"].(map[string]any)
	saved := frames["saved_files"].([]any)
	if len(saved) != len(ev.Frames) {
		t.Errorf("expected %d saved files (one per frame, no raw/clip), got %d", len(ev.Frames), len(saved))
	}
	for _, f := range saved {
		name := f.(map[string]any)["file"].(string)
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("saved file %q missing on disk: %v", name, err)
		}
	}
}

func TestSaveEventWritesRawWhenConfigured(t *testing.T) {
	base := t.TempDir()
	ev := baseEvent(base)
	ev.Saver.SaveRaw = true

	outDir, err := saveEvent(ev)
	if err != nil {
		t.Fatalf("saveEvent: %v", err)
	}
	doc := readEventJSON(t, outDir)
	saved := doc["frames"].(map[string]any)["saved_files"].([]any)
	if len(saved) != len(ev.Frames)*2 {
		t.Errorf("expected an annotated+raw pair per frame (%d), got %d", len(ev.Frames)*2, len(saved))
	}
}

func TestSaveEventRedactsHostWhenConfigured(t *testing.T) {
	base := t.TempDir()
	ev := baseEvent(base)
	ev.Privacy.RedactMetadata = true

	outDir, err := saveEvent(ev)
	if err != nil {
		t.Fatalf("saveEvent: %v", err)
	}
	doc := readEventJSON(t, outDir)
	system := doc["system"].(map[string]any)
	if h, ok := system["host"]; ok && h != "" {
		t.Errorf("expected host redacted, got %v", h)
	}
}

func TestSaveEventAppliesFaceBlurWithoutError(t *testing.T) {
	base := t.TempDir()
	ev := baseEvent(base)
	ev.Privacy.FaceBlur = true
	ev.Privacy.BlurKernel = 7

	if _, err := saveEvent(ev); err != nil {
		t.Fatalf("saveEvent with face blur enabled: %v", err)
	}
}

func TestSaveEventRejectsBadTimestamp(t *testing.T) {
	ev := baseEvent(t.TempDir())
	ev.TsUTC = "not-a-timestamp"
	if _, err := saveEvent(ev); err == nil {
		t.Fatalf("expected an error for a malformed timestamp")
	}
}

type fakeNotifier struct {
	ch chan [2]string
}

func (f *fakeNotifier) NotifyEventSaved(eventID, cameraID string) {
	f.ch <- [2]string{eventID, cameraID}
}

type fakeIndexer struct {
	ch chan string
}

func (f *fakeIndexer) IndexEvent(ctx context.Context, ev CompletedEvent, eventDir string) error {
	f.ch <- eventDir
	return nil
}

func TestWorkerNotifiesAndIndexesOnSuccessfulSave(t *testing.T) {
	base := t.TempDir()
	notifier := &fakeNotifier{ch: make(chan [2]string, 1)}
	indexer := &fakeIndexer{ch: make(chan string, 1)}

	w := NewWorker(notifier, indexer)
	defer w.Stop()

	ev := baseEvent(base)
	w.Submit(ev)

	select {
	case got := <-notifier.ch:
		if got[0] != ev.EventID || got[1] != ev.CameraID {
			t.Errorf("notifier got %v, want [%s %s]", got, ev.EventID, ev.CameraID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notifier callback")
	}

	select {
	case dir := <-indexer.ch:
		if _, err := os.Stat(filepath.Join(dir, "event.json")); err != nil {
			t.Errorf("indexer received a directory without an event.json: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for indexer callback")
	}
}

func TestWorkerSubmitNeverDropsUnderBurst(t *testing.T) {
	// Construct a Worker with its background goroutine not started, so
	// Submit's queue growth can be observed deterministically before
	// anything is drained.
	w := &Worker{}
	w.cond = sync.NewCond(&w.mu)

	w.Submit(CompletedEvent{EventID: "first"})
	w.Submit(CompletedEvent{EventID: "second"})
	w.Submit(CompletedEvent{EventID: "third"})

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) != 3 {
		t.Fatalf("queue depth = %d, want 3 (no drops)", len(w.queue))
	}
	want := []string{"first", "second", "third"}
	for i, id := range want {
		if w.queue[i].EventID != id {
			t.Fatalf("queue[%d] = %q, want %q", i, w.queue[i].EventID, id)
		}
	}
}

func TestWorkerDrainsBacklogInFIFOOrderOnStop(t *testing.T) {
	base := t.TempDir()
	notifier := &fakeNotifier{ch: make(chan [2]string, 8)}

	w := NewWorker(notifier, nil)

	eventIDs := []string{"e1", "e2", "e3", "e4", "e5"}
	for _, id := range eventIDs {
		ev := baseEvent(base)
		ev.EventID = id
		w.Submit(ev)
	}

	w.Stop()

	var got []string
	for i := 0; i < len(eventIDs); i++ {
		select {
		case n := <-notifier.ch:
			got = append(got, n[0])
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for notification %d", i)
		}
	}
	for i, id := range eventIDs {
		if got[i] != id {
			t.Fatalf("drain order = %v, want %v", got, eventIDs)
		}
	}
}

func TestEnforceRetentionForRecoversFromInvalidBaseDir(t *testing.T) {
	ev := baseEvent("")
	ev.BaseDir = string([]byte{0})
	// Must not panic even on a nonsensical path.
	enforceRetentionFor(ev)
}

func TestListEventDirsAfterSave(t *testing.T) {
	base := t.TempDir()
	ev := baseEvent(base)
	if _, err := saveEvent(ev); err != nil {
		t.Fatalf("saveEvent: %v", err)
	}
	dirs, err := ids.ListEventDirs(base)
	if err != nil {
		t.Fatalf("ListEventDirs: %v", err)
	}
	if len(dirs) != 1 {
		t.Fatalf("expected one event directory, got %d", len(dirs))
	}
}
