// Package saver writes a completed fall event to disk: per-frame
// stills, an optional clip, and an event.json manifest. A background
// goroutine drains an unbounded queue so the inference loop is never
// blocked on disk I/O and a detected fall is never dropped for lack
// of queue capacity.
package saver

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/falldetect/internal/falldetect/config"
	"github.com/your-org/falldetect/internal/falldetect/ids"
	"github.com/your-org/falldetect/internal/falldetect/pose"
	"github.com/your-org/falldetect/internal/observability"
)

// FrameToSave is one frame bound for a saved event, tagged with its
// offset from the trigger instant (negative for pre-roll, positive
// for post-roll).
type FrameToSave struct {
	Frame   image.Image
	TRelMs  int
	Pose    *pose.Result
}

// TriggerFeatures carries the threshold snapshot recorded at the
// moment a fall was confirmed, for inclusion in event.json's decision
// block.
type TriggerFeatures struct {
	AngleDegTh        float64
	RatioTh           float64
	HipDropPxTh       float64
	TPose             float64
	TDrop             float64
	TStill            float64
	VStill            float64
	MinPersonHeightPx float64
	CooldownSec       float64
	ThetaMax          float64
	RatioMin          float64
	HipDrop           float64
	StillScore        float64
}

// CompletedEvent is a fully assembled fall event ready to be written.
type CompletedEvent struct {
	EventID      string
	TsUTC        string
	CameraID     string
	Frames       []FrameToSave
	Features     TriggerFeatures
	ModelBackend string
	ModelName    string
	NumThreads   int
	InferenceFPS float64
	BaseDir      string
	Privacy      config.PrivacyConfig
	Saver        config.SaverConfig
	Host         string
	AppVersion   string
	GitCommit    string
}

// Notifier is implemented by anything that wants a best-effort,
// non-blocking heads-up once an event finishes saving (e.g. a NATS
// publish). A nil Notifier disables notification.
type Notifier interface {
	NotifyEventSaved(eventID, cameraID string)
}

// Indexer is implemented by anything that wants a durable, queryable
// record of a saved event (e.g. a Postgres row) once its files land on
// disk. A nil Indexer disables indexing.
type Indexer interface {
	IndexEvent(ctx context.Context, ev CompletedEvent, eventDir string) error
}

// Worker drains an unbounded, growable queue of CompletedEvents on
// its own goroutine. A detected fall is never dropped: Submit only
// appends to the backing slice, it never blocks and never discards a
// pending event, no matter how far the worker falls behind.
type Worker struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []CompletedEvent
	closed   bool
	notifier Notifier
	indexer  Indexer
	done     chan struct{}
	once     sync.Once
}

// NewWorker starts the background save goroutine. notifier and indexer
// may each be nil.
func NewWorker(notifier Notifier, indexer Indexer) *Worker {
	w := &Worker{
		notifier: notifier,
		indexer:  indexer,
		done:     make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// Submit appends ev to the pending queue and wakes the worker. It
// never blocks on disk I/O and never drops an event; the queue grows
// to absorb whatever backlog accumulates while the worker is busy.
func (w *Worker) Submit(ev CompletedEvent) {
	w.mu.Lock()
	w.queue = append(w.queue, ev)
	depth := len(w.queue)
	w.mu.Unlock()
	observability.FDSaverQueueDepth.Set(float64(depth))
	w.cond.Signal()
}

// Stop signals the worker to drain the remaining queue and exit, and
// waits up to 2s for it to do so.
func (w *Worker) Stop() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.cond.Signal()
	})
	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		slog.Warn("saver worker did not stop within 2s")
	}
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 && w.closed {
			w.mu.Unlock()
			return
		}
		ev := w.queue[0]
		w.queue = w.queue[1:]
		depth := len(w.queue)
		w.mu.Unlock()
		observability.FDSaverQueueDepth.Set(float64(depth))

		eventDir, err := saveEvent(ev)
		if err != nil {
			slog.Error("event save failed", "event_id", ev.EventID, "error", err)
			continue
		}
		slog.Info("event saved", "event_id", ev.EventID)
		if w.notifier != nil {
			w.notifier.NotifyEventSaved(ev.EventID, ev.CameraID)
		}
		if w.indexer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := w.indexer.IndexEvent(ctx, ev, eventDir); err != nil {
				slog.Warn("event index failed", "event_id", ev.EventID, "error", err)
			}
			cancel()
		}
	}
}

// enforceRetentionFor runs ids.EnforceRetention best-effort ahead of a
// save, matching _save_event's try/except-wrapped call.
func enforceRetentionFor(ev CompletedEvent) {
	defer func() { _ = recover() }()
	ids.EnforceRetention(ev.BaseDir, ev.Privacy.RetentionDays, 5.0)
}
