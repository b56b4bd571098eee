// Package collector runs the per-frame inference loop: sample the
// capture ring at the configured inference rate, run pose estimation,
// evaluate the fall FSM, and on trigger assemble and submit a
// pre/post-roll event to the saver.
package collector

import (
	"bytes"
	"context"
	"image/color"
	"image/jpeg"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/your-org/falldetect/internal/falldetect/annotate"
	"github.com/your-org/falldetect/internal/falldetect/capture"
	fdconfig "github.com/your-org/falldetect/internal/falldetect/config"
	"github.com/your-org/falldetect/internal/falldetect/features"
	"github.com/your-org/falldetect/internal/falldetect/fsm"
	"github.com/your-org/falldetect/internal/falldetect/ids"
	"github.com/your-org/falldetect/internal/falldetect/pose"
	"github.com/your-org/falldetect/internal/falldetect/saver"
	"github.com/your-org/falldetect/internal/observability"
)

// FrameSink receives one annotated JPEG frame per inference cycle, for
// a --display viewer. Pushing must never block the caller.
type FrameSink interface {
	PushFrame(jpegData []byte)
}

// histEntry pairs one inference cycle's frame record with its pose
// estimate (nil if no usable pose was found).
type histEntry struct {
	rec  capture.FrameRecord
	pose *pose.Result
}

// inProgress tracks an event between its trigger instant and the post
// frame goal being reached.
type inProgress struct {
	eventID  string
	tsUTC    time.Time
	t0Index  int64
	pre      []histEntry
	post     []histEntry
	needPost int
	features saver.TriggerFeatures
}

// Status is a snapshot of the collector's live state, for HUD/debug
// display.
type Status struct {
	InferFPS      float64
	State         fsm.State
	LastTriggered string
}

// Collector is the single-camera orchestration loop.
type Collector struct {
	cfg       fdconfig.Config
	ring      *capture.Thread
	estimator pose.Estimator
	fsm       *fsm.FSM
	saver     *saver.Worker

	hist      []histEntry
	maxHist   int
	seq       int
	sink      FrameSink
	lastState fsm.State
	gitCommit string

	statusMu sync.RWMutex
	status   Status
}

// SetSink attaches a FrameSink (e.g. the HUD hub) that receives one
// annotated JPEG per inference cycle. Call before Run; nil disables
// the HUD feed.
func (c *Collector) SetSink(sink FrameSink) {
	c.sink = sink
}

// New constructs a Collector. The estimator and saver are supplied by
// the caller (cmd/falldetectd) so tests can substitute fixtures.
// gitCommit is copied verbatim into every saved event's metadata; pass
// "" when unknown.
func New(cfg fdconfig.Config, ring *capture.Thread, estimator pose.Estimator, saverWorker *saver.Worker, gitCommit string) *Collector {
	inferFPS := cfg.Camera.InferenceFPS
	if inferFPS < 1 {
		inferFPS = 1
	}
	maxHist := int(cfg.Saver.PreSeconds*float64(inferFPS)*2) + 20

	fsmCfg := fsm.Config{
		MinConfJoints:     cfg.Detection.MinConfJoints,
		AngleDegTh:        cfg.Detection.AngleDegTh,
		RatioTh:           cfg.Detection.RatioTh,
		TPose:             fdconfig.Seconds(cfg.Detection.TPoseSec),
		HipDropPxTh:       cfg.Detection.HipDropPxTh,
		TDrop:             fdconfig.Seconds(cfg.Detection.TDropSec),
		TStill:            fdconfig.Seconds(cfg.Detection.TStillSec),
		VStillPxPerFrame:  cfg.Detection.VStillPxPerFrame,
		MinPersonHeightPx: cfg.Detection.MinPersonHeightPx,
		CooldownSec:       fdconfig.Seconds(cfg.Detection.CooldownSec),
		CGraceSec:         fdconfig.Seconds(cfg.Detection.CGraceSec),
		InferenceFPS:      float64(inferFPS),
	}

	return &Collector{
		cfg:       cfg,
		ring:      ring,
		estimator: estimator,
		fsm:       fsm.New(fsmCfg),
		saver:     saverWorker,
		maxHist:   maxHist,
		seq:       1,
		gitCommit: gitCommit,
	}
}

// Run executes the inference loop until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	inferFPS := c.cfg.Camera.InferenceFPS
	if inferFPS < 1 {
		inferFPS = 1
	}
	period := time.Second / time.Duration(inferFPS)

	var collecting *inProgress

	fpsCounter := 0
	fpsT0 := time.Now()

	nextInfer := time.Now()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lr, ok := c.ring.Latest()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		now := time.Now()
		if now.Before(nextInfer) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(nextInfer.Sub(now)):
			}
		}
		nextInfer = time.Now().Add(period)

		estimateStart := time.Now()
		p, err := c.estimator.Estimate(ctx, lr.Frame)
		observability.FDInferenceDuration.Observe(time.Since(estimateStart).Seconds())
		observability.FDFramesProcessed.Inc()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("pose estimation error", "error", err)
			p = nil
		}
		if p == nil {
			observability.FDPoseMissing.Inc()
		}

		entry := histEntry{rec: lr, pose: p}
		c.hist = append(c.hist, entry)
		if len(c.hist) > c.maxHist {
			c.hist = c.hist[len(c.hist)-c.maxHist:]
		}

		if c.sink != nil {
			c.pushHUDFrame(lr, p)
		}

		fpsCounter++
		if time.Since(fpsT0) >= time.Second {
			c.setStatus(float64(fpsCounter)/time.Since(fpsT0).Seconds())
			fpsCounter = 0
			fpsT0 = time.Now()
		}

		if collecting != nil {
			collecting.post = append(collecting.post, entry)
			if len(collecting.post) >= collecting.needPost {
				c.finalizeEvent(collecting)
				collecting = nil
			}
		}

		if collecting == nil && p != nil {
			ft, ok := features.Extract(p)
			if ok {
				triggered, snap := c.fsm.Update(ft, now)
				if triggered && snap != nil {
					collecting = c.startCollecting(lr, snap)
					observability.FDFallsDetected.WithLabelValues(c.cfg.Camera.CameraID).Inc()
					c.statusMu.Lock()
					c.status.LastTriggered = collecting.eventID
					c.statusMu.Unlock()
					slog.Info("fall detected, collecting event", "event_id", collecting.eventID)
				}
			}
		}

		if cur := c.fsm.State(); cur != c.lastState {
			if c.lastState != "" {
				observability.FDFSMState.WithLabelValues(c.cfg.Camera.CameraID, string(c.lastState)).Set(0)
			}
			observability.FDFSMState.WithLabelValues(c.cfg.Camera.CameraID, string(cur)).Set(1)
			c.lastState = cur
		}
	}
}

// pushHUDFrame annotates the latest frame with its pose (when present)
// and the machine's current state, then hands it to the sink as JPEG.
// Encoding errors are logged and dropped; a stalled viewer must never
// back up the inference loop.
func (c *Collector) pushHUDFrame(lr capture.FrameRecord, p *pose.Result) {
	img := lr.Frame
	if p != nil {
		img = annotate.DrawPose(img, p, color.RGBA{0, 255, 0, 255})
	}
	img = annotate.DrawHUD(img, []string{string(c.fsm.State())}, 10, 20, color.RGBA{255, 255, 0, 255})

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		slog.Warn("hud frame encode failed", "error", err)
		return
	}
	c.sink.PushFrame(buf.Bytes())
}

func (c *Collector) startCollecting(trigger capture.FrameRecord, snap *fsm.Snapshot) *inProgress {
	evID := ids.EventID(c.cfg.Camera.CameraID, c.seq, trigger.TsUTC)
	c.seq++

	inferFPS := float64(c.cfg.Camera.InferenceFPS)
	if inferFPS < 1 {
		inferFPS = 1
	}
	needPre := int(c.cfg.Saver.PreSeconds * inferFPS)
	needPost := int(c.cfg.Saver.PostSeconds * inferFPS)

	pre := c.hist
	if len(pre) > needPre {
		pre = pre[len(pre)-needPre:]
	}
	preCopy := make([]histEntry, len(pre))
	copy(preCopy, pre)

	return &inProgress{
		eventID:  evID,
		tsUTC:    trigger.TsUTC,
		t0Index:  trigger.Index,
		pre:      preCopy,
		post:     nil,
		needPost: needPost,
		features: saver.TriggerFeatures{
			AngleDegTh:        c.cfg.Detection.AngleDegTh,
			RatioTh:           c.cfg.Detection.RatioTh,
			HipDropPxTh:       c.cfg.Detection.HipDropPxTh,
			TPose:             c.cfg.Detection.TPoseSec,
			TDrop:             c.cfg.Detection.TDropSec,
			TStill:            c.cfg.Detection.TStillSec,
			VStill:            c.cfg.Detection.VStillPxPerFrame,
			MinPersonHeightPx: c.cfg.Detection.MinPersonHeightPx,
			CooldownSec:       c.cfg.Detection.CooldownSec,
			ThetaMax:          snap.ThetaMax,
			RatioMin:          snap.RatioMin,
			HipDrop:           snap.HipDrop,
			StillScore:        snap.StillScore,
		},
	}
}

func (c *Collector) finalizeEvent(ip *inProgress) {
	inferFPS := float64(c.cfg.Camera.InferenceFPS)
	if inferFPS < 1 {
		inferFPS = 1
	}

	var frames []saver.FrameToSave
	appendAll := func(entries []histEntry) {
		for _, e := range entries {
			tRelMs := int(float64(e.rec.Index-ip.t0Index) * (1000.0 / inferFPS))
			frames = append(frames, saver.FrameToSave{Frame: e.rec.Frame, TRelMs: tRelMs, Pose: e.pose})
		}
	}
	appendAll(ip.pre)
	appendAll(ip.post)

	modelName := "unknown_pose_model"
	if c.cfg.Model.ModelPath != "" {
		modelName = filepath.Base(c.cfg.Model.ModelPath)
	}

	ev := saver.CompletedEvent{
		EventID:      ip.eventID,
		TsUTC:        ids.ISOUTC(ip.tsUTC),
		CameraID:     c.cfg.Camera.CameraID,
		Frames:       frames,
		Features:     ip.features,
		ModelBackend: c.cfg.Model.Backend,
		ModelName:    modelName,
		NumThreads:   c.cfg.Model.NumThreads,
		InferenceFPS: inferFPS,
		BaseDir:      c.cfg.Saver.BaseDir,
		Privacy:      c.cfg.Privacy,
		Saver:        c.cfg.Saver,
		Host:         ids.HostName(),
		AppVersion:   AppVersion,
		GitCommit:    c.gitCommit,
	}

	c.saver.Submit(ev)
	slog.Info("event queued", "event_id", ip.eventID, "frames", len(frames))
}

func (c *Collector) setStatus(inferFPS float64) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.status.InferFPS = inferFPS
	c.status.State = c.fsm.State()
}

// Status returns the collector's current snapshot, safe for
// concurrent readers (the HUD/statusapi servers).
func (c *Collector) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// AppVersion is the build identifier recorded into every saved event.
const AppVersion = "0.1.0"
