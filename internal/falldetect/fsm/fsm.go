// Package fsm implements the fall-detection state machine: a sustained
// posture check (A), a rapid hip-drop check (B), a subsequent
// stillness check (C), and a minimum-person-height gate (D). The
// machine latches into "await_still" once A, B and D all hold, then
// waits for stillness (C) before firing, or resets to idle if
// stillness never arrives within its grace window.
package fsm

import (
	"time"

	"github.com/your-org/falldetect/internal/falldetect/features"
)

// Config carries every tunable threshold. Field names mirror the
// configuration keys under detection: in the YAML config file.
type Config struct {
	MinConfJoints      int           // carried from config; not read by the machine or the collector
	AngleDegTh         float64       // theta above this counts toward A
	RatioTh            float64       // ratio below this counts toward A
	TPose              time.Duration // A must hold for this long
	HipDropPxTh        float64       // hip_y must drop more than this many px for B
	TDrop              time.Duration // window B's drop is measured over
	TStill             time.Duration // C must hold for this long after the latch
	VStillPxPerFrame   float64       // per-frame hip_y movement considered "still"
	MinPersonHeightPx  float64       // D: bbox height must be at least this
	CooldownSec        time.Duration // no new trigger within this long after firing
	CGraceSec          time.Duration // extra grace appended to the await_still deadline
	InferenceFPS        float64       // frame rate Update is called at, for window sizing
}

// DefaultConfig returns the stock detection thresholds.
func DefaultConfig() Config {
	return Config{
		MinConfJoints:     8,
		AngleDegTh:        55.0,
		RatioTh:           0.6,
		TPose:             500 * time.Millisecond,
		HipDropPxTh:       40,
		TDrop:             400 * time.Millisecond,
		TStill:            1 * time.Second,
		VStillPxPerFrame:  0.5,
		MinPersonHeightPx: 120,
		CooldownSec:       5 * time.Second,
		CGraceSec:         600 * time.Millisecond,
		InferenceFPS:      12,
	}
}

// State names the two phases of the machine.
type State string

const (
	StateIdle       State = "idle"
	StateAwaitStill State = "await_still"
)

// Snapshot captures the feature values observed at the moment a fall
// was confirmed, for inclusion in the saved event record.
type Snapshot struct {
	ThetaMax  float64
	RatioMin  float64
	HipDrop   float64
	StillScore float64
}

type sample struct {
	at features.Set
	t  time.Time
}

// FSM is the stateful fall-detection evaluator for one camera stream.
// Not safe for concurrent use; the collector drives it from a single
// goroutine.
type FSM struct {
	cfg Config

	history       []sample
	maxHistory    int
	state         State
	prelimHistLen int
	stillDeadline time.Time
	cooldownUntil time.Time

	preThetaMax float64
	preRatioMin float64
	preHipDrop  float64
}

// New constructs an FSM in the idle state.
func New(cfg Config) *FSM {
	maxHist := int(3.0)
	windowSecs := (cfg.TPose + cfg.TStill + cfg.TDrop).Seconds()
	if n := int(windowSecs*cfg.InferenceFPS) + 5; n > maxHist {
		maxHist = n
	}
	return &FSM{
		cfg:         cfg,
		maxHistory:  maxHist,
		state:       StateIdle,
		preRatioMin: 1e9,
	}
}

// UpdateNow calls Update with the current wall-clock time.
func (m *FSM) UpdateNow(ft features.Set) (bool, *Snapshot) {
	return m.Update(ft, time.Now())
}

// Update feeds one frame's features into the machine. It returns
// (true, snapshot) exactly once per confirmed fall, at the instant
// stillness (C) is observed while A, B and D's latch is still active.
func (m *FSM) Update(ft features.Set, now time.Time) (bool, *Snapshot) {
	m.push(ft, now)

	if now.Before(m.cooldownUntil) {
		return false, nil
	}

	switch m.state {
	case StateIdle:
		return m.evalIdle(now)
	case StateAwaitStill:
		return m.evalAwaitStill(now)
	default:
		return false, nil
	}
}

func (m *FSM) push(ft features.Set, now time.Time) {
	m.history = append(m.history, sample{at: ft, t: now})
	if len(m.history) > m.maxHistory {
		m.history = m.history[len(m.history)-m.maxHistory:]
	}
}

func (m *FSM) nPose() int {
	n := int(m.cfg.TPose.Seconds() * m.cfg.InferenceFPS)
	if n < 1 {
		n = 1
	}
	return n
}

func (m *FSM) nDrop() int {
	n := int(m.cfg.TDrop.Seconds() * m.cfg.InferenceFPS)
	if n < 1 {
		n = 1
	}
	return n
}

func (m *FSM) nStill() int {
	n := int(m.cfg.TStill.Seconds() * m.cfg.InferenceFPS)
	if n < 1 {
		n = 1
	}
	return n
}

// checkA reports whether posture has been sustained (theta above
// threshold or ratio below threshold) over the last n_pose samples.
func (m *FSM) checkA() bool {
	n := m.nPose()
	if len(m.history) < n {
		return false
	}
	window := m.history[len(m.history)-n:]
	for _, s := range window {
		if !(s.at.Theta > m.cfg.AngleDegTh || s.at.Ratio < m.cfg.RatioTh) {
			return false
		}
	}
	return true
}

// checkB reports whether the hip midpoint has dropped by more than
// HipDropPxTh over a window up to n_drop+1 samples.
func (m *FSM) checkB() (bool, float64) {
	if len(m.history) == 0 {
		return false, 0
	}
	cur := m.history[len(m.history)-1]
	windowLen := m.nDrop() + 1
	if windowLen > len(m.history) {
		windowLen = len(m.history)
	}
	if windowLen < 2 {
		windowLen = 2
		if windowLen > len(m.history) {
			windowLen = len(m.history)
		}
	}
	window := m.history[len(m.history)-windowLen:]
	minHipY := window[0].at.HipY
	for _, s := range window {
		if s.at.HipY < minHipY {
			minHipY = s.at.HipY
		}
	}
	drop := cur.at.HipY - minHipY
	return drop > m.cfg.HipDropPxTh, drop
}

// checkD reports whether the most recent sample's person height meets
// the minimum.
func (m *FSM) checkD() bool {
	if len(m.history) == 0 {
		return false
	}
	return m.history[len(m.history)-1].at.HPerson >= m.cfg.MinPersonHeightPx
}

func (m *FSM) evalIdle(now time.Time) (bool, *Snapshot) {
	a := m.checkA()
	b, drop := m.checkB()
	d := m.checkD()

	if a && b && d {
		m.state = StateAwaitStill
		m.prelimHistLen = len(m.history)
		m.stillDeadline = now.Add(m.cfg.TStill + m.cfg.CGraceSec)
		m.preThetaMax = maxTheta(m.history)
		m.preRatioMin = minRatio(m.history)
		m.preHipDrop = drop
	}
	return false, nil
}

func (m *FSM) evalAwaitStill(now time.Time) (bool, *Snapshot) {
	d := m.checkD()
	since := len(m.history) - m.prelimHistLen

	if since >= m.nStill() {
		stillScore, c := m.checkC()
		if c && d {
			m.cooldownUntil = now.Add(m.cfg.CooldownSec)
			snap := &Snapshot{
				ThetaMax:   m.preThetaMax,
				RatioMin:   m.preRatioMin,
				HipDrop:    m.preHipDrop,
				StillScore: stillScore,
			}
			m.state = StateIdle
			return true, snap
		}
	}

	if now.After(m.stillDeadline) {
		m.state = StateIdle
	}
	return false, nil
}

// checkC evaluates stillness over a trailing window of n_still+1
// samples (sliding forward each frame spent in await_still, not
// growing from the latch point): the 80th percentile of per-frame
// hip_y movement must be below v_still*1.2, and at least 70% of frames
// must individually be below v_still. An empty diff window (fewer than
// 2 samples in the segment) is trivially still.
func (m *FSM) checkC() (float64, bool) {
	segLen := m.nStill() + 1
	if segLen > len(m.history) {
		segLen = len(m.history)
	}
	seg := m.history[len(m.history)-segLen:]
	if len(seg) < 2 {
		return 0.0, true
	}

	diffs := make([]float64, 0, len(seg)-1)
	for i := 1; i < len(seg); i++ {
		diffs = append(diffs, absF(seg[i].at.HipY-seg[i-1].at.HipY))
	}
	if len(diffs) == 0 {
		return 0.0, true
	}

	q80 := percentile(diffs, 80)
	okCount := 0
	for _, d := range diffs {
		if d <= m.cfg.VStillPxPerFrame {
			okCount++
		}
	}
	frac := float64(okCount) / float64(len(diffs))

	ok := q80 < m.cfg.VStillPxPerFrame*1.2 && frac >= 0.7
	return q80, ok
}

func maxTheta(hist []sample) float64 {
	if len(hist) == 0 {
		return 0
	}
	max := hist[0].at.Theta
	for _, s := range hist[1:] {
		if s.at.Theta > max {
			max = s.at.Theta
		}
	}
	return max
}

func minRatio(hist []sample) float64 {
	if len(hist) == 0 {
		return 1e9
	}
	min := hist[0].at.Ratio
	for _, s := range hist[1:] {
		if s.at.Ratio < min {
			min = s.at.Ratio
		}
	}
	return min
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// percentile computes the p-th percentile of vals via linear
// interpolation between closest ranks.
func percentile(vals []float64, p float64) float64 {
	n := len(vals)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	insertionSort(sorted)

	if n == 1 {
		return sorted[0]
	}
	rank := (p / 100.0) * float64(n-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// insertionSort avoids importing sort.Float64s purely to keep this
// package's only import list focused on features; fine for the small
// windows (tens of samples) this machine ever sorts.
func insertionSort(vals []float64) {
	for i := 1; i < len(vals); i++ {
		v := vals[i]
		j := i - 1
		for j >= 0 && vals[j] > v {
			vals[j+1] = vals[j]
			j--
		}
		vals[j+1] = v
	}
}

// State reports the machine's current phase, for HUD/debug display.
func (m *FSM) State() State {
	return m.state
}
