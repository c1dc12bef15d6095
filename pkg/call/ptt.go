package call

import (
	"fmt"
	"sync"
	"time"

	"github.com/chirpling-ai/chirpling/pkg/core"
)

const (
	// CancelSlideThreshold is how far (pixels) the pointer must slide above
	// the press origin before release turns into a cancel.
	CancelSlideThreshold = 50.0

	// MinRecordDuration discards releases shorter than this as accidental.
	MinRecordDuration = time.Second

	// MaxRecordDuration force-finishes a held recording.
	MaxRecordDuration = 60 * time.Second
)

// Outcome is how a press-to-talk gesture resolved.
type Outcome string

const (
	// OutcomeSent means the recording was finished and sent as a voice turn.
	OutcomeSent Outcome = "sent"
	// OutcomeCanceled means the user slid away or left mid-press.
	OutcomeCanceled Outcome = "canceled"
	// OutcomeTooShort means the press was released before MinRecordDuration.
	OutcomeTooShort Outcome = "too_short"
)

type RecorderConfig struct {
	// Start issues the record-start request; Stop issues record-stop.
	// Both are required.
	Start func() error
	Stop  func() error

	// OnOutcome observes how each gesture resolved.
	OnOutcome func(Outcome)
	// OnError observes failed start/stop requests. The recording sub-state
	// is reset either way; the call itself stays up.
	OnError func(error)

	// MinDuration defaults to MinRecordDuration, MaxDuration to
	// MaxRecordDuration.
	MinDuration time.Duration
	MaxDuration time.Duration
}

// PressRecorder recognizes the press-hold-release recording gesture:
// press begins a recording turn, sliding up past the threshold arms a
// cancel (and sliding back down disarms it), release sends or discards,
// and a held press auto-finishes at the maximum duration.
//
// The recorder is only meaningful while a call is connected and the session
// uses manual turn detection; callers gate construction on that.
type PressRecorder struct {
	cfg   RecorderConfig
	now   func() time.Time
	after func(d time.Duration, fn func()) (cancel func())

	mu        sync.Mutex
	active    bool
	cancel    bool
	startY    float64
	startedAt time.Time
	stopCap   func()
}

func NewPressRecorder(cfg RecorderConfig) *PressRecorder {
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = MinRecordDuration
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = MaxRecordDuration
	}
	return &PressRecorder{
		cfg: cfg,
		now: time.Now,
		after: func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		},
	}
}

// Press begins a recording at pointer height y. A failed start request
// aborts back to not-recording.
func (r *PressRecorder) Press(y float64) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := r.cfg.Start(); err != nil {
		wrapped := core.NewRecordingError(fmt.Sprintf("start record: %v", err))
		r.fail(wrapped)
		return wrapped
	}

	r.mu.Lock()
	r.active = true
	r.cancel = false
	r.startY = y
	r.startedAt = r.now()
	r.stopCap = r.after(r.cfg.MaxDuration, r.autoFinish)
	r.mu.Unlock()
	return nil
}

// Slide re-evaluates the cancel arm from the current pointer height.
// Moving back below the threshold disarms it.
func (r *PressRecorder) Slide(y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	r.cancel = r.startY-y > CancelSlideThreshold
}

// Release ends the gesture: armed cancel discards, a press shorter than the
// minimum discards, anything else sends.
func (r *PressRecorder) Release() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	elapsed := r.now().Sub(r.startedAt)
	canceled := r.cancel
	stopCap := r.stopCap
	r.resetLocked()
	r.mu.Unlock()

	if stopCap != nil {
		stopCap()
	}

	outcome := OutcomeSent
	switch {
	case canceled:
		outcome = OutcomeCanceled
	case elapsed < r.cfg.MinDuration:
		outcome = OutcomeTooShort
	}
	r.finish(outcome)
}

// Leave cancels the gesture unconditionally (pointer left the press area).
func (r *PressRecorder) Leave() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	stopCap := r.stopCap
	r.resetLocked()
	r.mu.Unlock()

	if stopCap != nil {
		stopCap()
	}
	r.finish(OutcomeCanceled)
}

// Close tears the recorder down, guaranteeing the cap timer does not
// outlive the owning session.
func (r *PressRecorder) Close() {
	r.mu.Lock()
	stopCap := r.stopCap
	r.resetLocked()
	r.mu.Unlock()
	if stopCap != nil {
		stopCap()
	}
}

// Active reports whether a press is in progress.
func (r *PressRecorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// WillCancel reports whether release would currently discard the recording.
func (r *PressRecorder) WillCancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active && r.cancel
}

// Seconds returns whole seconds recorded so far, capped at the maximum.
func (r *PressRecorder) Seconds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return 0
	}
	elapsed := r.now().Sub(r.startedAt)
	if elapsed > r.cfg.MaxDuration {
		elapsed = r.cfg.MaxDuration
	}
	return int(elapsed / time.Second)
}

// autoFinish runs when a held press reaches the maximum duration: it
// resolves exactly like a release at that instant.
func (r *PressRecorder) autoFinish() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	canceled := r.cancel
	r.resetLocked()
	r.mu.Unlock()

	outcome := OutcomeSent
	if canceled {
		outcome = OutcomeCanceled
	}
	r.finish(outcome)
}

func (r *PressRecorder) resetLocked() {
	r.active = false
	r.cancel = false
	r.stopCap = nil
}

func (r *PressRecorder) finish(outcome Outcome) {
	if err := r.cfg.Stop(); err != nil {
		r.fail(core.NewRecordingError(fmt.Sprintf("stop record: %v", err)))
		return
	}
	if r.cfg.OnOutcome != nil {
		r.cfg.OnOutcome(outcome)
	}
}

func (r *PressRecorder) fail(err error) {
	if r.cfg.OnError != nil {
		r.cfg.OnError(err)
	}
}
