// Package evaluation drives the scoring of a finished session and reports
// synthetic progress while the remote service works. Progress is a UX
// device: it ramps on a timer, caps below completion, snaps to 100 when the
// real result arrives and freezes where it stood on failure.
package evaluation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/interview-pilot/internal/gateway"
	"github.com/jonathan/interview-pilot/internal/session"
	"github.com/jonathan/interview-pilot/internal/types"
)

// Stage labels shown while a submission is being scored.
const (
	StagePreparing  = "Preparing evaluation"
	StageAnalyzing  = "Analyzing responses"
	StageFinalizing = "Finalizing results"
)

// StageFor maps a progress percentage to its stage label. Preparing runs
// below 20, Analyzing through 79, Finalizing from 80 up.
func StageFor(progress int) string {
	switch {
	case progress < 20:
		return StagePreparing
	case progress < 80:
		return StageAnalyzing
	default:
		return StageFinalizing
	}
}

// Config controls the ramp. Zero values fall back to the defaults.
type Config struct {
	RampInterval time.Duration
	RampStep     int
	Cap          int
}

func (c Config) withDefaults() Config {
	if c.RampInterval <= 0 {
		c.RampInterval = 350 * time.Millisecond
	}
	if c.RampStep <= 0 {
		c.RampStep = 3
	}
	if c.Cap <= 0 || c.Cap >= 100 {
		c.Cap = 95
	}
	return c
}

// Update is one progress observation.
type Update struct {
	SessionID uuid.UUID `json:"session_id"`
	Progress  int       `json:"progress"`
	Stage     string    `json:"stage"`
	Done      bool      `json:"done,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
}

// Tracker ramps synthetic progress for one session's evaluation. It
// implements session.Evaluator, so the machine drives the real submission
// through it; observers watch via Subscribe or Progress.
type Tracker struct {
	sessionID uuid.UUID
	gw        gateway.Service
	cfg       Config
	logger    *zap.Logger

	mu          sync.Mutex
	progress    int
	done        bool
	failed      bool
	subscribers map[int]chan Update
	nextSub     int
}

var _ session.Evaluator = (*Tracker)(nil)

func newTracker(sessionID uuid.UUID, gw gateway.Service, cfg Config, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		sessionID:   sessionID,
		gw:          gw,
		cfg:         cfg.withDefaults(),
		logger:      log,
		subscribers: make(map[int]chan Update),
	}
}

// Run submits the frozen payload and ramps progress until the result lands.
// A failed run leaves the bar frozen so a retry visibly resumes from there.
func (t *Tracker) Run(ctx context.Context, req gateway.SubmitEvaluationRequest) (*types.EvaluationReport, error) {
	t.reset()

	rampCtx, stopRamp := context.WithCancel(ctx)
	defer stopRamp()
	go t.ramp(rampCtx)

	report, err := t.gw.SubmitEvaluation(ctx, req)
	stopRamp()
	if err != nil {
		t.freeze()
		return nil, err
	}
	t.complete()
	return report, nil
}

// Progress returns the latest observation.
func (t *Tracker) Progress() Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updateLocked()
}

// Subscribe returns a channel of observations. Sends never block; a slow
// consumer misses intermediate values and reconciles via Progress.
func (t *Tracker) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 32)
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subscribers[id] = ch
	t.mu.Unlock()

	return ch, func() {
		t.mu.Lock()
		delete(t.subscribers, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) ramp(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.RampInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.step() {
				return
			}
		}
	}
}

// step advances the ramp by one increment, capped below completion. It
// reports false once the run has settled.
func (t *Tracker) step() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || t.failed {
		return false
	}
	next := t.progress + t.cfg.RampStep
	if next > t.cfg.Cap {
		next = t.cfg.Cap
	}
	if next == t.progress {
		return true
	}
	t.progress = next
	t.publishLocked()
	return true
}

// reset arms the tracker for a run. A retry after a failure resumes from the
// frozen value, so observers never see the bar move backwards.
func (t *Tracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.failed {
		t.progress = 0
	}
	t.done = false
	t.failed = false
	t.publishLocked()
}

func (t *Tracker) freeze() {
	t.mu.Lock()
	t.failed = true
	t.publishLocked()
	progress := t.progress
	t.mu.Unlock()

	t.logger.Debug("evaluation progress frozen",
		zap.String("session_id", t.sessionID.String()),
		zap.Int("progress", progress),
	)
}

func (t *Tracker) complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.progress = 100
	t.publishLocked()
}

func (t *Tracker) updateLocked() Update {
	return Update{
		SessionID: t.sessionID,
		Progress:  t.progress,
		Stage:     StageFor(t.progress),
		Done:      t.done,
		Failed:    t.failed,
	}
}

// publishLocked fans the current observation out to subscribers. Sends are
// non-blocking, so holding the lock keeps the stream in mutation order.
func (t *Tracker) publishLocked() {
	upd := t.updateLocked()
	for _, ch := range t.subscribers {
		select {
		case ch <- upd:
		default:
		}
	}
}

// Hub hands out per-session trackers. The session registry plugs Evaluator
// in as its factory; the SSE handler finds the same tracker via Lookup.
type Hub struct {
	gw     gateway.Service
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	trackers map[uuid.UUID]*Tracker
}

// NewHub creates a hub using cfg for every tracker it builds.
func NewHub(gw gateway.Service, cfg Config, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		gw:       gw,
		cfg:      cfg,
		logger:   log,
		trackers: make(map[uuid.UUID]*Tracker),
	}
}

// Evaluator returns the session's tracker as a session.Evaluator, creating
// it on first use. The signature matches session.EvaluatorFactory.
func (h *Hub) Evaluator(sessionID uuid.UUID) session.Evaluator {
	return h.Tracker(sessionID)
}

// Tracker returns the progress tracker for a session, creating it on demand.
func (h *Hub) Tracker(sessionID uuid.UUID) *Tracker {
	h.mu.Lock()
	defer h.mu.Unlock()
	tr, ok := h.trackers[sessionID]
	if !ok {
		tr = newTracker(sessionID, h.gw, h.cfg, h.logger)
		h.trackers[sessionID] = tr
	}
	return tr
}

// Lookup returns the tracker if the session has one.
func (h *Hub) Lookup(sessionID uuid.UUID) (*Tracker, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tr, ok := h.trackers[sessionID]
	return tr, ok
}

// Release drops a finished session's tracker.
func (h *Hub) Release(sessionID uuid.UUID) {
	h.mu.Lock()
	delete(h.trackers, sessionID)
	h.mu.Unlock()
}

// ReleaseWhenTerminal returns a session listener that drops the tracker once
// its session finishes or closes, so completed and expired sessions do not
// accumulate trackers. Registered via session.WithListener.
func (h *Hub) ReleaseWhenTerminal() func(session.Status) {
	return func(st session.Status) {
		if st.State == session.StateDone || st.Closed {
			h.Release(st.ID)
		}
	}
}
