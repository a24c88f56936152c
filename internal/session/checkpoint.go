package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/interview-pilot/internal/gateway"
	"github.com/jonathan/interview-pilot/internal/types"
)

// persistTimeout bounds each checkpoint write so a slow database cannot
// stall a session goroutine.
const persistTimeout = 5 * time.Second

// ErrSessionNotFound is returned when a session is neither live in this
// process nor present in the checkpoint store.
var ErrSessionNotFound = errors.New("session not found")

// Checkpoint is the persistable projection of a machine. It carries enough
// to resume a session after a process restart; in-flight remote work is not
// part of it and is surfaced as a retryable failure on restore.
type Checkpoint struct {
	ID               uuid.UUID                 `json:"id"`
	UserID           uuid.UUID                 `json:"user_id"`
	State            State                     `json:"state"`
	FailedFrom       State                     `json:"failed_from,omitempty"`
	ErrorMessage     string                    `json:"error_message,omitempty"`
	StepIndex        int                       `json:"step_index"`
	Setup            types.SetupState          `json:"setup"`
	Resume           *types.ParsedResume       `json:"resume,omitempty"`
	Questions        []types.InterviewQuestion `json:"questions,omitempty"`
	Answers          []types.QuestionAnswer    `json:"answers,omitempty"`
	CurrentIndex     int                       `json:"current_index"`
	RemainingSeconds int                       `json:"remaining_seconds"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

// CheckpointStore persists session checkpoints. The store package implements
// it on Postgres; a nil store keeps sessions memory-only.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	GetCheckpoint(ctx context.Context, id uuid.UUID) (*Checkpoint, error)
	DeleteCheckpoint(ctx context.Context, id uuid.UUID) error
	DeleteStaleCheckpoints(ctx context.Context, cutoff time.Time) (int64, error)
}

func checkpointFrom(st Status) Checkpoint {
	return Checkpoint{
		ID:               st.ID,
		UserID:           st.UserID,
		State:            st.State,
		FailedFrom:       st.FailedFrom,
		ErrorMessage:     st.ErrorMessage,
		StepIndex:        st.StepIndex,
		Setup:            st.Setup,
		Resume:           st.Resume,
		Questions:        st.Questions,
		Answers:          st.Answers,
		CurrentIndex:     st.CurrentIndex,
		RemainingSeconds: st.RemainingSeconds,
		UpdatedAt:        st.UpdatedAt,
	}
}

// StatusFromCheckpoint projects a stored checkpoint into the read shape used
// for listings, without waking the session up.
func StatusFromCheckpoint(cp Checkpoint) Status {
	st := Status{
		ID:               cp.ID,
		UserID:           cp.UserID,
		State:            cp.State,
		FailedFrom:       cp.FailedFrom,
		ErrorMessage:     cp.ErrorMessage,
		StepIndex:        cp.StepIndex,
		Setup:            cp.Setup,
		Resume:           cp.Resume,
		Questions:        cp.Questions,
		Answers:          cp.Answers,
		CurrentIndex:     cp.CurrentIndex,
		RemainingSeconds: cp.RemainingSeconds,
		UpdatedAt:        cp.UpdatedAt,
	}
	if cp.StepIndex >= 0 && cp.StepIndex < len(Steps) {
		st.StepName = Steps[cp.StepIndex].Name
	}
	if n := len(cp.Questions); n > 0 {
		st.LastQuestion = cp.CurrentIndex == n-1
	}
	return st
}

// EvaluatorFactory builds the evaluator attached to a new machine. The serve
// command plugs in the progress-tracking hub here; nil means submissions go
// straight through the gateway.
type EvaluatorFactory func(sessionID uuid.UUID) Evaluator

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithEvaluatorFactory sets the evaluator factory for new machines.
func WithEvaluatorFactory(fn EvaluatorFactory) RegistryOption {
	return func(r *Registry) {
		r.evaluatorFactory = fn
	}
}

// WithMachineOptions appends options applied to every machine the registry
// creates or restores.
func WithMachineOptions(opts ...Option) RegistryOption {
	return func(r *Registry) {
		r.machineOpts = append(r.machineOpts, opts...)
	}
}

// Registry owns the live machines for this process and mirrors them into the
// checkpoint store so a session survives a restart.
type Registry struct {
	gw               gateway.Service
	store            CheckpointStore
	logger           *zap.Logger
	evaluatorFactory EvaluatorFactory
	machineOpts      []Option

	mu       sync.Mutex
	machines map[uuid.UUID]*Machine
}

// NewRegistry creates a registry. The store may be nil when the server runs
// without a database.
func NewRegistry(gw gateway.Service, store CheckpointStore, log *zap.Logger, opts ...RegistryOption) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		gw:       gw,
		store:    store,
		logger:   log,
		machines: make(map[uuid.UUID]*Machine),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a fresh session for the user.
func (r *Registry) Create(userID uuid.UUID) *Machine {
	id := uuid.New()
	m := New(id, userID, r.gw, r.evaluatorFor(id), r.logger, r.optsFor()...)

	r.mu.Lock()
	r.machines[id] = m
	r.mu.Unlock()

	r.logger.Info("session created",
		zap.String("session_id", id.String()),
		zap.String("user_id", userID.String()),
	)
	return m
}

// Get returns the live machine for the session, falling back to the
// checkpoint store when the process restarted since the session began.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*Machine, error) {
	r.mu.Lock()
	m, ok := r.machines[id]
	r.mu.Unlock()
	if ok {
		return m, nil
	}
	if r.store == nil {
		return nil, ErrSessionNotFound
	}

	cp, err := r.store.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		return nil, ErrSessionNotFound
	}

	r.mu.Lock()
	if existing, ok := r.machines[id]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	m = Restore(*cp, r.gw, r.evaluatorFor(id), r.logger, r.optsFor()...)
	r.machines[id] = m
	r.mu.Unlock()

	r.logger.Info("session restored",
		zap.String("session_id", id.String()),
		zap.String("state", string(m.Snapshot().State)),
	)
	return m, nil
}

// Remove abandons the session and deletes its checkpoint. Removing an
// unknown session is a no-op.
func (r *Registry) Remove(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	m, ok := r.machines[id]
	delete(r.machines, id)
	r.mu.Unlock()

	if ok {
		m.Abandon()
	}
	if r.store != nil {
		if err := r.store.DeleteCheckpoint(ctx, id); err != nil {
			return fmt.Errorf("delete checkpoint: %w", err)
		}
	}
	return nil
}

// Len reports the number of live machines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.machines)
}

// ForUser returns snapshots of the user's live sessions, most recently
// touched first.
func (r *Registry) ForUser(userID uuid.UUID) []Status {
	r.mu.Lock()
	machines := make([]*Machine, 0, len(r.machines))
	for _, m := range r.machines {
		machines = append(machines, m)
	}
	r.mu.Unlock()

	var statuses []Status
	for _, m := range machines {
		st := m.Snapshot()
		if st.UserID == userID && !st.Closed {
			statuses = append(statuses, st)
		}
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].UpdatedAt.After(statuses[j].UpdatedAt)
	})
	return statuses
}

// ExpireStale abandons machines idle past maxIdle and clears checkpoint rows
// older than the same cutoff, covering sessions orphaned by earlier restarts.
func (r *Registry) ExpireStale(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*Machine
	for id, m := range r.machines {
		if m.Snapshot().UpdatedAt.Before(cutoff) {
			stale = append(stale, m)
			delete(r.machines, id)
		}
	}
	r.mu.Unlock()

	for _, m := range stale {
		m.Abandon()
		r.logger.Info("expired idle session", zap.String("session_id", m.ID().String()))
	}

	if r.store != nil {
		rows, err := r.store.DeleteStaleCheckpoints(ctx, cutoff)
		if err != nil {
			return len(stale), fmt.Errorf("delete stale checkpoints: %w", err)
		}
		if rows > 0 {
			r.logger.Debug("stale checkpoint rows cleared", zap.Int64("rows", rows))
		}
	}
	return len(stale), nil
}

func (r *Registry) evaluatorFor(id uuid.UUID) Evaluator {
	if r.evaluatorFactory == nil {
		return nil
	}
	return r.evaluatorFactory(id)
}

func (r *Registry) optsFor() []Option {
	opts := []Option{WithListener(r.persist)}
	return append(opts, r.machineOpts...)
}

// persist mirrors machine updates into the checkpoint store. DONE deletes
// the row since only the report matters afterwards; abandoned sessions are
// cleaned up by Remove or the stale sweep.
func (r *Registry) persist(st Status) {
	if r.store == nil || st.Closed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if st.State == StateDone {
		if err := r.store.DeleteCheckpoint(ctx, st.ID); err != nil {
			r.logger.Warn("checkpoint delete failed",
				zap.String("session_id", st.ID.String()),
				zap.Error(err),
			)
		}
		return
	}
	if err := r.store.SaveCheckpoint(ctx, checkpointFrom(st)); err != nil {
		r.logger.Warn("checkpoint save failed",
			zap.String("session_id", st.ID.String()),
			zap.Error(err),
		)
	}
}
