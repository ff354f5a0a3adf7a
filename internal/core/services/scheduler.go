package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driving"
	"github.com/theotherzach/project-brain-bot/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// DefaultSyncInterval is how often each source worker runs a sync.
const DefaultSyncInterval = 30 * time.Minute

// worker tracks one source's background sync loop.
type worker struct {
	kind    domain.SourceKind
	trigger chan struct{}
	resume  chan struct{}

	mu        sync.Mutex
	state     driving.SyncState
	lastRun   time.Time
	lastError string
}

func (w *worker) setState(state driving.SyncState, lastErr string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
	w.lastError = lastErr
}

func (w *worker) markRun(at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRun = at
}

func (w *worker) status() driving.SyncStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return driving.SyncStatus{
		Kind:      w.kind,
		State:     w.state,
		LastRun:   w.lastRun,
		LastError: w.lastError,
	}
}

// Scheduler runs one background sync worker per indexable source. Workers
// are independent: one source halting never affects the others.
type Scheduler struct {
	runner   driving.SyncRunner
	registry driven.ConnectorRegistry
	history  driven.SyncHistoryStore
	interval time.Duration

	mu      sync.Mutex
	running bool
	workers map[domain.SourceKind]*worker
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. The history store is optional and only
// used for pruning old run records.
func NewScheduler(runner driving.SyncRunner, registry driven.ConnectorRegistry, history driven.SyncHistoryStore, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Scheduler{
		runner:   runner,
		registry: registry,
		history:  history,
		interval: interval,
		workers:  make(map[domain.SourceKind]*worker),
	}
}

// Start launches one worker per indexable source and blocks until the
// context is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	kinds := s.registry.IndexableKinds()
	for _, kind := range kinds {
		w := &worker{
			kind:    kind,
			trigger: make(chan struct{}, 1),
			resume:  make(chan struct{}, 1),
			state:   driving.SyncIdle,
		}
		s.workers[kind] = w
		s.wg.Add(1)
		go s.runWorker(ctx, w)
	}
	s.mu.Unlock()

	logger.Info("Scheduler started: %d sync workers, interval %s", len(kinds), s.interval)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return nil
	}
}

// Stop shuts down all workers and waits for in-flight runs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// TriggerNow requests an immediate run for a source. A trigger while the
// source is already running is coalesced with the in-flight run.
func (s *Scheduler) TriggerNow(kind domain.SourceKind) error {
	w, err := s.worker(kind)
	if err != nil {
		return err
	}

	select {
	case w.trigger <- struct{}{}:
	default:
		// A trigger is already pending; coalesce.
	}
	return nil
}

// Resume restarts a halted worker. Resuming a worker that is not halted is
// a no-op: queueing the token instead would let a later halt consume it and
// restart without operator action.
func (s *Scheduler) Resume(kind domain.SourceKind) error {
	w, err := s.worker(kind)
	if err != nil {
		return err
	}
	if w.status().State != driving.SyncHalted {
		return nil
	}

	select {
	case w.resume <- struct{}{}:
	default:
	}
	return nil
}

// Status returns the current status of a source worker.
func (s *Scheduler) Status(kind domain.SourceKind) (driving.SyncStatus, error) {
	w, err := s.worker(kind)
	if err != nil {
		return driving.SyncStatus{}, err
	}
	return w.status(), nil
}

func (s *Scheduler) worker(kind domain.SourceKind) (*worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no sync worker for kind %q", domain.ErrNotFound, kind)
	}
	return w, nil
}

// runWorker is one source's sync loop: run on start, then on every tick or
// trigger. A corrupt checkpoint halts the loop until an explicit resume.
func (s *Scheduler) runWorker(ctx context.Context, w *worker) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First run on startup so a fresh deployment indexes immediately.
	s.runOnce(ctx, w)

	for {
		if w.status().State == driving.SyncHalted {
			if !s.awaitResume(ctx, w) {
				return
			}
			// Triggers queued while halted are stale; discard them.
			select {
			case <-w.trigger:
			default:
			}
			s.runOnce(ctx, w)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(ctx, w)
		case <-w.trigger:
			s.runOnce(ctx, w)
		}
	}
}

// runOnce executes a single sync run and updates the worker state machine:
// Running, then Committed or Failed, or Halted on checkpoint corruption.
func (s *Scheduler) runOnce(ctx context.Context, w *worker) {
	w.setState(driving.SyncRunning, "")
	w.markRun(time.Now())

	_, err := s.runner.Run(ctx, w.kind)
	switch {
	case err == nil:
		w.setState(driving.SyncCommitted, "")
		s.prune(ctx)

	case errors.Is(err, domain.ErrSyncInProgress):
		// Another trigger beat us to it; the in-flight run covers this one.
		w.setState(driving.SyncRunning, "")

	case errors.Is(err, domain.ErrCheckpointCorrupt):
		logger.Error("Sync %s halted: %v", w.kind, err)
		w.setState(driving.SyncHalted, err.Error())

	default:
		logger.Warn("Sync %s failed: %v", w.kind, err)
		w.setState(driving.SyncFailed, err.Error())
	}
}

// awaitResume blocks a halted worker until Resume is called. Returns false
// when the scheduler is shutting down instead.
func (s *Scheduler) awaitResume(ctx context.Context, w *worker) bool {
	logger.Info("Sync %s waiting for resume", w.kind)
	select {
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	case <-w.resume:
		return true
	}
}

// prune trims sync history to the most recent 100 runs per source.
func (s *Scheduler) prune(ctx context.Context) {
	if s.history == nil {
		return
	}
	if err := s.history.Prune(ctx, 100); err != nil {
		logger.Warn("Pruning sync history failed: %v", err)
	}
}
