package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/proposer/internal/analysis"
)

// ErrNotFound is returned for unknown run IDs.
var ErrNotFound = errors.New("run not found")

// ErrShuttingDown is returned by Submit after Shutdown.
var ErrShuttingDown = errors.New("manager is shutting down")

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	MaxConcurrent int // Runs executing at once (default: 2)
	MaxRecords    int // Finished runs kept in memory (default: 100)
	Logger        *slog.Logger
}

// Manager executes runs in the background and keeps their records in memory.
type Manager struct {
	logger     *slog.Logger
	maxRecords int
	slots      chan struct{}

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.RWMutex
	runs   map[string]*run
	closed bool
}

type run struct {
	record Record
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a run manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		logger:     cfg.Logger,
		maxRecords: cfg.MaxRecords,
		slots:      make(chan struct{}, cfg.MaxConcurrent),
		baseCtx:    ctx,
		stop:       stop,
		runs:       make(map[string]*run),
	}
}

// Submit queues fn and returns the new run's record.
func (m *Manager) Submit(jobType string, metadata map[string]any, fn RunFunc) (*Record, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	r := &run{
		record: Record{
			ID:        uuid.New().String(),
			JobType:   jobType,
			Status:    StatusQueued,
			CreatedAt: time.Now().UTC(),
			Metadata:  metadata,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.runs[r.record.ID] = r
	m.pruneLocked()
	snapshot := r.record
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("run submitted", "id", snapshot.ID, "type", jobType)
	go m.execute(analysis.WithRunID(ctx, snapshot.ID), r, fn)
	return &snapshot, nil
}

func (m *Manager) execute(ctx context.Context, r *run, fn RunFunc) {
	defer m.wg.Done()
	defer close(r.done)
	defer r.cancel()

	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-ctx.Done():
		m.finish(r, nil, fmt.Errorf("%w: %w", analysis.ErrCancelled, ctx.Err()))
		return
	}

	m.mu.Lock()
	now := time.Now().UTC()
	r.record.Status = StatusRunning
	r.record.StartedAt = &now
	m.mu.Unlock()

	m.logger.Info("run started", "id", r.record.ID, "type", r.record.JobType)
	result, err := fn(ctx, func(ev analysis.ProgressEvent) {
		m.mu.Lock()
		r.record.Progress = &ev
		m.mu.Unlock()
	})
	m.finish(r, result, err)
}

func (m *Manager) finish(r *run, result *analysis.Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	r.record.CompletedAt = &now
	switch {
	case err == nil:
		r.record.Status = StatusCompleted
		r.record.Result = result
		m.logger.Info("run completed", "id", r.record.ID)
	case analysis.IsCancelled(err) || errors.Is(err, context.Canceled):
		r.record.Status = StatusCancelled
		m.logger.Info("run cancelled", "id", r.record.ID)
	default:
		r.record.Status = StatusFailed
		r.record.Error = err.Error()
		m.logger.Error("run failed", "id", r.record.ID, "error", err)
	}
}

// Get returns a snapshot of a run.
func (m *Manager) Get(id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec := r.record
	return &rec, nil
}

// List returns runs matching filter, newest first.
func (m *Manager) List(filter ListFilter) []*Record {
	limit := filter.Limit
	if limit == 0 {
		limit = 100
	}

	m.mu.RLock()
	records := make([]*Record, 0, len(m.runs))
	for _, r := range m.runs {
		if filter.Status != "" && r.record.Status != filter.Status {
			continue
		}
		if filter.JobType != "" && r.record.JobType != filter.JobType {
			continue
		}
		rec := r.record
		records = append(records, &rec)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// Cancel cancels a queued or running run. Cancelling a finished run is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	r, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	r.cancel()
	return nil
}

// Wait blocks until the run finishes or ctx is done and returns its record.
func (m *Manager) Wait(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	r, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	select {
	case <-r.done:
		return m.Get(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown cancels every run and waits for them to finish or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pruneLocked drops the oldest finished runs beyond maxRecords. Must hold mu.
func (m *Manager) pruneLocked() {
	if len(m.runs) <= m.maxRecords {
		return
	}
	var finished []*run
	for _, r := range m.runs {
		if r.record.Status.Terminal() {
			finished = append(finished, r)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].record.CreatedAt.Before(finished[j].record.CreatedAt)
	})
	for _, r := range finished {
		if len(m.runs) <= m.maxRecords {
			return
		}
		delete(m.runs, r.record.ID)
	}
}
