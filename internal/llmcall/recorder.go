package llmcall

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/proposer/internal/providers"
)

// RecorderConfig configures the async recorder.
type RecorderConfig struct {
	Store         *Store
	BatchSize     int           // Flush after N calls (default: 50)
	FlushInterval time.Duration // Or after duration (default: 2s)
	QueueSize     int           // Buffer size (default: 1000)
	Logger        *slog.Logger
}

// Recorder handles fire-and-forget LLM call recording. Calls are queued and
// written to the store in batches by a single background goroutine.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	store  *Store
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	// mu guards sends on queue against Stop closing it.
	mu      sync.RWMutex
	closed  bool
	queue   chan *Call
	flushCh chan chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRecorder creates a new LLM call recorder. Call Start before recording.
func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Recorder{
		store:         cfg.Store,
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan *Call, cfg.QueueSize),
		flushCh:       make(chan chan struct{}),
	}
}

// Start begins processing recorded calls.
func (r *Recorder) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.run()
}

// Stop flushes queued calls and shuts the recorder down.
func (r *Recorder) Stop() {
	if r == nil || r.cancel == nil {
		return
	}
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		r.wg.Wait()
		r.cancel()
		r.logger.Debug("llm call recorder stopped")
	})
}

// Record captures an LLM call asynchronously.
func (r *Recorder) Record(result *providers.ChatResult, opts RecordOptions) {
	if r == nil {
		return
	}
	r.RecordCall(FromChatResult(result, opts))
}

// RecordCall queues an already-constructed Call. It never blocks once the
// recorder is stopped.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || call == nil || r.ctx == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("recorder closed, dropping llm call", "prompt_key", call.PromptKey)
		return
	}

	select {
	case r.queue <- call:
	default:
		select {
		case r.queue <- call:
		case <-r.ctx.Done():
			r.logger.Warn("recorder closed, dropping llm call", "prompt_key", call.PromptKey)
		}
	}
}

// Flush blocks until every call queued before it has been written.
func (r *Recorder) Flush(ctx context.Context) error {
	if r == nil || r.ctx == nil {
		return nil
	}
	done := make(chan struct{})
	select {
	case r.flushCh <- done:
	case <-r.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]*Call, 0, r.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if r.store != nil {
			// Writes outlive the caller's context so Stop can drain.
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := r.store.Insert(ctx, batch...); err != nil {
				r.logger.Error("failed to record llm calls", "count", len(batch), "error", err)
			}
			cancel()
		}
		batch = make([]*Call, 0, r.batchSize)
	}

	for {
		select {
		case call, ok := <-r.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, call)
			if len(batch) >= r.batchSize {
				flush()
			}

		case done := <-r.flushCh:
			// Drain what is already queued so Flush observes it.
			for drained := false; !drained; {
				select {
				case call, ok := <-r.queue:
					if !ok {
						drained = true
						break
					}
					batch = append(batch, call)
				default:
					drained = true
				}
			}
			flush()
			close(done)

		case <-ticker.C:
			flush()
		}
	}
}
