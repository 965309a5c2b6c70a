package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/domain"
)

var (
	ErrRunnerStopped = errors.New("pipeline runner is not running")
	ErrRunPanicked   = errors.New("pipeline run panicked")
)

// Executor runs one pipeline run. *Pipeline satisfies it.
type Executor interface {
	Run(ctx context.Context, ev domain.TelemetryEvent) (*domain.RunResult, error)
}

type RunnerConfig struct {
	Workers          int
	SerializePerLoan bool
}

type jobResult struct {
	result *domain.RunResult
	err    error
}

type job struct {
	ctx   context.Context
	ev    domain.TelemetryEvent
	reply chan jobResult
}

// Runner executes pipeline runs on its own worker goroutines. Telemetry
// events arrive on a channel; manual requests are queued through Recompute.
// Neither path runs the pipeline on the caller's goroutine.
type Runner struct {
	exec   Executor
	cfg    RunnerConfig
	logger *slog.Logger
	keys   *keyLocks

	manual  chan job
	quit    chan struct{}
	running atomic.Bool

	completed atomic.Int64
	failed    atomic.Int64
}

// NewRunner creates a Runner.
func NewRunner(exec Executor, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		exec:   exec,
		cfg:    cfg,
		logger: logger,
		keys:   newKeyLocks(),
		manual: make(chan job),
		quit:   make(chan struct{}),
	}
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight run has finished. It must be called once.
func (r *Runner) Run(ctx context.Context, events <-chan domain.TelemetryEvent) error {
	r.running.Store(true)
	r.logger.Info("pipeline runner started", "workers", r.cfg.Workers, "serialize_per_loan", r.cfg.SerializePerLoan)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.work(ctx, worker, events)
		}(i)
	}

	<-ctx.Done()
	r.running.Store(false)
	close(r.quit)
	wg.Wait()

	r.logger.Info("pipeline runner stopped", "completed", r.completed.Load(), "failed", r.failed.Load())
	return nil
}

func (r *Runner) work(ctx context.Context, worker int, events <-chan domain.TelemetryEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// Telemetry has no caller waiting; outcomes surface through logs and broadcasts.
			_, _ = r.execute(context.WithoutCancel(ctx), worker, ev)
		case j := <-r.manual:
			res, err := r.execute(context.WithoutCancel(j.ctx), worker, j.ev)
			j.reply <- jobResult{result: res, err: err}
		}
	}
}

func (r *Runner) execute(ctx context.Context, worker int, ev domain.TelemetryEvent) (res *domain.RunResult, err error) {
	if r.cfg.SerializePerLoan {
		unlock := r.keys.lock(ev.LoanID)
		defer unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("%w: %v", ErrRunPanicked, p)
			r.logger.Error("pipeline run panicked", "worker", worker, "loan_id", ev.LoanID, "panic", p)
		}
		if err != nil {
			r.failed.Add(1)
		} else {
			r.completed.Add(1)
		}
	}()

	return r.exec.Run(ctx, ev)
}

// Recompute queues a manual run for ev and waits for its result. If ctx ends
// first the run still completes on the worker; only the wait is abandoned.
func (r *Runner) Recompute(ctx context.Context, ev domain.TelemetryEvent) (*domain.RunResult, error) {
	if !r.running.Load() {
		return nil, ErrRunnerStopped
	}
	if ev.Trigger == "" {
		ev.Trigger = domain.TriggerManual
	}

	j := job{ctx: ctx, ev: ev, reply: make(chan jobResult, 1)}

	select {
	case r.manual <- j:
	case <-r.quit:
		return nil, ErrRunnerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-j.reply:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Running reports whether workers are accepting runs.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Stats returns completed and failed run counts.
func (r *Runner) Stats() (completed, failed int64) {
	return r.completed.Load(), r.failed.Load()
}

// keyLocks hands out one mutex per loan id, dropping it once unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (k *keyLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
