package scheduler

import (
	"context"
	"github.com/ValentinKolb/s2sgate/lib/flow"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("flow/scheduler")

// Config controls how a processor is triggered
type Config struct {
	// Workers is the number of goroutines triggering the processor concurrently (default 1)
	Workers int
	// YieldDuration is how long a worker waits after the processor yielded or
	// had no input (default 100ms)
	YieldDuration time.Duration
	// Penalty is the first backoff after a retryable failure; it doubles with
	// every consecutive failure up to MaxPenalty (defaults 500ms and 30s)
	Penalty    time.Duration
	MaxPenalty time.Duration
	// Retryable classifies trigger errors. Non retryable errors stop the
	// scheduler. Nil treats every error as retryable.
	Retryable func(error) bool
	// HasWork reports whether the input queue holds flow files. Processors that
	// are not triggered when empty are skipped while it returns false.
	HasWork func() bool
	// Until stops the scheduler once it returns true (checked between triggers)
	Until func() bool
}

// Scheduler triggers one processor from a fixed number of workers until its
// context is cancelled, Config.Until reports completion or a non retryable
// error occurs. Retry counting and backoff live here, not in the processor.
type Scheduler struct {
	processor flow.IProcessor
	pctx      flow.IProcessContext
	factory   flow.ISessionFactory
	config    Config

	triggers atomic.Int64
	failures atomic.Int64
}

// New creates a scheduler for processor. The processor must already be initialized.
func New(processor flow.IProcessor, pctx flow.IProcessContext, factory flow.ISessionFactory, config Config) *Scheduler {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.YieldDuration <= 0 {
		config.YieldDuration = 100 * time.Millisecond
	}
	if config.Penalty <= 0 {
		config.Penalty = 500 * time.Millisecond
	}
	if config.MaxPenalty < config.Penalty {
		config.MaxPenalty = 30 * time.Second
	}
	return &Scheduler{processor: processor, pctx: pctx, factory: factory, config: config}
}

// Triggers returns the number of completed OnTrigger calls
func (s *Scheduler) Triggers() int64 { return s.triggers.Load() }

// Failures returns the number of OnTrigger calls that returned an error
func (s *Scheduler) Failures() int64 { return s.failures.Load() }

// Run schedules the processor, triggers it until done and unschedules it
// again. It returns the error of OnSchedule or the first non retryable
// trigger error; a cancelled context or a satisfied Until is a clean stop.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.processor.OnSchedule(s.pctx, s.factory); err != nil {
		return err
	}
	defer func() {
		if err := s.processor.OnUnschedule(); err != nil {
			Logger.Warningf("unscheduling processor failed: %v", err)
		}
	}()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := s.work(ctx, id); err != nil {
				cancel(err)
			}
		}(i)
	}
	wg.Wait()

	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	return nil
}

// work is the loop of a single worker. It returns a non retryable error or nil.
func (s *Scheduler) work(ctx context.Context, id int) error {
	penalty := time.Duration(0)
	wctx := &workerContext{IProcessContext: s.pctx}

	for {
		if ctx.Err() != nil || (s.config.Until != nil && s.config.Until()) {
			return nil
		}

		if !s.processor.TriggerWhenEmpty() && s.config.HasWork != nil && !s.config.HasWork() {
			if !sleep(ctx, s.config.YieldDuration) {
				return nil
			}
			continue
		}

		wctx.yielded = false
		err := s.processor.OnTrigger(ctx, wctx, s.factory.CreateSession())
		s.triggers.Add(1)

		if err == nil {
			penalty = 0
			if wctx.yielded && !sleep(ctx, s.config.YieldDuration) {
				return nil
			}
			continue
		}

		s.failures.Add(1)
		if ctx.Err() != nil {
			return nil
		}
		if s.config.Retryable != nil && !s.config.Retryable(err) {
			Logger.Errorf("worker %d: stopping after non retryable error: %v", id, err)
			return err
		}

		penalty = s.nextPenalty(penalty)
		Logger.Warningf("worker %d: trigger failed, retrying in %s: %v", id, penalty, err)
		if !sleep(ctx, penalty) {
			return nil
		}
	}
}

// nextPenalty doubles the penalty up to the maximum and adds up to 10% jitter
func (s *Scheduler) nextPenalty(current time.Duration) time.Duration {
	next := s.config.Penalty
	if current > 0 {
		next = min(current*2, s.config.MaxPenalty)
	}
	return next + time.Duration(rand.Int63n(int64(next)/10+1))
}

// workerContext lets the processor yield the worker it runs on
type workerContext struct {
	flow.IProcessContext
	yielded bool
}

func (w *workerContext) Yield() { w.yielded = true }

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
