package scheduler

import (
	"context"
	"github.com/ValentinKolb/s2sgate/lib/flow"
	"github.com/ValentinKolb/s2sgate/lib/flow/memsession"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync/atomic"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errFatal = errors.New("fatal")

// countingProcessor removes one flow file per trigger and fails on demand
type countingProcessor struct {
	whenEmpty   bool
	scheduleErr error
	fail        func(n int64) error
	yield       bool

	scheduled   atomic.Bool
	unscheduled atomic.Bool
	triggers    atomic.Int64
}

func (p *countingProcessor) Initialize() {}

func (p *countingProcessor) OnSchedule(flow.IProcessContext, flow.ISessionFactory) error {
	p.scheduled.Store(true)
	return p.scheduleErr
}

func (p *countingProcessor) OnTrigger(_ context.Context, pctx flow.IProcessContext, session flow.IProcessSession) error {
	n := p.triggers.Add(1)
	if p.fail != nil {
		if err := p.fail(n); err != nil {
			session.Rollback()
			return err
		}
	}
	if p.yield {
		flow.Yield(pctx)
	}
	if ff := session.Get(); ff != nil {
		session.Remove(ff)
	}
	return session.Commit()
}

func (p *countingProcessor) OnUnschedule() error {
	p.unscheduled.Store(true)
	return nil
}

func (p *countingProcessor) TriggerWhenEmpty() bool             { return p.whenEmpty }
func (p *countingProcessor) Properties() []flow.Property        { return nil }
func (p *countingProcessor) Relationships() []flow.Relationship { return nil }

func TestRun_StopsWhenDone(t *testing.T) {
	repo := memsession.NewRepository()
	for i := 0; i < 20; i++ {
		repo.Enqueue(nil, []byte("x"))
	}

	p := &countingProcessor{}
	s := New(p, flow.NewStaticContext(nil, nil), repo, Config{
		Workers: 4,
		HasWork: func() bool { return repo.Queued() > 0 },
		Until:   func() bool { return repo.Removed() == 20 },
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 20, repo.Removed())
	assert.True(t, p.scheduled.Load())
	assert.True(t, p.unscheduled.Load())
	assert.GreaterOrEqual(t, s.Triggers(), int64(20))
}

func TestRun_ScheduleErrorIsReturned(t *testing.T) {
	p := &countingProcessor{scheduleErr: errFatal}
	s := New(p, flow.NewStaticContext(nil, nil), memsession.NewRepository(), Config{})

	assert.ErrorIs(t, s.Run(context.Background()), errFatal)
	assert.Equal(t, int64(0), p.triggers.Load())
	assert.False(t, p.unscheduled.Load())
}

func TestRun_SkipsEmptyQueueUnlessTriggerWhenEmpty(t *testing.T) {
	repo := memsession.NewRepository()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	idle := &countingProcessor{}
	s := New(idle, flow.NewStaticContext(nil, nil), repo, Config{
		YieldDuration: 10 * time.Millisecond,
		HasWork:       func() bool { return repo.Queued() > 0 },
	})
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, int64(0), idle.triggers.Load())

	ctx, cancel = context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	eager := &countingProcessor{whenEmpty: true, yield: true}
	s = New(eager, flow.NewStaticContext(nil, nil), repo, Config{
		YieldDuration: 10 * time.Millisecond,
		HasWork:       func() bool { return repo.Queued() > 0 },
	})
	require.NoError(t, s.Run(ctx))
	assert.Greater(t, eager.triggers.Load(), int64(0))
	// yielding keeps the trigger rate bounded
	assert.Less(t, eager.triggers.Load(), int64(100))
}

func TestRun_RetryableFailuresBackOff(t *testing.T) {
	repo := memsession.NewRepository()
	repo.Enqueue(nil, []byte("x"))

	p := &countingProcessor{fail: func(n int64) error {
		if n <= 2 {
			return errTransient
		}
		return nil
	}}
	s := New(p, flow.NewStaticContext(nil, nil), repo, Config{
		Penalty:   10 * time.Millisecond,
		Retryable: func(err error) bool { return errors.Is(err, errTransient) },
		Until:     func() bool { return repo.Removed() == 1 },
	})

	start := time.Now()
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, int64(2), s.Failures())
	// 10ms + 20ms of penalty
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, repo.Queued())
}

func TestRun_NonRetryableFailureStops(t *testing.T) {
	repo := memsession.NewRepository()
	repo.Enqueue(nil, []byte("x"))

	p := &countingProcessor{fail: func(int64) error { return errFatal }}
	s := New(p, flow.NewStaticContext(nil, nil), repo, Config{
		Workers:   3,
		Retryable: func(err error) bool { return !errors.Is(err, errFatal) },
	})

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, errFatal)
	assert.True(t, p.unscheduled.Load())
	// the flow file was rolled back, not lost
	assert.Equal(t, 1, repo.Queued())
}

func TestNextPenalty(t *testing.T) {
	s := New(&countingProcessor{}, nil, nil, Config{Penalty: 100 * time.Millisecond, MaxPenalty: time.Second})

	p := s.nextPenalty(0)
	assert.GreaterOrEqual(t, p, 100*time.Millisecond)
	assert.Less(t, p, 111*time.Millisecond)

	for i := 0; i < 10; i++ {
		p = s.nextPenalty(p)
	}
	assert.GreaterOrEqual(t, p, time.Second)
	assert.LessOrEqual(t, p, 1100*time.Millisecond)
}
