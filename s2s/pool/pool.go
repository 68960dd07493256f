package pool

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/s2sgate/s2s/client"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
	"strings"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("s2s/pool")

// DefaultMaxIdle is the idle bound used when Config.MaxIdle is not set
const DefaultMaxIdle = 8

// ErrPoolClosed is returned by Acquire after Close was called
var ErrPoolClosed = errors.New("connection pool is closed")

// ClientFactory creates a new, not yet handshaken client for the pool's endpoint
type ClientFactory func() *client.Client

// Config holds the bounds of a connection pool
type Config struct {
	// MaxIdle is the maximum number of idle clients kept (default DefaultMaxIdle)
	MaxIdle int
	// MaxIdleTime evicts clients idle for longer than this (0 = never)
	MaxIdleTime time.Duration
}

// Pool keeps idle, handshaken clients for one remote endpoint so that
// connections are reused across invocations. It is safe for concurrent use;
// a client handed out by Acquire is owned exclusively by the caller until it
// is passed to Release.
type Pool struct {
	endpoint common.RemoteEndpoint
	factory  ClientFactory
	config   Config

	idle      *xsync.MPMCQueueOf[*client.Client]
	idleCount atomic.Int64
	closed    atomic.Bool

	registry          gometrics.Registry
	created           gometrics.Counter
	destroyed         gometrics.Counter
	acquired          gometrics.Counter
	released          gometrics.Counter
	handshakeFailures gometrics.Counter
	idleGauge         gometrics.Gauge
	acquireTimer      gometrics.Timer
}

// NewPool creates an empty pool. Clients are created lazily by Acquire.
func NewPool(endpoint common.RemoteEndpoint, config Config, factory ClientFactory) *Pool {
	if config.MaxIdle <= 0 {
		config.MaxIdle = DefaultMaxIdle
	}

	registry := gometrics.NewRegistry()
	return &Pool{
		endpoint:          endpoint,
		factory:           factory,
		config:            config,
		idle:              xsync.NewMPMCQueueOf[*client.Client](config.MaxIdle),
		registry:          registry,
		created:           gometrics.NewRegisteredCounter("created", registry),
		destroyed:         gometrics.NewRegisteredCounter("destroyed", registry),
		acquired:          gometrics.NewRegisteredCounter("acquired", registry),
		released:          gometrics.NewRegisteredCounter("released", registry),
		handshakeFailures: gometrics.NewRegisteredCounter("handshake_failures", registry),
		idleGauge:         gometrics.NewRegisteredGauge("idle", registry),
		acquireTimer:      gometrics.NewRegisteredTimer("acquire", registry),
	}
}

// Endpoint returns the endpoint all clients of this pool connect to
func (p *Pool) Endpoint() common.RemoteEndpoint { return p.endpoint }

// Registry exposes the statistics registry of the pool
func (p *Pool) Registry() gometrics.Registry { return p.registry }

// Acquire returns an idle client or, if none is idle and createIfEmpty is
// set, creates and handshakes a new one. It returns nil, nil if nothing is
// idle and createIfEmpty is false. If the handshake fails the new client is
// destroyed and the error (marked common.ErrHandshake) is returned.
func (p *Pool) Acquire(ctx context.Context, createIfEmpty bool) (*client.Client, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	start := time.Now()

	for {
		c, ok := p.idle.TryDequeue()
		if !ok {
			break
		}
		p.idleGauge.Update(p.idleCount.Add(-1))
		c.MarkInUse()

		if p.config.MaxIdleTime > 0 && time.Since(c.LastUsed()) > p.config.MaxIdleTime {
			p.destroy(c, "idle for too long")
			continue
		}
		if c.State() != client.Handshaken {
			p.destroy(c, "not handshaken")
			continue
		}

		p.acquired.Inc(1)
		p.acquireTimer.UpdateSince(start)
		return c, nil
	}

	if !createIfEmpty {
		return nil, nil
	}

	c := p.factory()
	p.created.Inc(1)
	if err := c.Handshake(ctx); err != nil {
		p.handshakeFailures.Inc(1)
		p.destroy(c, "handshake failed")
		return nil, err
	}

	Logger.Debugf("created client %s for %s", c.ID(), p.endpoint)
	p.acquired.Inc(1)
	p.acquireTimer.UpdateSince(start)
	return c, nil
}

// Release hands a client back. Handshaken clients are parked for reuse;
// clients in any other state, and clients that do not fit into the idle
// queue, are destroyed. Releasing a client that is already parked or
// destroyed is a no-op.
func (p *Pool) Release(c *client.Client) {
	if c == nil || c.IsClosed() {
		return
	}
	if !c.MarkIdle() {
		return
	}
	p.released.Inc(1)

	if p.closed.Load() {
		p.destroy(c, "pool closed")
		return
	}
	if s := c.State(); s != client.Handshaken {
		p.destroy(c, fmt.Sprintf("released in state %s", s))
		return
	}

	p.idleGauge.Update(p.idleCount.Add(1))
	if !p.idle.TryEnqueue(c) {
		p.idleGauge.Update(p.idleCount.Add(-1))
		p.destroy(c, "idle queue full")
		return
	}

	// Close may have drained the queue between the check above and the enqueue
	if p.closed.Load() {
		p.drain()
	}
}

// Close destroys all idle clients. Clients currently held are destroyed when
// they are released. Calling Close more than once is a no-op.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	n := p.drain()
	Logger.Infof("closed pool for %s (%d idle clients closed)", p.endpoint, n)
	return nil
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Stats is a snapshot of the pool statistics
type Stats struct {
	Idle              int64
	Created           int64
	Destroyed         int64
	Acquired          int64
	Released          int64
	HandshakeFailures int64
	MeanAcquire       time.Duration
}

// Stats returns a snapshot of the pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Idle:              p.idleGauge.Value(),
		Created:           p.created.Count(),
		Destroyed:         p.destroyed.Count(),
		Acquired:          p.acquired.Count(),
		Released:          p.released.Count(),
		HandshakeFailures: p.handshakeFailures.Count(),
		MeanAcquire:       time.Duration(p.acquireTimer.Mean()),
	}
}

// String returns a one line summary of the statistics
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "idle=%d created=%d destroyed=%d ", s.Idle, s.Created, s.Destroyed)
	fmt.Fprintf(&b, "acquired=%d released=%d handshake_failures=%d ", s.Acquired, s.Released, s.HandshakeFailures)
	fmt.Fprintf(&b, "mean_acquire=%s", s.MeanAcquire)
	return b.String()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (p *Pool) destroy(c *client.Client, reason string) {
	p.destroyed.Inc(1)
	if err := c.Close(); err != nil {
		Logger.Debugf("closing client %s: %v", c.ID(), err)
	}
	Logger.Debugf("destroyed client %s for %s: %s", c.ID(), p.endpoint, reason)
}

func (p *Pool) drain() int {
	n := 0
	for {
		c, ok := p.idle.TryDequeue()
		if !ok {
			return n
		}
		p.idleGauge.Update(p.idleCount.Add(-1))
		c.MarkInUse()
		p.destroy(c, "pool closed")
		n++
	}
}
