package pool

import (
	"bufio"
	"context"
	"github.com/ValentinKolb/s2sgate/s2s/client"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/protocol"
	"github.com/ValentinKolb/s2sgate/s2s/transport/tcp"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testEndpoint = common.RemoteEndpoint{Host: "pipe", Port: 9999, PortID: uuid.New()}

// handshakeFactory serves every stream with an in-memory peer that accepts
// (or rejects) the handshake and then swallows all further input
type handshakeFactory struct {
	reject     bool
	handshakes atomic.Int64
}

func (f *handshakeFactory) GetName() string { return "pipe" }

func (f *handshakeFactory) CreateStream(_ context.Context, _ common.RemoteEndpoint) (net.Conn, error) {
	clientConn, peerConn := net.Pipe()
	go f.serve(peerConn)
	return clientConn, nil
}

func (f *handshakeFactory) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	if err := protocol.ReadMagic(r); err != nil {
		return
	}
	_, version, err := protocol.ReadResourceRequest(r)
	if err != nil {
		return
	}
	if err := protocol.WriteResourceResponse(conn, protocol.ResourceResponse{Status: protocol.ResourceOK}); err != nil {
		return
	}
	if _, err := protocol.ReadHandshakeRequest(r, version); err != nil {
		return
	}
	if f.reject {
		_ = protocol.WriteResponse(conn, protocol.UnknownPort, "no such port")
		return
	}
	f.handshakes.Add(1)
	if err := protocol.WriteResponse(conn, protocol.PropertiesOK, ""); err != nil {
		return
	}
	_, _ = io.Copy(io.Discard, r)
}

func newTestPool(config Config, streams *handshakeFactory) *Pool {
	return NewPool(testEndpoint, config, func() *client.Client {
		return client.NewClient(client.Config{Endpoint: testEndpoint, Timeout: 5 * time.Second}, streams)
	})
}

func TestAcquire_CreatesAndReuses(t *testing.T) {
	streams := &handshakeFactory{}
	p := newTestPool(Config{}, streams)
	defer p.Close()

	c, err := p.Acquire(context.Background(), true)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, client.Handshaken, c.State())
	assert.Equal(t, int64(1), streams.handshakes.Load())

	p.Release(c)
	assert.Equal(t, int64(1), p.Stats().Idle)

	again, err := p.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Same(t, c, again)
	assert.Equal(t, int64(1), streams.handshakes.Load())
	assert.Equal(t, int64(0), p.Stats().Idle)
	p.Release(again)
}

func TestAcquire_EmptyWithoutCreate(t *testing.T) {
	p := newTestPool(Config{}, &handshakeFactory{})
	defer p.Close()

	c, err := p.Acquire(context.Background(), false)
	assert.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, int64(0), p.Stats().Created)
}

func TestAcquire_HandshakeFailureIsRetryableAndNotPooled(t *testing.T) {
	p := newTestPool(Config{}, &handshakeFactory{reject: true})
	defer p.Close()

	c, err := p.Acquire(context.Background(), true)
	assert.Nil(t, c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrHandshake))
	assert.True(t, common.IsRetryable(err))

	stats := p.Stats()
	assert.Equal(t, int64(0), stats.Idle)
	assert.Equal(t, int64(1), stats.HandshakeFailures)
	assert.Equal(t, int64(1), stats.Destroyed)
}

func TestAcquire_UnreachableHost(t *testing.T) {
	// reserve a port and free it again so nothing listens there
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().(*net.TCPAddr)
	require.NoError(t, listener.Close())

	endpoint := common.RemoteEndpoint{Host: "127.0.0.1", Port: addr.Port, PortID: uuid.New()}
	streams := tcp.NewTCPStreamFactory(common.TransportConfig{Name: "tcp", DialTimeout: time.Second})
	p := NewPool(endpoint, Config{}, func() *client.Client {
		return client.NewClient(client.Config{Endpoint: endpoint, Timeout: time.Second}, streams)
	})
	defer p.Close()

	c, err := p.Acquire(context.Background(), true)
	assert.Nil(t, c)
	require.Error(t, err)
	assert.True(t, common.IsRetryable(err))
	assert.Contains(t, err.Error(), strconv.Itoa(addr.Port))
	assert.Equal(t, int64(0), p.Stats().Idle)

	idle, err := p.Acquire(context.Background(), false)
	assert.NoError(t, err)
	assert.Nil(t, idle)
}

func TestRelease_IsIdempotent(t *testing.T) {
	p := newTestPool(Config{}, &handshakeFactory{})
	defer p.Close()

	c, err := p.Acquire(context.Background(), true)
	require.NoError(t, err)

	p.Release(c)
	p.Release(c)
	p.Release(c)
	assert.Equal(t, int64(1), p.Stats().Idle)

	first, err := p.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Same(t, c, first)

	second, err := p.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Nil(t, second)

	p.Release(nil)
}

func TestRelease_BrokenClientIsDestroyed(t *testing.T) {
	streams := &handshakeFactory{}
	p := newTestPool(Config{}, streams)
	defer p.Close()

	c, err := p.Acquire(context.Background(), true)
	require.NoError(t, err)

	tx, err := c.Begin(context.Background(), common.Send)
	require.NoError(t, err)
	require.NoError(t, tx.Cancel("test"))
	require.Equal(t, client.Broken, c.State())

	p.Release(c)
	assert.True(t, c.IsClosed())
	assert.Equal(t, int64(0), p.Stats().Idle)

	// a broken client is never handed out again
	next, err := p.Acquire(context.Background(), true)
	require.NoError(t, err)
	assert.NotSame(t, c, next)
	assert.Equal(t, int64(2), streams.handshakes.Load())
	p.Release(next)

	// releasing the destroyed client again changes nothing
	p.Release(c)
	assert.Equal(t, int64(1), p.Stats().Idle)
}

func TestRelease_FullQueueDestroysClient(t *testing.T) {
	p := newTestPool(Config{MaxIdle: 2}, &handshakeFactory{})
	defer p.Close()

	var clients []*client.Client
	for i := 0; i < 3; i++ {
		c, err := p.Acquire(context.Background(), true)
		require.NoError(t, err)
		clients = append(clients, c)
	}
	for _, c := range clients {
		p.Release(c)
	}

	assert.Equal(t, int64(2), p.Stats().Idle)
	assert.False(t, clients[0].IsClosed())
	assert.False(t, clients[1].IsClosed())
	assert.True(t, clients[2].IsClosed())
}

func TestAcquire_EvictsStaleClients(t *testing.T) {
	p := newTestPool(Config{MaxIdleTime: 50 * time.Millisecond}, &handshakeFactory{})
	defer p.Close()

	c, err := p.Acquire(context.Background(), true)
	require.NoError(t, err)
	p.Release(c)

	time.Sleep(100 * time.Millisecond)

	stale, err := p.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Nil(t, stale)
	assert.True(t, c.IsClosed())
}

func TestAcquire_ConcurrentCallersGetExclusiveClients(t *testing.T) {
	streams := &handshakeFactory{}
	p := newTestPool(Config{MaxIdle: 4}, streams)
	defer p.Close()

	const workers = 16
	const rounds = 50

	var inUse sync.Map
	var violations atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				c, err := p.Acquire(context.Background(), true)
				if err != nil || c == nil {
					violations.Add(1)
					continue
				}
				if _, loaded := inUse.LoadOrStore(c, true); loaded {
					violations.Add(1)
				}
				time.Sleep(time.Microsecond)
				inUse.Delete(c)
				p.Release(c)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), violations.Load())
	stats := p.Stats()
	assert.Equal(t, int64(workers*rounds), stats.Acquired)
	assert.LessOrEqual(t, stats.Idle, int64(4))
	// reuse must have saved handshakes
	assert.Less(t, streams.handshakes.Load(), int64(workers*rounds))
}

func TestClose_DrainsPool(t *testing.T) {
	p := newTestPool(Config{}, &handshakeFactory{})

	idle, err := p.Acquire(context.Background(), true)
	require.NoError(t, err)
	held, err := p.Acquire(context.Background(), true)
	require.NoError(t, err)
	p.Release(idle)

	require.NoError(t, p.Close())
	assert.True(t, idle.IsClosed())
	assert.Equal(t, int64(0), p.Stats().Idle)

	_, err = p.Acquire(context.Background(), true)
	assert.ErrorIs(t, err, ErrPoolClosed)

	// clients released after close are destroyed
	p.Release(held)
	assert.True(t, held.IsClosed())

	assert.NoError(t, p.Close())
}

func TestStats_String(t *testing.T) {
	s := Stats{Idle: 1, Created: 2, Destroyed: 1, Acquired: 5, Released: 4, MeanAcquire: time.Millisecond}
	assert.Equal(t, "idle=1 created=2 destroyed=1 acquired=5 released=4 handshake_failures=0 mean_acquire=1ms", s.String())
}
