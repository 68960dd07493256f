package peer

import (
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/transport"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("s2s/peer")

// DefaultTimeout bounds a single transaction served by the peer
const DefaultTimeout = 30 * time.Second

// Peer is the remote side of the Site-to-Site protocol. It accepts client
// connections, serves the handshake for its known ports and runs SEND and
// RECEIVE transactions against the port queues.
type Peer struct {
	config    common.PeerConfig
	listeners transport.IListenerFactory

	ports *xsync.MapOf[uuid.UUID, *Queue]
	conns *xsync.MapOf[net.Conn, struct{}]

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// NewPeer creates a peer serving the ports of the configuration
func NewPeer(config common.PeerConfig, listeners transport.IListenerFactory) *Peer {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	p := &Peer{
		config:    config,
		listeners: listeners,
		ports:     xsync.NewMapOf[uuid.UUID, *Queue](),
		conns:     xsync.NewMapOf[net.Conn, struct{}](),
	}
	for id, name := range config.Ports {
		p.AddPort(id, name)
	}
	return p
}

// AddPort registers a port and returns its queue. An existing port is kept.
func (p *Peer) AddPort(id uuid.UUID, name string) *Queue {
	q, _ := p.ports.LoadOrCompute(id, func() *Queue {
		Logger.Infof("serving port %s (%s)", name, id)
		return newQueue(id, name, p.config.MaxQueued)
	})
	return q
}

// Port returns the queue of a port
func (p *Peer) Port(id uuid.UUID) (*Queue, bool) {
	return p.ports.Load(id)
}

// Ports returns the queues of all ports
func (p *Peer) Ports() []*Queue {
	queues := make([]*Queue, 0, p.ports.Size())
	p.ports.Range(func(_ uuid.UUID, q *Queue) bool {
		queues = append(queues, q)
		return true
	})
	return queues
}

// Start creates the listener and accepts connections in the background
func (p *Peer) Start() error {
	if p.closed.Load() {
		return errors.New("peer is closed")
	}

	listener, err := p.listeners.Listen(p.config.Endpoint)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", p.config.Endpoint)
	}

	p.mu.Lock()
	p.listener = listener
	p.mu.Unlock()

	Logger.Infof("starting %s peer on %s with %d ports", p.listeners.GetName(), listener.Addr(), p.ports.Size())

	p.wg.Add(1)
	go p.accept(listener)
	return nil
}

// Addr returns the address the peer listens on (nil before Start)
func (p *Peer) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Close stops accepting connections, closes all open connections and waits
// for their handlers. Transactions in flight are rolled back.
func (p *Peer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.mu.Lock()
	listener := p.listener
	p.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	p.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.Close()
		return true
	})
	p.wg.Wait()

	Logger.Infof("peer stopped")
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (p *Peer) accept(listener net.Listener) {
	defer p.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if p.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Errorf("accept error: %v", err)
			continue
		}

		p.conns.Store(conn, struct{}{})
		if p.closed.Load() {
			_ = conn.Close()
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer p.conns.Delete(conn)
			defer conn.Close()
			newSession(p, conn).serve()
		}()
	}
}
