package port

import (
	"context"
	"github.com/ValentinKolb/s2sgate/lib/flow"
	"github.com/ValentinKolb/s2sgate/s2s/client"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/pool"
	"github.com/ValentinKolb/s2sgate/s2s/transport"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"strconv"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("s2s/port")

// Property names of the adapter
const (
	PropHostName = "Host Name"
	PropPort     = "Port"
	PropPortUUID = "Port UUID"
)

var (
	HostNameProperty = flow.Property{
		Name:        PropHostName,
		Description: "Remote host name or IP address (socket path for the unix transport)",
		Default:     "localhost",
	}
	PortProperty = flow.Property{
		Name:        PropPort,
		Description: "Remote Site-to-Site port",
		Default:     "9999",
	}
	PortUUIDProperty = flow.Property{
		Name:        PropPortUUID,
		Description: "Identifier of the port on the remote peer",
		Required:    true,
	}

	// Undefined is the single relationship received flow files are routed to
	Undefined = flow.Relationship{
		Name:        "undefined",
		Description: "Flow files received from the remote port",
	}
)

// Adapter is the processor that moves flow files between the local session
// and a port on a remote Site-to-Site peer. It owns the connection pool of
// that port; every trigger checks out one client and runs one transaction.
type Adapter struct {
	streams     transport.IStreamFactory
	batchCount  int
	maxIdle     int
	maxIdleTime time.Duration

	direction    atomic.Int32
	timeout      atomic.Int64
	transmitting atomic.Bool

	pool          atomic.Pointer[pool.Pool]
	properties    []flow.Property
	relationships []flow.Relationship
}

// NewAdapter creates an adapter from the port configuration. The remote
// endpoint is resolved from the process context when the adapter is scheduled.
func NewAdapter(config common.PortConfig, streams transport.IStreamFactory) *Adapter {
	a := &Adapter{
		streams:     streams,
		batchCount:  config.BatchCount,
		maxIdle:     config.MaxIdle,
		maxIdleTime: config.MaxIdleTime,
	}
	a.SetDirection(config.Direction)
	a.SetTimeout(config.Timeout)
	a.SetTransmitting(config.Transmitting)
	return a
}

// EndpointProperties returns the property values that select endpoint
func EndpointProperties(endpoint common.RemoteEndpoint) map[string]string {
	return map[string]string{
		PropHostName: endpoint.Host,
		PropPort:     strconv.Itoa(endpoint.Port),
		PropPortUUID: endpoint.PortID.String(),
	}
}

// --------------------------------------------------------------------------
// Runtime configuration
// --------------------------------------------------------------------------

// SetDirection sets the transfer direction. Receiving implies trigger when empty.
func (a *Adapter) SetDirection(direction common.TransferDirection) {
	a.direction.Store(int32(direction))
}

// Direction returns the transfer direction
func (a *Adapter) Direction() common.TransferDirection {
	return common.TransferDirection(a.direction.Load())
}

// SetTimeout sets the time budget of one invocation (handshake and transaction)
func (a *Adapter) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = client.DefaultTimeout
	}
	a.timeout.Store(int64(timeout))
}

// Timeout returns the time budget of one invocation
func (a *Adapter) Timeout() time.Duration {
	return time.Duration(a.timeout.Load())
}

// SetTransmitting enables or disables the port. A disabled port does nothing when triggered.
func (a *Adapter) SetTransmitting(transmitting bool) {
	a.transmitting.Store(transmitting)
}

// IsTransmitting reports whether the port is enabled
func (a *Adapter) IsTransmitting() bool {
	return a.transmitting.Load()
}

// Pool returns the connection pool while the adapter is scheduled (nil otherwise)
func (a *Adapter) Pool() *pool.Pool {
	return a.pool.Load()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see flow.IProcessor)
// --------------------------------------------------------------------------

func (a *Adapter) Initialize() {
	a.properties = []flow.Property{HostNameProperty, PortProperty, PortUUIDProperty}
	a.relationships = []flow.Relationship{Undefined}
}

func (a *Adapter) Properties() []flow.Property { return a.properties }

func (a *Adapter) Relationships() []flow.Relationship { return a.relationships }

func (a *Adapter) TriggerWhenEmpty() bool {
	return a.Direction() == common.Receive
}

func (a *Adapter) OnSchedule(pctx flow.IProcessContext, _ flow.ISessionFactory) error {
	endpoint, err := endpointFrom(pctx)
	if err != nil {
		return err
	}

	p := pool.NewPool(endpoint, pool.Config{MaxIdle: a.maxIdle, MaxIdleTime: a.maxIdleTime}, func() *client.Client {
		return client.NewClient(client.Config{
			Endpoint:   endpoint,
			Timeout:    a.Timeout(),
			BatchCount: a.batchCount,
		}, a.streams)
	})
	if old := a.pool.Swap(p); old != nil {
		_ = old.Close()
	}

	Logger.Infof("scheduled %s port %s (transport %s)", a.Direction(), endpoint, a.streams.GetName())
	return nil
}

func (a *Adapter) OnUnschedule() error {
	p := a.pool.Swap(nil)
	if p == nil {
		return nil
	}
	Logger.Infof("unscheduled port %s (%s)", p.Endpoint(), p.Stats())
	return p.Close()
}

func (a *Adapter) OnTrigger(ctx context.Context, pctx flow.IProcessContext, session flow.IProcessSession) error {
	// read once, a change only affects the next invocation
	if !a.transmitting.Load() {
		flow.Yield(pctx)
		return nil
	}

	p := a.pool.Load()
	if p == nil {
		return common.NewConfigurationError("port is not scheduled")
	}
	direction := a.Direction()

	// a send without local data does not need a connection
	var first *flow.FlowFile
	if direction == common.Send {
		if first = session.Get(); first == nil {
			flow.Yield(pctx)
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.Timeout())
	defer cancel()

	c, err := p.Acquire(ctx, true)
	if err != nil {
		session.Rollback()
		return err
	}
	defer p.Release(c)

	if direction == common.Send {
		return a.send(ctx, c, session, first)
	}
	return a.receive(ctx, pctx, c, session)
}

// --------------------------------------------------------------------------
// Transfers
// --------------------------------------------------------------------------

// send transfers first and further flow files of the session in one
// transaction. They are only removed from the session once the peer
// acknowledged the transaction.
func (a *Adapter) send(ctx context.Context, c *client.Client, session flow.IProcessSession, first *flow.FlowFile) error {
	tx, err := c.Begin(ctx, common.Send)
	if err != nil {
		session.Rollback()
		return err
	}

	var sent []*flow.FlowFile
	for ff := first; ff != nil; ff = session.Get() {
		err := session.Read(ff, func(r io.Reader) error {
			return tx.Send(ff.Attributes, ff.Size, r)
		})
		if err != nil {
			if c.State() == client.InTransaction {
				_ = tx.Cancel("failed to read local flow file content")
			}
			session.Rollback()
			return err
		}
		sent = append(sent, ff)
		if a.batchCount > 0 && len(sent) >= a.batchCount {
			break
		}
	}

	if err := tx.Confirm(); err != nil {
		session.Rollback()
		return err
	}
	if err := tx.Complete(); err != nil {
		session.Rollback()
		return err
	}

	for _, ff := range sent {
		session.Remove(ff)
	}
	if err := session.Commit(); err != nil {
		// the peer owns the data already, a retry would duplicate it
		Logger.Errorf("peer accepted %d flow files but the local session could not be committed: %v", len(sent), err)
		session.Rollback()
		return err
	}

	Logger.Debugf("sent %d flow files (%d bytes) to %s", tx.Records(), tx.Bytes(), c.Endpoint())
	return nil
}

// receive pulls all records the peer offers in one transaction into new flow
// files. The session is committed only once the peer acknowledged the
// completed transaction; any earlier failure rolls it back.
func (a *Adapter) receive(ctx context.Context, pctx flow.IProcessContext, c *client.Client, session flow.IProcessSession) error {
	tx, err := c.Begin(ctx, common.Receive)
	if err != nil {
		session.Rollback()
		return err
	}

	for {
		rec, err := tx.Receive()
		if err != nil {
			session.Rollback()
			return err
		}
		if rec == nil {
			break
		}

		ff := session.Create()
		for k, v := range rec.Attributes {
			if k == flow.AttrUUID {
				continue
			}
			session.PutAttribute(ff, k, v)
		}
		err = session.Write(ff, func(w io.Writer) error {
			_, err := io.Copy(w, rec.Content)
			return err
		})
		if err != nil {
			if c.State() == client.InTransaction {
				_ = tx.Cancel("failed to write local flow file content")
			}
			session.Rollback()
			return err
		}
		session.Transfer(ff, Undefined)
	}

	if err := tx.Confirm(); err != nil {
		session.Rollback()
		return err
	}
	if err := tx.Complete(); err != nil {
		session.Rollback()
		return err
	}
	if err := session.Commit(); err != nil {
		Logger.Errorf("peer %s finished a transaction of %d flow files that could not be committed locally: %v", c.Endpoint(), tx.Records(), err)
		session.Rollback()
		return err
	}

	if tx.Records() == 0 {
		flow.Yield(pctx)
		return nil
	}
	Logger.Debugf("received %d flow files (%d bytes) from %s", tx.Records(), tx.Bytes(), c.Endpoint())
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// endpointFrom reads and validates the endpoint properties
func endpointFrom(pctx flow.IProcessContext) (common.RemoteEndpoint, error) {
	host, ok := pctx.Property(PropHostName)
	if !ok || host == "" {
		host = HostNameProperty.Default
	}

	portStr, ok := pctx.Property(PropPort)
	if !ok || portStr == "" {
		portStr = PortProperty.Default
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return common.RemoteEndpoint{}, common.NewConfigurationError("property %q: %q is not a number", PropPort, portStr)
	}

	idStr, ok := pctx.Property(PropPortUUID)
	if !ok || idStr == "" {
		return common.RemoteEndpoint{}, common.NewConfigurationError("property %q is required", PropPortUUID)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return common.RemoteEndpoint{}, common.NewConfigurationError("property %q: %q is not a valid uuid", PropPortUUID, idStr)
	}

	endpoint := common.RemoteEndpoint{Host: host, Port: port, PortID: id}
	if err := endpoint.Validate(); err != nil {
		return common.RemoteEndpoint{}, err
	}
	return endpoint, nil
}
