package flow

import (
	"context"
	"github.com/lni/dragonboat/v4/logger"
	"io"
)

var Logger = logger.GetLogger("flow")

// IProcessor is a unit of work that the scheduler triggers repeatedly.
// Implementations are triggered from several goroutines at once and must be
// safe for concurrent use between OnSchedule and OnUnschedule.
type IProcessor interface {
	// Initialize registers the supported properties and relationships.
	// It is called once, before anything else.
	Initialize()

	// OnSchedule validates the configuration and prepares shared resources.
	// An error marked as configuration error stops the processor from being scheduled.
	OnSchedule(pctx IProcessContext, factory ISessionFactory) error

	// OnTrigger does one unit of work inside the given session. The processor
	// commits or rolls back the session itself before returning.
	OnTrigger(ctx context.Context, pctx IProcessContext, session IProcessSession) error

	// OnUnschedule releases the resources acquired in OnSchedule
	OnUnschedule() error

	// TriggerWhenEmpty reports whether the processor has to be triggered even
	// when its input queue holds no flow files
	TriggerWhenEmpty() bool

	// Properties returns the supported properties
	Properties() []Property

	// Relationships returns the supported relationships
	Relationships() []Relationship
}

// IProcessContext gives a processor access to its configuration
type IProcessContext interface {
	// Property returns the configured value of a property and whether it is set
	Property(name string) (string, bool)
}

// IProcessSession is a unit of transactional work. Flow files pulled with Get
// or created with Create are owned by the session; their fate (transfer or
// removal) only becomes visible to the outside on Commit. Rollback returns
// pulled flow files to the input queue and discards everything else.
//
// A session is used by one goroutine at a time.
type IProcessSession interface {
	// Get pulls the next flow file from the input queue (nil if empty)
	Get() *FlowFile

	// Read streams the content of a flow file to fn
	Read(ff *FlowFile, fn func(io.Reader) error) error

	// Create creates a new, empty flow file owned by the session
	Create() *FlowFile

	// PutAttribute sets an attribute on a flow file owned by the session
	PutAttribute(ff *FlowFile, key, value string)

	// Write replaces the content of a flow file with everything fn writes
	Write(ff *FlowFile, fn func(io.Writer) error) error

	// Transfer routes a flow file to a relationship
	Transfer(ff *FlowFile, rel Relationship)

	// Remove drops a flow file
	Remove(ff *FlowFile)

	// Commit makes all changes of the session visible
	Commit() error

	// Rollback discards all changes of the session
	Rollback()
}

// ISessionFactory creates sessions for a processor
type ISessionFactory interface {
	CreateSession() IProcessSession
}

// IYieldContext is implemented by process contexts that let a processor
// signal that it found no work and should not be triggered again right away
type IYieldContext interface {
	IProcessContext
	Yield()
}

// Yield asks the scheduler behind pctx to back off before the next trigger.
// It is a no-op for contexts that do not support yielding.
func Yield(pctx IProcessContext) {
	if y, ok := pctx.(IYieldContext); ok {
		y.Yield()
	}
}
