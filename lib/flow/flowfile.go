package flow

import (
	"github.com/google/uuid"
	"maps"
	"time"
)

// Well known attribute names
const (
	AttrFilename = "filename"
	AttrPath     = "path"
	AttrUUID     = "uuid"
)

// FlowFile is the unit of data moved through a pipeline: a set of string
// attributes plus content that is accessed through the owning session.
type FlowFile struct {
	ID         uuid.UUID
	Attributes map[string]string
	Size       uint64
	Entered    time.Time
}

// NewFlowFile creates an empty flow file with a fresh identifier
func NewFlowFile() *FlowFile {
	id := uuid.New()
	return &FlowFile{
		ID:         id,
		Attributes: map[string]string{AttrUUID: id.String()},
		Entered:    time.Now(),
	}
}

// Attribute returns the value of an attribute and whether it is set
func (f *FlowFile) Attribute(name string) (string, bool) {
	v, ok := f.Attributes[name]
	return v, ok
}

// Clone returns a deep copy of the flow file
func (f *FlowFile) Clone() *FlowFile {
	c := *f
	c.Attributes = maps.Clone(f.Attributes)
	if c.Attributes == nil {
		c.Attributes = map[string]string{}
	}
	return &c
}

// Property describes a configuration property of a processor
type Property struct {
	Name        string
	Description string
	Default     string
	Required    bool
}

// Relationship is a named destination a processor routes flow files to
type Relationship struct {
	Name        string
	Description string
}

// --------------------------------------------------------------------------
// Process context
// --------------------------------------------------------------------------

// StaticContext is an IProcessContext backed by a fixed set of values.
// Properties without a value fall back to their declared default.
type StaticContext struct {
	values   map[string]string
	defaults map[string]string
}

// NewStaticContext creates a context from explicit values and the declared
// properties of a processor (for their defaults)
func NewStaticContext(values map[string]string, properties []Property) *StaticContext {
	defaults := make(map[string]string, len(properties))
	for _, p := range properties {
		if p.Default != "" {
			defaults[p.Name] = p.Default
		}
	}
	return &StaticContext{values: maps.Clone(values), defaults: defaults}
}

// Property returns the configured value or the default of a property
func (c *StaticContext) Property(name string) (string, bool) {
	if v, ok := c.values[name]; ok {
		return v, true
	}
	v, ok := c.defaults[name]
	return v, ok
}
