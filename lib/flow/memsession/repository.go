package memsession

import (
	"github.com/ValentinKolb/s2sgate/lib/flow"
	"maps"
	"sync"
)

// Stored is a committed flow file together with its content
type Stored struct {
	FlowFile *flow.FlowFile
	Content  []byte
}

type entry struct {
	ff      *flow.FlowFile
	content []byte
}

// Repository is an in-memory flow file store consisting of one input queue
// and one output list per relationship. It implements flow.ISessionFactory.
type Repository struct {
	mu       sync.Mutex
	queue    []entry
	outputs  map[string][]entry
	removed  int
	onCommit func(rel string, stored Stored)
	onRemove func(ff *flow.FlowFile)
}

// NewRepository creates an empty repository
func NewRepository() *Repository {
	return &Repository{outputs: make(map[string][]entry)}
}

// OnCommit registers a callback invoked for every flow file transferred by a
// committed session. The callback runs while the repository is locked and
// the flow file is then not kept in the output list.
func (r *Repository) OnCommit(fn func(rel string, stored Stored)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCommit = fn
}

// OnRemove registers a callback invoked for every flow file dropped by a
// committed session
func (r *Repository) OnRemove(fn func(ff *flow.FlowFile)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = fn
}

// Enqueue adds a flow file with the given attributes and content to the input queue
func (r *Repository) Enqueue(attrs map[string]string, content []byte) *flow.FlowFile {
	ff := flow.NewFlowFile()
	maps.Copy(ff.Attributes, attrs)
	ff.Size = uint64(len(content))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, entry{ff: ff, content: content})
	return ff.Clone()
}

// Queued returns the number of flow files waiting in the input queue
func (r *Repository) Queued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Removed returns the number of flow files dropped by committed sessions
func (r *Repository) Removed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removed
}

// Transferred returns copies of all committed flow files routed to rel
func (r *Repository) Transferred(rel string) []Stored {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stored, 0, len(r.outputs[rel]))
	for _, e := range r.outputs[rel] {
		out = append(out, Stored{FlowFile: e.ff.Clone(), Content: e.content})
	}
	return out
}

// CreateSession implements flow.ISessionFactory
func (r *Repository) CreateSession() flow.IProcessSession {
	return newSession(r)
}

// --------------------------------------------------------------------------
// Helper Methods (called by sessions)
// --------------------------------------------------------------------------

func (r *Repository) pop() (entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return entry{}, false
	}
	e := r.queue[0]
	r.queue = r.queue[1:]
	return e, true
}

// requeue puts entries back at the head of the queue, keeping their order
func (r *Repository) requeue(entries []entry) {
	if len(entries) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(append(make([]entry, 0, len(entries)+len(r.queue)), entries...), r.queue...)
}

type transfer struct {
	rel string
	e   entry
}

func (r *Repository) commit(transfers []transfer, removed []*flow.FlowFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed += len(removed)
	if r.onRemove != nil {
		for _, ff := range removed {
			r.onRemove(ff)
		}
	}
	for _, t := range transfers {
		if r.onCommit != nil {
			r.onCommit(t.rel, Stored{FlowFile: t.e.ff, Content: t.e.content})
			continue
		}
		r.outputs[t.rel] = append(r.outputs[t.rel], t.e)
	}
}
