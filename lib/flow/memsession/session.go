package memsession

import (
	"bytes"
	"github.com/ValentinKolb/s2sgate/lib/flow"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"io"
)

// ErrNotOwned is returned for flow files that do not belong to the session
var ErrNotOwned = errors.New("flow file is not owned by this session")

type owned struct {
	ff      *flow.FlowFile
	content []byte
	rel     string
	removed bool
}

// session implements flow.IProcessSession on top of a Repository
type session struct {
	repo  *Repository
	taken []entry
	owned map[uuid.UUID]*owned
	order []uuid.UUID
}

func newSession(repo *Repository) *session {
	return &session{repo: repo, owned: make(map[uuid.UUID]*owned)}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see flow.IProcessSession)
// --------------------------------------------------------------------------

func (s *session) Get() *flow.FlowFile {
	e, ok := s.repo.pop()
	if !ok {
		return nil
	}
	s.taken = append(s.taken, e)
	ff := e.ff.Clone()
	s.track(&owned{ff: ff, content: e.content})
	return ff
}

func (s *session) Read(ff *flow.FlowFile, fn func(io.Reader) error) error {
	o, err := s.lookup(ff)
	if err != nil {
		return err
	}
	return fn(bytes.NewReader(o.content))
}

func (s *session) Create() *flow.FlowFile {
	ff := flow.NewFlowFile()
	s.track(&owned{ff: ff})
	return ff
}

func (s *session) PutAttribute(ff *flow.FlowFile, key, value string) {
	o, err := s.lookup(ff)
	if err != nil {
		flow.Logger.Warningf("ignoring attribute %s: %v", key, err)
		return
	}
	o.ff.Attributes[key] = value
}

func (s *session) Write(ff *flow.FlowFile, fn func(io.Writer) error) error {
	o, err := s.lookup(ff)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return err
	}
	o.content = buf.Bytes()
	o.ff.Size = uint64(len(o.content))
	return nil
}

func (s *session) Transfer(ff *flow.FlowFile, rel flow.Relationship) {
	o, err := s.lookup(ff)
	if err != nil {
		flow.Logger.Warningf("ignoring transfer to %s: %v", rel.Name, err)
		return
	}
	o.rel = rel.Name
	o.removed = false
}

func (s *session) Remove(ff *flow.FlowFile) {
	o, err := s.lookup(ff)
	if err != nil {
		flow.Logger.Warningf("ignoring remove: %v", err)
		return
	}
	o.removed = true
	o.rel = ""
}

func (s *session) Commit() error {
	transfers := make([]transfer, 0, len(s.order))
	var removed []*flow.FlowFile
	for _, id := range s.order {
		o := s.owned[id]
		if o.removed {
			removed = append(removed, o.ff)
			continue
		}
		if o.rel == "" {
			return errors.Newf("flow file %s was neither transferred nor removed", id)
		}
		transfers = append(transfers, transfer{rel: o.rel, e: entry{ff: o.ff.Clone(), content: o.content}})
	}
	s.repo.commit(transfers, removed)
	s.reset()
	return nil
}

func (s *session) Rollback() {
	s.repo.requeue(s.taken)
	s.reset()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *session) track(o *owned) {
	s.owned[o.ff.ID] = o
	s.order = append(s.order, o.ff.ID)
}

func (s *session) lookup(ff *flow.FlowFile) (*owned, error) {
	if ff == nil {
		return nil, ErrNotOwned
	}
	o, ok := s.owned[ff.ID]
	if !ok {
		return nil, errors.Wrapf(ErrNotOwned, "flow file %s", ff.ID)
	}
	return o, nil
}

func (s *session) reset() {
	s.taken = nil
	s.owned = make(map[uuid.UUID]*owned)
	s.order = nil
}
