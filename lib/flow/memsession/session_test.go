package memsession

import (
	"github.com/ValentinKolb/s2sgate/lib/flow"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"strings"
	"testing"
)

var success = flow.Relationship{Name: "success"}

func readAll(t *testing.T, s flow.IProcessSession, ff *flow.FlowFile) string {
	var content string
	require.NoError(t, s.Read(ff, func(r io.Reader) error {
		b, err := io.ReadAll(r)
		content = string(b)
		return err
	}))
	return content
}

func TestSession_GetAndCommitTransfer(t *testing.T) {
	repo := NewRepository()
	repo.Enqueue(map[string]string{flow.AttrFilename: "a"}, []byte("alpha"))

	s := repo.CreateSession()
	ff := s.Get()
	require.NotNil(t, ff)
	assert.Equal(t, "alpha", readAll(t, s, ff))
	assert.Equal(t, uint64(5), ff.Size)
	assert.Equal(t, 0, repo.Queued())

	s.PutAttribute(ff, "checked", "yes")
	s.Transfer(ff, success)
	require.NoError(t, s.Commit())

	out := repo.Transferred("success")
	require.Len(t, out, 1)
	assert.Equal(t, "yes", out[0].FlowFile.Attributes["checked"])
	assert.Equal(t, "a", out[0].FlowFile.Attributes[flow.AttrFilename])
	assert.Equal(t, "alpha", string(out[0].Content))
}

func TestSession_RollbackRestoresQueueOrder(t *testing.T) {
	repo := NewRepository()
	for _, name := range []string{"1", "2", "3"} {
		repo.Enqueue(map[string]string{flow.AttrFilename: name}, []byte(name))
	}

	s := repo.CreateSession()
	first := s.Get()
	second := s.Get()
	s.PutAttribute(first, "changed", "true")
	s.Remove(first)
	s.Remove(second)
	created := s.Create()
	s.Transfer(created, success)
	s.Rollback()

	assert.Equal(t, 3, repo.Queued())
	assert.Equal(t, 0, repo.Removed())
	assert.Empty(t, repo.Transferred("success"))

	// order is preserved and modifications are gone
	s = repo.CreateSession()
	for _, want := range []string{"1", "2", "3"} {
		ff := s.Get()
		require.NotNil(t, ff)
		assert.Equal(t, want, ff.Attributes[flow.AttrFilename])
		_, changed := ff.Attribute("changed")
		assert.False(t, changed)
		s.Remove(ff)
	}
	assert.Nil(t, s.Get())
	require.NoError(t, s.Commit())
	assert.Equal(t, 3, repo.Removed())
}

func TestSession_CreateAndWrite(t *testing.T) {
	repo := NewRepository()
	var committed []Stored
	repo.OnCommit(func(rel string, stored Stored) {
		assert.Equal(t, "success", rel)
		committed = append(committed, stored)
	})

	s := repo.CreateSession()
	ff := s.Create()
	require.NoError(t, s.Write(ff, func(w io.Writer) error {
		_, err := io.Copy(w, strings.NewReader("payload"))
		return err
	}))
	assert.Equal(t, uint64(7), ff.Size)
	s.Transfer(ff, success)
	require.NoError(t, s.Commit())

	require.Len(t, committed, 1)
	assert.Equal(t, "payload", string(committed[0].Content))
	// callback consumers take ownership, nothing is kept
	assert.Empty(t, repo.Transferred("success"))
}

func TestSession_CommitRequiresDestination(t *testing.T) {
	repo := NewRepository()
	s := repo.CreateSession()
	s.Create()

	assert.Error(t, s.Commit())
	s.Rollback()
	assert.Empty(t, repo.Transferred("success"))
}

func TestSession_ForeignFlowFile(t *testing.T) {
	repo := NewRepository()
	s := repo.CreateSession()
	foreign := flow.NewFlowFile()

	err := s.Read(foreign, func(io.Reader) error { return nil })
	assert.True(t, errors.Is(err, ErrNotOwned))
	err = s.Write(nil, func(io.Writer) error { return nil })
	assert.True(t, errors.Is(err, ErrNotOwned))
}

func TestSession_RemoveCallback(t *testing.T) {
	repo := NewRepository()
	repo.Enqueue(map[string]string{flow.AttrPath: "/tmp/x"}, nil)

	var removed []string
	repo.OnRemove(func(ff *flow.FlowFile) {
		removed = append(removed, ff.Attributes[flow.AttrPath])
	})

	s := repo.CreateSession()
	s.Remove(s.Get())
	require.NoError(t, s.Commit())
	assert.Equal(t, []string{"/tmp/x"}, removed)
}

func TestStaticContext_Defaults(t *testing.T) {
	ctx := flow.NewStaticContext(map[string]string{"Port": "1234"}, []flow.Property{
		{Name: "Host Name", Default: "localhost"},
		{Name: "Port", Default: "9999"},
		{Name: "Port UUID"},
	})

	v, ok := ctx.Property("Host Name")
	assert.True(t, ok)
	assert.Equal(t, "localhost", v)
	v, ok = ctx.Property("Port")
	assert.True(t, ok)
	assert.Equal(t, "1234", v)
	_, ok = ctx.Property("Port UUID")
	assert.False(t, ok)
}
