package util

import (
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func TestParsePorts(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	ports, err := ParsePorts(" ingest=" + a.String() + ", egress = " + b.String() + ",")
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]string{a: "ingest", b: "egress"}, ports)

	for _, raw := range []string{
		"",
		"ingest",
		"=" + a.String(),
		"ingest=not-a-uuid",
		"one=" + a.String() + ",two=" + a.String(),
	} {
		_, err := ParsePorts(raw)
		assert.True(t, common.IsFatal(err), "expected configuration error for %q", raw)
	}
}

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 40)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestGetFactories(t *testing.T) {
	s, err := GetStreamFactory(common.TransportConfig{Name: "unix"})
	require.NoError(t, err)
	assert.Equal(t, "unix", s.GetName())

	_, err = GetStreamFactory(common.TransportConfig{Name: "http"})
	assert.True(t, common.IsFatal(err))

	l, err := GetListenerFactory("tcp")
	require.NoError(t, err)
	assert.Equal(t, "tcp", l.GetName())
}
