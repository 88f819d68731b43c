package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLinker(t *testing.T) *Linker {
	t.Helper()
	return NewLinker(t.TempDir())
}

func sampleRecord() Record {
	return Record{
		AgentKind:         "claude",
		SessionID:         "session-1",
		TranscriptPath:    "/tmp/session-1.jsonl",
		MessageIdentifier: "m42",
		MessageIndex:      41,
		UserPrompt:        "fix the bug",
		CapturedAtISO:     "2026-08-02T10:00:00Z",
	}
}

func TestLinker_AddGetRemove(t *testing.T) {
	l := newLinker(t)

	require.NoError(t, l.Add("cp-1", sampleRecord()))

	rec, ok, err := l.Get("cp-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m42", rec.MessageIdentifier)
	assert.Equal(t, "claude", rec.AgentKind)

	_, ok, err = l.Get("cp-missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Remove("cp-1"))
	_, ok, err = l.Get("cp-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing an absent record is a no-op.
	require.NoError(t, l.Remove("cp-1"))
}

func TestLinker_Sweep(t *testing.T) {
	l := newLinker(t)

	require.NoError(t, l.Add("cp-1", sampleRecord()))
	require.NoError(t, l.Add("cp-2", sampleRecord()))
	require.NoError(t, l.Add("cp-3", sampleRecord()))

	removed, err := l.Sweep([]string{"cp-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	records, err := l.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	_, ok := records["cp-2"]
	assert.True(t, ok, "surviving record must be in the valid set")
}

func TestLinker_SweepEmptyIsNoWrite(t *testing.T) {
	dir := t.TempDir()
	l := NewLinker(dir)

	removed, err := l.Sweep([]string{"anything"})
	require.NoError(t, err)
	assert.Zero(t, removed)

	// No mapping file should have been created by a no-op sweep.
	_, err = os.Stat(filepath.Join(dir, "conversation", "metadata.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestLinker_NoPartialWrites(t *testing.T) {
	l := newLinker(t)
	require.NoError(t, l.Add("cp-1", sampleRecord()))

	// The mapping file parses completely at every point in time: the write
	// path goes through a temp file plus rename, so a reader sees either
	// the old or the new mapping.
	records, err := l.List()
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, l.Add("cp-2", sampleRecord()))
	records, err = l.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
}
