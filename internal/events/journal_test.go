package events

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/agentsync/internal/model"
)

func TestJournal_RecordAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trace.jsonl")
	j, err := OpenJournal(model.TraceConfig{Path: path, MaxSizeMB: 1}, "sess-1")
	require.NoError(t, err)

	require.NoError(t, j.Record(DirectionInbound, model.MustEnvelope(model.TypeThink, model.ThinkData{TaskID: "A", Content: "x"})))
	require.NoError(t, j.Record(DirectionOutbound, model.MustEnvelope(model.TypeResume, model.ResumeData{TaskID: "A"})))
	require.NoError(t, j.Close())

	entries, invalid, err := ReadJournal(path)
	require.NoError(t, err)
	assert.Zero(t, invalid)
	require.Len(t, entries, 2)

	assert.Equal(t, DirectionInbound, entries[0].Direction)
	assert.Equal(t, model.TypeThink, entries[0].Type)
	assert.Equal(t, "A", entries[0].TaskID)
	assert.Equal(t, "sess-1", entries[0].Session)
	assert.NotEmpty(t, entries[0].ID)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)

	var d model.ResumeData
	require.NoError(t, entries[1].Envelope().Decode(&d))
	assert.Equal(t, "A", d.TaskID)
}

func TestJournal_TamperedLineIsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	j, err := OpenJournal(model.TraceConfig{Path: path, MaxSizeMB: 1}, "")
	require.NoError(t, err)
	require.NoError(t, j.Record(DirectionInbound, model.MustEnvelope(model.TypeAlert, model.AlertData{Message: "quota"})))
	require.NoError(t, j.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(raw), "quota", "QUOTA", 1) + "not json\n"
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0644))

	entries, invalid, err := ReadJournal(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 2, invalid)
}

func TestJournal_ConcurrentRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	j, err := OpenJournal(model.TraceConfig{Path: path, MaxSizeMB: 10}, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = j.Record(DirectionInbound, model.MustEnvelope(model.TypeConnected, nil))
		}()
	}
	wg.Wait()
	require.NoError(t, j.Close())

	entries, invalid, err := ReadJournal(path)
	require.NoError(t, err)
	assert.Zero(t, invalid)
	assert.Len(t, entries, 20)
}

func TestJournal_NilIsNoop(t *testing.T) {
	var j *Journal
	assert.NoError(t, j.Record(DirectionInbound, model.Envelope{Type: model.TypeConnected}))
	assert.NoError(t, j.Close())
}
