package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/agentsync/internal/events"
	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
	"github.com/msageha/agentsync/internal/session"
	"github.com/msageha/agentsync/internal/workflow"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), cfg)
}

func TestLoadConfig_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport:
  network: tcp
  address: 127.0.0.1:7400
workflow:
  watch_docs: false
`), 0644))

	cfg, err := loadConfig(path, &globalOptions{LogLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.Transport.Network)
	assert.Equal(t, "127.0.0.1:7400", cfg.Transport.Address)
	assert.False(t, cfg.Workflow.WatchDocs)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched keys keep their defaults
	assert.Equal(t, model.DefaultConfig().Session, cfg.Session)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  network: carrier-pigeon\n"), 0644))
	_, err := loadConfig(path, nil)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("transport: [\n"), 0644))
	_, err = loadConfig(path, nil)
	assert.ErrorContains(t, err, "parse")
}

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "agentsync dev (unknown)\n", out.String())
}

func TestFormatMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-3 * time.Minute)
	longThought := strings.Repeat("a", 100)

	tests := []struct {
		name     string
		msg      model.DisplayMessage
		expanded bool
		want     string
	}{
		{
			name: "pending user message",
			msg:  model.NewUserMessage("hi", model.UserMessagePending, nil),
			want: "[0] you: hi (sending)",
		},
		{
			name: "acked user message with time",
			msg:  model.NewUserMessage("hi", model.UserMessageAcked, &earlier),
			want: "[0] you: hi  · 3 minutes ago",
		},
		{
			name: "collapsed multi-line thought",
			msg:  model.NewThinkMessage("first\nsecond", nil),
			want: "[0] thinking: first …",
		},
		{
			name: "collapsed long thought",
			msg:  model.NewThinkMessage(longThought, nil),
			want: "[0] thinking: " + strings.Repeat("a", collapsedWidth) + " …",
		},
		{
			name:     "expanded thought",
			msg:      model.NewThinkMessage("first\nsecond", nil),
			expanded: true,
			want:     "[0] thinking: \n    first\n    second",
		},
		{
			name: "collapsed tool call",
			msg:  model.NewToolInvocationMessage("grep", "-rn foo", strings.Repeat("x", 2000), nil),
			want: "[0] tool grep: -rn foo [2.0 kB output]",
		},
		{
			name: "alert",
			msg:  model.NewAlertMessage("warn", "disk low", nil),
			want: "[0] alert[warn]: disk low",
		},
		{
			name: "interrupt without reason",
			msg:  model.NewInterruptMessage("", nil),
			want: "[0] interrupted",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMessage(0, tt.msg, tt.expanded, now))
		})
	}
}

func TestExecLine_Disconnected(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Workflow.WatchDocs = false
	sess, err := session.New(session.Options{Config: cfg})
	require.NoError(t, err)
	defer sess.Close()

	var out bytes.Buffer
	p := newPrinter(&out, sess.Store(), sess.Expanded())
	ctx := context.Background()

	assert.NoError(t, execLine(ctx, sess, p, "   "))
	assert.ErrorIs(t, execLine(ctx, sess, p, "hello"), session.ErrNotConnected)
	assert.ErrorIs(t, execLine(ctx, sess, p, "/quit"), errQuit)
	assert.ErrorContains(t, execLine(ctx, sess, p, "/bogus"), "unknown command")
	assert.ErrorContains(t, execLine(ctx, sess, p, "/expand x"), "usage")
	assert.ErrorContains(t, execLine(ctx, sess, p, "/sub"), "usage")
	assert.Error(t, execLine(ctx, sess, p, "/phase sideways"))
	assert.ErrorIs(t, execLine(ctx, sess, p, "/phase begin"), session.ErrNoTask)

	require.NoError(t, execLine(ctx, sess, p, "/tasks"))
	require.NoError(t, execLine(ctx, sess, p, "/help"))
	assert.Contains(t, out.String(), "no tasks")
	assert.Contains(t, out.String(), "/phase begin")
}

func TestExecLine_DocsAdd(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Workflow.WatchDocs = false
	sess, err := session.New(session.Options{Config: cfg})
	require.NoError(t, err)
	defer sess.Close()

	var out bytes.Buffer
	p := newPrinter(&out, sess.Store(), sess.Expanded())
	ctx := context.Background()

	sess.Store().SetMainTaskID("A")
	require.NoError(t, execLine(ctx, sess, p, "/phase begin feature"))

	assert.ErrorContains(t, execLine(ctx, sess, p, "/docs add design"), "usage")
	assert.ErrorContains(t, execLine(ctx, sess, p, "/docs add notes notes.md"), "unknown document kind")
	assert.ErrorIs(t, execLine(ctx, sess, p, "/docs add design design.md"), workflow.ErrDocumentOutOfOrder)

	require.NoError(t, execLine(ctx, sess, p, "/docs add requirements /work/requirements.md"))
	require.NoError(t, execLine(ctx, sess, p, "/phase design"))

	out.Reset()
	require.NoError(t, execLine(ctx, sess, p, "/docs"))
	assert.Contains(t, out.String(), "task A phase=design")
	assert.Contains(t, out.String(), "/work/requirements.md")
}

func TestLoadReplay(t *testing.T) {
	dir := t.TempDir()

	// journal format: outbound entries are skipped
	trace := filepath.Join(dir, "trace.jsonl")
	journal, err := events.OpenJournal(model.TraceConfig{Path: trace, MaxSizeMB: 1}, "s1")
	require.NoError(t, err)
	require.NoError(t, journal.Record(events.DirectionOutbound, model.MustEnvelope(model.TypeLoadHistory, model.LoadHistoryData{TaskID: "A"})))
	require.NoError(t, journal.Record(events.DirectionInbound, model.MustEnvelope(model.TypeThink, model.ThinkData{TaskID: "A", Content: "hm"})))
	require.NoError(t, journal.Close())

	envs, err := loadReplay(trace, logging.Discard())
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, model.TypeThink, envs[0].Type)

	// plain envelope lines; the malformed one is skipped
	plain := filepath.Join(dir, "plain.jsonl")
	require.NoError(t, os.WriteFile(plain, []byte(
		`{"type":"connected","data":{"sessionId":"x"}}`+"\n"+
			"not json\n"+
			`{"type":"think","data":{"content":"c"}}`+"\n"), 0644))
	envs, err = loadReplay(plain, logging.Discard())
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, model.TypeConnected, envs[0].Type)

	_, err = loadReplay(filepath.Join(dir, "missing.jsonl"), logging.Discard())
	assert.Error(t, err)
}

func TestInitCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentsync.yaml")

	run := func(args ...string) (string, error) {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(append([]string{"--config", path, "init"}, args...))
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := run()
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	_, err = run()
	assert.ErrorContains(t, err, "already exists")

	_, err = run("--force")
	require.NoError(t, err)
	assert.FileExists(t, path+".bak")

	cfg, err := loadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), cfg)
}
