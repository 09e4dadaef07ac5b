package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"aaronromeo.com/inboxsweep/internal/config"
	"aaronromeo.com/inboxsweep/pkg/base"
	"aaronromeo.com/inboxsweep/pkg/mock"
	"aaronromeo.com/inboxsweep/pkg/models/action"
	"aaronromeo.com/inboxsweep/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "inboxsweep.yaml")
	contents := `
provider:
  kind: imap
  imap:
    host: imap.example.com
    user: me@example.com
scheduler:
  min_interval: 1ms
  base_delay: 1ms
store:
  backend: sqlite
  sqlite_path: ` + filepath.Join(dir, "queue.db") + `
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func runApp(t *testing.T, provider *testutil.FakeProvider, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp(WithProvider(provider))
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	full := append([]string{"inboxsweep", "--env-file", filepath.Join(t.TempDir(), "none.env")}, args...)
	err := app.RunContext(context.Background(), full)
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	out, err := runApp(t, testutil.NewFakeProvider(), "--config", path, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "imap imap.example.com:993 as me@example.com")
	assert.Contains(t, out, "sqlite at "+filepath.Join(dir, "queue.db"))
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  kind: pop3\n"), 0o600))

	_, err := runApp(t, testutil.NewFakeProvider(), "--config", path, "validate")
	assert.ErrorContains(t, err, "provider.kind")
}

func TestQueueListAndFlush(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)
	provider := testutil.NewFakeProvider()

	out, err := runApp(t, provider, "--config", path, "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no pending actions")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	g, err := Build(context.Background(), cfg, mock.SetupLogger(t), WithProvider(provider))
	require.NoError(t, err)
	id, err := g.Queue.Enqueue(context.Background(), action.Intent{
		Type:   action.Trash,
		Target: action.Target{EmailIDs: []string{"news-1", "news-2"}},
	})
	require.NoError(t, err)
	_, err = g.Queue.Enqueue(context.Background(), action.Intent{
		Type:   action.Block,
		Target: action.Target{Sender: "deals@shop.example"},
	})
	require.NoError(t, err)
	require.NoError(t, g.Close())

	out, err = runApp(t, provider, "--config", path, "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "news-1,news-2")
	assert.Contains(t, out, "deals@shop.example")

	out, err = runApp(t, provider, "--config", path, "queue", "flush")
	require.NoError(t, err)
	assert.Equal(t, "synced 2, failed 0\n", out)
	assert.Equal(t, []string{"Trash(news-1,news-2)"}, provider.CallsTo("Trash"))
	assert.Equal(t, []string{"CreateBlockFilter(deals@shop.example)"}, provider.CallsTo("CreateBlockFilter"))

	out, err = runApp(t, provider, "--config", path, "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no pending actions")
}

func TestQueueFlushKeepsFailures(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)
	provider := testutil.NewFakeProvider()
	provider.TrashFunc = func(context.Context, []string) error {
		return base.Classify(base.ErrProviderHardFailure, errors.New("mailbox locked"))
	}

	cfg, err := config.Load(path)
	require.NoError(t, err)
	g, err := Build(context.Background(), cfg, mock.SetupLogger(t), WithProvider(provider))
	require.NoError(t, err)
	_, err = g.Queue.Enqueue(context.Background(), action.Intent{
		Type:   action.Trash,
		Target: action.Target{EmailIDs: []string{"a-1"}},
	})
	require.NoError(t, err)
	require.NoError(t, g.Close())

	out, err := runApp(t, provider, "--config", path, "queue", "flush")
	require.NoError(t, err)
	assert.Equal(t, "synced 0, failed 1\n", out)

	out, err = runApp(t, provider, "--config", path, "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "mailbox locked")
}

func TestDescribeTarget(t *testing.T) {
	tests := []struct {
		name   string
		target action.Target
		want   string
	}{
		{name: "sender", target: action.Target{Sender: "a@b.example"}, want: "a@b.example"},
		{name: "domain", target: action.Target{Domain: "b.example"}, want: "@b.example"},
		{name: "few ids", target: action.Target{EmailIDs: []string{"1", "2"}}, want: "1,2"},
		{name: "many ids", target: action.Target{EmailIDs: []string{"1", "2", "3", "4", "5"}}, want: "1,2,3 +2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeTarget(tt.target))
		})
	}
}
