package connectivity

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"aaronromeo.com/inboxsweep/internal/announcer"
	"aaronromeo.com/inboxsweep/internal/queue"
	"aaronromeo.com/inboxsweep/internal/scheduler"
	"aaronromeo.com/inboxsweep/internal/store"
	"aaronromeo.com/inboxsweep/pkg/base"
	"aaronromeo.com/inboxsweep/pkg/mock"
	"aaronromeo.com/inboxsweep/pkg/models/action"
	"aaronromeo.com/inboxsweep/pkg/testutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
	assert.Eventually(t, w.running.Load, time.Second, time.Millisecond)
}

func TestParseTransition(t *testing.T) {
	tests := []struct {
		in      string
		want    Transition
		wantErr bool
	}{
		{in: "online", want: Online},
		{in: " Offline ", want: Offline},
		{in: "VISIBLE", want: Visible},
		{in: "asleep", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTransition(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, base.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWatcherFiresOnRestore(t *testing.T) {
	w := NewWatcher(false, WithLogger(mock.SetupLogger(t)))
	var fired atomic.Int32
	w.OnConnectivityRestored(func(context.Context) { fired.Add(1) })
	runWatcher(t, w)
	ctx := context.Background()

	w.Report(ctx, Visible)
	w.Report(ctx, Offline)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, fired.Load(), "nothing fires while offline")

	w.Report(ctx, Online)
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, w.Online())

	w.Report(ctx, Visible)
	assert.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, time.Millisecond)

	w.Report(ctx, Online)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(2), fired.Load(), "online while online is not a restore")

	w.MarkOffline(ctx)
	assert.False(t, w.Online())
	assert.Equal(t, 2, w.Status().Restores)
}

func TestWatcherRunsOnce(t *testing.T) {
	w := NewWatcher(true, WithLogger(mock.SetupLogger(t)))
	runWatcher(t, w)

	assert.ErrorIs(t, w.Run(context.Background()), ErrAlreadyRunning)
}

func TestWatcherCoalescesRestores(t *testing.T) {
	w := NewWatcher(true, WithLogger(mock.SetupLogger(t)))
	release := make(chan struct{})
	var fired atomic.Int32
	w.OnConnectivityRestored(func(context.Context) {
		fired.Add(1)
		<-release
	})
	runWatcher(t, w)
	ctx := context.Background()

	w.Report(ctx, Visible)
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 5; i++ {
		w.Report(ctx, Visible)
	}
	close(release)

	assert.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(2), fired.Load())
}

func TestOfflineRoundTrip(t *testing.T) {
	logger := mock.SetupLogger(t)
	ctx := context.Background()
	provider := testutil.NewFakeProvider()
	sched := scheduler.New(scheduler.Config{BaseDelay: time.Millisecond, BackoffMultiplier: 2}, scheduler.WithLogger(logger))
	q := queue.New(store.NewMemory(), sched, provider, queue.DefaultConfig(), queue.WithLogger(logger))
	require.NoError(t, q.Init(ctx))

	events := &announcer.Recorder{}
	w := NewWatcher(false, WithLogger(logger))
	SyncOnRestore(w, q, events, logger)
	runWatcher(t, w)

	for _, id := range []string{"m1", "m2", "m3"} {
		_, err := q.Enqueue(ctx, action.Intent{Type: action.Trash, Target: action.Target{EmailIDs: []string{id}}})
		require.NoError(t, err)
	}
	assert.Empty(t, provider.Calls())

	w.Report(ctx, Online)

	assert.Eventually(t, func() bool {
		_, ok := events.Last(announcer.SyncComplete)
		return ok
	}, time.Second, time.Millisecond)
	complete, _ := events.Last(announcer.SyncComplete)
	assert.Equal(t, 3, complete.Synced)
	assert.Zero(t, complete.Failed)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"Trash(m1)", "Trash(m2)", "Trash(m3)"}, provider.Calls())
}

func TestSyncOnRestoreStaysQuietWhenNothingSynced(t *testing.T) {
	logger := mock.SetupLogger(t)
	sched := scheduler.New(scheduler.DefaultConfig(), scheduler.WithLogger(logger))
	q := queue.New(store.NewMemory(), sched, testutil.NewFakeProvider(), queue.DefaultConfig(), queue.WithLogger(logger))
	require.NoError(t, q.Init(context.Background()))

	events := &announcer.Recorder{}
	w := NewWatcher(true, WithLogger(logger))
	SyncOnRestore(w, q, events, logger)
	runWatcher(t, w)

	var done atomic.Bool
	w.OnConnectivityRestored(func(context.Context) { done.Store(true) })
	w.Report(context.Background(), Visible)

	assert.Eventually(t, done.Load, time.Second, time.Millisecond)
	_, ok := events.Last(announcer.SyncComplete)
	assert.False(t, ok)
}

type failingAnnouncer struct{}

func (failingAnnouncer) Do(context.Context, announcer.Event) error {
	return errors.New("broker closed")
}

func TestSyncOnRestoreLogsAnnouncerFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := context.Background()
	sched := scheduler.New(scheduler.Config{BaseDelay: time.Millisecond, BackoffMultiplier: 2}, scheduler.WithLogger(logger))
	q := queue.New(store.NewMemory(), sched, testutil.NewFakeProvider(), queue.DefaultConfig(), queue.WithLogger(logger))
	require.NoError(t, q.Init(ctx))
	_, err := q.Enqueue(ctx, action.Intent{Type: action.Trash, Target: action.Target{EmailIDs: []string{"m1"}}})
	require.NoError(t, err)

	w := NewWatcher(false, WithLogger(logger))
	SyncOnRestore(w, q, failingAnnouncer{}, logger)
	var done atomic.Bool
	w.OnConnectivityRestored(func(context.Context) { done.Store(true) })
	runWatcher(t, w)

	w.Report(ctx, Online)

	assert.Eventually(t, done.Load, time.Second, time.Millisecond)
	assert.Contains(t, buf.String(), "announcing sync failed")
	assert.Contains(t, buf.String(), "sync complete: broker closed")
	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
