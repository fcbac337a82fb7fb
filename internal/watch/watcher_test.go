package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcherTriggersAfterQuietPeriod(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var starts atomic.Int64
	w, err := New(dir, 50*time.Millisecond, func() error {
		starts.Add(1)
		return nil
	}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	// Two quick writes collapse into one trigger.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("url,type,payload,date\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"), []byte("url,type,payload,date\n"), 0o600))

	require.Eventually(t, func() bool {
		return starts.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// No further activity, no further triggers.
	time.Sleep(150 * time.Millisecond)
	require.EqualValues(t, 1, starts.Load())
}

func TestWatcherIgnoresMaintenanceAndNonCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var starts atomic.Int64
	w, err := New(dir, 30*time.Millisecond, func() error {
		starts.Add(1)
		return nil
	}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blacklist-feed.csv"), []byte("x\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x\n"), 0o600))

	time.Sleep(150 * time.Millisecond)
	require.Zero(t, starts.Load())
}

func TestWatcherRequiresDirAndCallback(t *testing.T) {
	t.Parallel()

	_, err := New("", time.Second, func() error { return nil }, zap.NewNop())
	require.Error(t, err)

	_, err = New(t.TempDir(), time.Second, nil, zap.NewNop())
	require.Error(t, err)
}
