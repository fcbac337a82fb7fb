package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}
}

func TestMoveRelocatesIntoDatedFolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "crawl.csv")
	require.NoError(t, os.WriteFile(src, []byte("url,type,payload,date\n"), 0o600))

	a := New(zap.NewNop(), WithClock(fixedClock()))
	dest, err := a.Move(context.Background(), src, PrefixCompleted, "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "completed-2026-03-14", "crawl.csv"), dest)

	_, err = os.Stat(dest)
	require.NoError(t, err)
	_, err = os.Stat(src)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestMoveAppliesNamePrefix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "feed.csv")
	require.NoError(t, os.WriteFile(src, []byte("x\n"), 0o600))

	a := New(zap.NewNop(), WithClock(fixedClock()))
	dest, err := a.Move(context.Background(), src, PrefixArchive, "phone")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "archive-2026-03-14", "phone-feed.csv"), dest)
}

func TestMoveMissingSourceFails(t *testing.T) {
	t.Parallel()

	a := New(zap.NewNop())
	_, err := a.Move(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), PrefixCompleted, "")
	require.Error(t, err)
}

type stubMirror struct {
	objects []string
	err     error
}

func (m *stubMirror) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	m.objects = append(m.objects, path)
	return "gs://bucket/" + path, nil
}

func TestMoveMirrorsBeforeRename(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "crawl.csv")
	require.NoError(t, os.WriteFile(src, []byte("data\n"), 0o600))

	mirror := &stubMirror{}
	a := New(zap.NewNop(), WithClock(fixedClock()), WithMirror(mirror))
	_, err := a.Move(context.Background(), src, PrefixCompleted, "")
	require.NoError(t, err)
	require.Equal(t, []string{"completed-2026-03-14/crawl.csv"}, mirror.objects)
}

func TestMoveSurvivesMirrorFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "crawl.csv")
	require.NoError(t, os.WriteFile(src, []byte("data\n"), 0o600))

	a := New(zap.NewNop(), WithClock(fixedClock()), WithMirror(&stubMirror{err: errors.New("bucket gone")}))
	dest, err := a.Move(context.Background(), src, PrefixCompleted, "")
	require.NoError(t, err)
	_, err = os.Stat(dest)
	require.NoError(t, err)
}
