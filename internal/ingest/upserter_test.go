package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/domain"
	"github.com/harvestiq/siteingest/internal/store"
)

// scriptedRepo lets each test dictate bulk and per-item behavior.
type scriptedRepo struct {
	bulkErr    error
	bulkResult store.BulkResult
	oneErrs    map[string]error
	oneCalls   []string
}

func (r *scriptedRepo) BulkUpsert(_ context.Context, records []domain.Record) (store.BulkResult, error) {
	if r.bulkErr != nil {
		return store.BulkResult{}, r.bulkErr
	}
	return r.bulkResult, nil
}

func (r *scriptedRepo) UpsertOne(_ context.Context, rec domain.Record) (store.UpsertOutcome, error) {
	r.oneCalls = append(r.oneCalls, rec.URL)
	if err := r.oneErrs[rec.URL]; err != nil {
		return "", err
	}
	if len(r.oneCalls)%2 == 1 {
		return store.OutcomeCreated, nil
	}
	return store.OutcomeUpdated, nil
}

func (r *scriptedRepo) GetRecord(context.Context, string) (domain.Record, error) {
	return domain.Record{}, store.ErrNotFound
}

func TestFlushBulkHappyPath(t *testing.T) {
	t.Parallel()

	repo := &scriptedRepo{bulkResult: store.BulkResult{Created: 2, Updated: 1}}
	u := NewUpserter(repo, zap.NewNop())

	res, err := u.Flush(context.Background(), []domain.Record{{URL: "a.com"}, {URL: "b.com"}, {URL: "c.com"}})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Created)
	require.Equal(t, int64(1), res.Updated)
	require.Empty(t, res.Failed)
	require.Empty(t, repo.oneCalls)
}

func TestFlushDuplicateKeyFallsBackPerRecord(t *testing.T) {
	t.Parallel()

	repo := &scriptedRepo{
		bulkErr: fmt.Errorf("bulk: %w", store.ErrDuplicateKey),
		oneErrs: map[string]error{"b.com": errors.New("still conflicting")},
	}
	u := NewUpserter(repo, zap.NewNop())

	res, err := u.Flush(context.Background(), []domain.Record{{URL: "a.com"}, {URL: "b.com"}, {URL: "c.com"}})
	require.NoError(t, err)
	require.Equal(t, []string{"a.com", "b.com", "c.com"}, repo.oneCalls)
	// One failure never blocks its batchmates.
	require.Equal(t, int64(2), res.Created+res.Updated)
	require.Len(t, res.Failed, 1)
	require.Contains(t, res.Failed[0], "b.com")
}

func TestFlushNonDuplicateBulkErrorAborts(t *testing.T) {
	t.Parallel()

	repo := &scriptedRepo{bulkErr: errors.New("connection refused")}
	u := NewUpserter(repo, zap.NewNop())

	_, err := u.Flush(context.Background(), []domain.Record{{URL: "a.com"}})
	require.Error(t, err)
	require.Equal(t, KindIO, KindOf(err))
	require.Empty(t, repo.oneCalls)
}

func TestFlushEmptyBatchIsNoop(t *testing.T) {
	t.Parallel()

	u := NewUpserter(&scriptedRepo{bulkErr: errors.New("should not be called")}, zap.NewNop())
	res, err := u.Flush(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, res)
}

func TestFlushFallbackHonorsCancellation(t *testing.T) {
	t.Parallel()

	repo := &scriptedRepo{bulkErr: fmt.Errorf("bulk: %w", store.ErrDuplicateKey)}
	u := NewUpserter(repo, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := u.Flush(ctx, []domain.Record{{URL: "a.com"}})
	require.Error(t, err)
	require.Equal(t, KindTimeout, KindOf(err))
	require.Empty(t, repo.oneCalls)
}
