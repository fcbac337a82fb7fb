package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/archive"
	"github.com/harvestiq/siteingest/internal/config"
	"github.com/harvestiq/siteingest/internal/domain"
	"github.com/harvestiq/siteingest/internal/ingest"
	"github.com/harvestiq/siteingest/internal/notify"
	"github.com/harvestiq/siteingest/internal/runs"
	"github.com/harvestiq/siteingest/internal/storage/memory"
	"github.com/harvestiq/siteingest/internal/store"
)

type testEnv struct {
	server  *Server
	dir     string
	records *memory.RecordStore
	history *memory.RunStore
	reg     *runs.Registry
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	dir := t.TempDir()
	records := memory.NewRecordStore()
	history := memory.NewRunStore()
	reg := runs.NewRegistry(zap.NewNop())

	pipeline := ingest.NewPipeline(
		context.Background(),
		ingest.Config{InboxDir: dir},
		records, reg, nil,
		archive.New(zap.NewNop()),
		notify.NewMemory(),
		zap.NewNop(),
	)
	srv := NewServer(pipeline, reg, history, records, nil, cfg, zap.NewNop())
	return &testEnv{server: srv, dir: dir, records: records, history: history, reg: reg}
}

func (e *testEnv) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz").Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/readyz").Code)
	// Metrics handler was not wired in this environment.
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/metrics").Code)
}

func TestStartImportAcceptedAndConflict(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	// A large file keeps the first run busy long enough to collide.
	var body []byte
	body = append(body, []byte("url,type,payload,date\n")...)
	for i := 0; i < 5000; i++ {
		body = append(body, []byte("site"+uuid.NewString()[:8]+".com,[TI],T,2/1/2026\n")...)
	}
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "big.csv"), body, 0o600))

	rec := env.do(http.MethodPost, "/v1/imports/")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	runID := resp["run_id"]
	require.NotEmpty(t, runID)

	second := env.do(http.MethodPost, "/v1/imports/")
	if second.Code == http.StatusAccepted {
		t.Skip("first import finished before the conflict attempt")
	}
	require.Equal(t, http.StatusConflict, second.Code)

	// Let the run drain so the temp dir can be cleaned up.
	require.Eventually(t, func() bool {
		snap, err := env.reg.Snapshot(runID)
		return err == nil && snap.IsComplete
	}, 10*time.Second, 20*time.Millisecond)
}

func TestImportProgressLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/v1/imports/progress").Code)

	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "crawl.csv"),
		[]byte("url,type,payload,date\nexample.com,[TI],Example,2/1/2026\n"), 0o600))

	rec := env.do(http.MethodPost, "/v1/imports/")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		res := env.do(http.MethodGet, "/v1/imports/progress")
		if res.Code != http.StatusOK {
			return false
		}
		var resp struct {
			Progress runs.Snapshot `json:"progress"`
		}
		if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
			return false
		}
		return resp.Progress.IsComplete && resp.Progress.ProcessedRecords == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStopRunNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	require.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/v1/runs/missing/stop").Code)
	require.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/v1/imports/stop").Code)
}

func TestRunHistoryEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	runID := uuid.New()
	started := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, env.history.UpsertRunStart(ctx, runID, "import", started))
	finished := started.Add(time.Minute)
	require.NoError(t, env.history.CompleteRun(ctx, runID, finished, store.RunSuccess, nil))

	rec := env.do(http.MethodGet, "/v1/runs/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), runID.String())

	rec = env.do(http.MethodGet, "/v1/runs/"+runID.String()+"/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"success"`)

	rec = env.do(http.MethodGet, "/v1/runs/"+uuid.NewString()+"/")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/v1/runs/not-a-uuid/")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/v1/runs/?status=bogus")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRecordEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	_, err := env.records.UpsertOne(context.Background(), domainRecord("example.com", "Example"))
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/v1/records/example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"title":"Example"`)

	rec = env.do(http.MethodGet, "/v1/records/missing.com")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func domainRecord(url, title string) domain.Record {
	return domain.Record{URL: url, Date: time.Now().UTC(), Title: title}
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{
		Auth: config.AuthConfig{Enabled: true, APIKey: "sekret"},
	})

	rec := env.do(http.MethodGet, "/healthz")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "sekret")
	res := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
}
