package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/archive"
	"github.com/harvestiq/siteingest/internal/notify"
	"github.com/harvestiq/siteingest/internal/progress"
	"github.com/harvestiq/siteingest/internal/runs"
	"github.com/harvestiq/siteingest/internal/store"
)

// Pipeline defaults, overridable through Config.
const (
	DefaultBatchSize       = 500
	DefaultFileTimeout     = 5 * time.Minute
	DefaultInterBatchPause = 50 * time.Millisecond
)

// errStopped aborts the file loop after a cooperative stop request.
var errStopped = errors.New("run stopped")

// Config tunes a Pipeline.
type Config struct {
	// InboxDir is the directory scanned for source files.
	InboxDir string
	// BatchSize is the reconciled-record flush threshold.
	BatchSize int
	// FileTimeout bounds the wall time spent on a single file.
	FileTimeout time.Duration
	// InterBatchPause throttles consecutive flushes.
	InterBatchPause time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FileTimeout <= 0 {
		c.FileTimeout = DefaultFileTimeout
	}
	if c.InterBatchPause <= 0 {
		c.InterBatchPause = DefaultInterBatchPause
	}
}

// Pipeline drives read, parse, reconcile, batch, and upsert over the
// files of one run. Each started run is owned by a single goroutine;
// observers watch through the runs registry and the progress hub.
type Pipeline struct {
	cfg      Config
	baseCtx  context.Context
	repo     store.RecordRepository
	registry *runs.Registry
	emitter  progress.Emitter
	archiver *archive.Archiver
	notifier notify.Notifier
	parser   *Parser
	upserter *Upserter
	logger   *zap.Logger
	now      func() time.Time
}

// NewPipeline wires a Pipeline. baseCtx outlives individual HTTP
// requests; started runs stop when it is canceled.
func NewPipeline(
	baseCtx context.Context,
	cfg Config,
	repo store.RecordRepository,
	registry *runs.Registry,
	emitter progress.Emitter,
	archiver *archive.Archiver,
	notifier notify.Notifier,
	logger *zap.Logger,
) *Pipeline {
	cfg.applyDefaults()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	now := func() time.Time { return time.Now().UTC() }
	return &Pipeline{
		cfg:      cfg,
		baseCtx:  baseCtx,
		repo:     repo,
		registry: registry,
		emitter:  emitter,
		archiver: archiver,
		notifier: notifier,
		parser:   NewParser(logger, now),
		upserter: NewUpserter(repo, logger),
		logger:   logger,
		now:      now,
	}
}

// StartImport claims the import slot and launches the run. It returns
// runs.ErrAlreadyRunning while a previous import is in flight, and the
// new run's ID otherwise. The returned error is evaluated before any
// file is touched; the run itself proceeds asynchronously.
func (p *Pipeline) StartImport() (string, error) {
	files, err := p.listFiles(runs.KindImport)
	if err != nil {
		return "", err
	}
	h, err := p.registry.StartImport()
	if err != nil {
		return "", err
	}
	go p.run(h, files)
	return h.ID(), nil
}

// StartMaintenance launches a blacklist or phone run over the inbox
// files carrying the kind's name prefix and returns its run ID.
func (p *Pipeline) StartMaintenance(kind runs.Kind) (string, error) {
	if kind != runs.KindBlacklist && kind != runs.KindPhone {
		return "", fmt.Errorf("unsupported maintenance kind %q", kind)
	}
	files, err := p.listFiles(kind)
	if err != nil {
		return "", err
	}
	h := p.registry.StartKeyed(kind)
	go p.run(h, files)
	return h.ID(), nil
}

// listFiles returns the run's source files in directory-listing order.
// Import runs take every .csv not claimed by a maintenance prefix;
// maintenance runs take only files named <kind>*.csv.
func (p *Pipeline) listFiles(kind runs.Kind) ([]string, error) {
	entries, err := os.ReadDir(p.cfg.InboxDir)
	if err != nil {
		return nil, ioErrorf("list inbox %s: %w", p.cfg.InboxDir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), ".csv") {
			continue
		}
		if !fileMatchesKind(name, kind) {
			continue
		}
		files = append(files, filepath.Join(p.cfg.InboxDir, name))
	}
	sort.Strings(files)
	return files, nil
}

func fileMatchesKind(name string, kind runs.Kind) bool {
	lower := strings.ToLower(name)
	maintenance := strings.HasPrefix(lower, string(runs.KindBlacklist)) ||
		strings.HasPrefix(lower, string(runs.KindPhone))
	if kind == runs.KindImport {
		return !maintenance
	}
	return strings.HasPrefix(lower, string(kind))
}

// run is the per-run event loop. It owns the handle until completion.
func (p *Pipeline) run(h *runs.Handle, files []string) {
	started := p.now()
	h.SetTotalFiles(int64(len(files)))
	p.emit(h, progress.StageRunStart, "", progress.Event{})

	var runErr error
	for _, path := range files {
		if h.Stopped() || p.baseCtx.Err() != nil {
			runErr = errStopped
			break
		}
		h.StartFile(filepath.Base(path))
		err := p.processFile(h, path)
		switch {
		case err == nil:
			h.FileDone()
			p.emit(h, progress.StageFileDone, filepath.Base(path), progress.Event{})
			p.archiveFile(h, path)
		case errors.Is(err, errStopped):
			runErr = errStopped
		case KindOf(err) == KindTimeout:
			// Per-file timeout stops the whole run, like an explicit
			// stop scoped to this run ID.
			h.AppendError(fmt.Sprintf("%s: processing timed out after %s",
				filepath.Base(path), p.cfg.FileTimeout))
			runErr = errStopped
		default:
			// Fatal file error: an import run ends with the error,
			// maintenance runs skip to the next file.
			h.AppendError(fmt.Sprintf("%s: %v", filepath.Base(path), err))
			if h.Kind() == runs.KindImport {
				runErr = err
			}
		}
		if runErr != nil {
			break
		}
	}

	p.finish(h, started, runErr)
}

// finish marks the run terminal, emits the closing event, and fires the
// completion notification.
func (p *Pipeline) finish(h *runs.Handle, started time.Time, runErr error) {
	var (
		stage  progress.Stage
		status string
		note   string
	)
	switch {
	case runErr == nil:
		stage, status = progress.StageRunDone, string(store.RunSuccess)
		h.Complete("")
	case errors.Is(runErr, errStopped):
		stage, status = progress.StageRunStopped, string(store.RunStopped)
		h.Complete("stopped by user")
		note = "stopped by user"
	default:
		stage, status = progress.StageRunError, string(store.RunError)
		h.Complete(runErr.Error())
		note = runErr.Error()
	}

	dur := p.now().Sub(started)
	p.emit(h, stage, "", progress.Event{Dur: dur, Note: note})

	snap := h.Snapshot()
	msg := notify.CompletionMessage{
		RunID:            snap.RunID,
		Kind:             string(snap.Kind),
		Status:           status,
		StartedAt:        snap.StartedAt,
		FinishedAt:       snap.CompletedAt,
		TotalFiles:       snap.TotalFiles,
		ProcessedRecords: snap.ProcessedRecords,
		CreatedCount:     snap.CreatedCount,
		UpdatedCount:     snap.UpdatedCount,
		SkippedRecords:   snap.SkippedRecords,
		ErrorCount:       int64(len(snap.Errors)),
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(p.baseCtx), 30*time.Second)
	defer cancel()
	if err := p.notifier.RunCompleted(notifyCtx, msg); err != nil {
		p.logger.Warn("completion notification failed",
			zap.String("run_id", snap.RunID), zap.Error(err))
	}
	p.logger.Info("run finished",
		zap.String("run_id", snap.RunID),
		zap.String("kind", string(snap.Kind)),
		zap.String("status", status),
		zap.Int64("processed", snap.ProcessedRecords),
		zap.Duration("duration", dur),
	)
}

// processFile streams one file through parse, reconcile, and flush. It
// returns nil on clean end-of-stream, errStopped after a stop request,
// a KindTimeout error when the per-file ceiling passes, and a KindIO
// error for unrecoverable stream failures.
func (p *Pipeline) processFile(h *runs.Handle, path string) error {
	ctx, cancel := context.WithTimeout(p.baseCtx, p.cfg.FileTimeout)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return ioErrorf("open %s: %w", path, err)
	}
	defer f.Close()

	hasHeader := h.Kind() == runs.KindImport
	reader, err := NewRowReader(f, hasHeader)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	batch := NewBatch(p.logger, p.cfg.BatchSize)
	rowsInBatch := int64(0)
	skippedInBatch := int64(0)

	for {
		if err := ctx.Err(); err != nil {
			return newError(KindTimeout, err)
		}

		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Row-level stream damage: skip and continue.
			skippedInBatch++
			h.AppendError(fmt.Sprintf("%s %v", name, err))
			continue
		}

		rec, err := p.parser.ParseRow(row, name)
		if err != nil {
			skippedInBatch++
			if KindOf(err) == KindParse {
				h.AppendError(err.Error())
			}
			continue
		}
		batch.Add(rec)
		rowsInBatch++

		if batch.Len() >= p.cfg.BatchSize {
			if err := p.flushBatch(ctx, h, name, batch, rowsInBatch, skippedInBatch); err != nil {
				return err
			}
			rowsInBatch = 0
			skippedInBatch = 0
			if h.Stopped() {
				return errStopped
			}
			if p.cfg.InterBatchPause > 0 {
				select {
				case <-ctx.Done():
					return newError(KindTimeout, ctx.Err())
				case <-time.After(p.cfg.InterBatchPause):
				}
			}
		}
	}

	return p.flushBatch(ctx, h, name, batch, rowsInBatch, skippedInBatch)
}

// flushBatch drains the batch through the upserter and applies the
// resulting counter deltas, including rows skipped since the previous
// flush.
func (p *Pipeline) flushBatch(ctx context.Context, h *runs.Handle, file string, batch *Batch, rows, skipped int64) error {
	if batch.Len() == 0 && skipped == 0 {
		return nil
	}

	var res FlushResult
	if batch.Len() > 0 {
		var err error
		res, err = p.upserter.Flush(ctx, batch.Drain())
		if err != nil {
			return err
		}
		for _, failure := range res.Failed {
			h.AppendError(failure)
		}
	}

	h.AddBatch(rows, res.Created, res.Updated, skipped)
	p.emit(h, progress.StageBatchFlush, file, progress.Event{
		DeltaRecords: rows,
		DeltaCreated: res.Created,
		DeltaUpdated: res.Updated,
		DeltaSkipped: skipped,
	})
	return nil
}

// emit publishes a hub event carrying the run's cumulative totals.
// Delta fields and Dur/Note ride in on the partially filled template.
func (p *Pipeline) emit(h *runs.Handle, stage progress.Stage, file string, tmpl progress.Event) {
	if p.emitter == nil {
		return
	}
	id, err := uuid.Parse(h.ID())
	if err != nil {
		return
	}
	snap := h.Snapshot()
	tmpl.RunID = progress.UUIDToBytes(id)
	tmpl.Kind = progress.Kind(snap.Kind)
	tmpl.TS = p.now()
	tmpl.Stage = stage
	tmpl.File = file
	tmpl.Totals = progress.Totals{
		Files:     snap.TotalFiles,
		FilesDone: snap.CompletedFiles,
		Records:   snap.ProcessedRecords,
		Created:   snap.CreatedCount,
		Updated:   snap.UpdatedCount,
		Skipped:   snap.SkippedRecords,
		Errors:    int64(len(snap.Errors)),
	}
	p.emitter.Emit(tmpl)
}

// archiveFile moves a fully processed file to its dated folder. Archive
// failures are recorded on the run but never fail it; the data is
// already persisted.
func (p *Pipeline) archiveFile(h *runs.Handle, path string) {
	if p.archiver == nil {
		return
	}
	folderPrefix := archive.PrefixCompleted
	namePrefix := ""
	if h.Kind() != runs.KindImport {
		folderPrefix = archive.PrefixArchive
		namePrefix = string(h.Kind())
		if strings.HasPrefix(strings.ToLower(filepath.Base(path)), namePrefix) {
			// Source name already carries the kind.
			namePrefix = ""
		}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.baseCtx), 30*time.Second)
	defer cancel()
	if _, err := p.archiver.Move(ctx, path, folderPrefix, namePrefix); err != nil {
		p.logger.Error("archive move failed", zap.String("file", path), zap.Error(err))
		h.AppendError(fmt.Sprintf("archive %s: %v", filepath.Base(path), err))
	}
}
