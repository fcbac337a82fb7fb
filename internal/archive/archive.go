// Package archive moves fully processed source files out of the inbox
// into dated folders, optionally mirroring a copy to a cloud bucket.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Folder prefixes for processed files. Import files land in
// completed-YYYY-MM-DD, maintenance feeds in archive-YYYY-MM-DD.
const (
	PrefixCompleted = "completed"
	PrefixArchive   = "archive"
)

// Mirror uploads a copy of an archived file to remote storage.
type Mirror interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Archiver relocates processed files into dated sibling folders.
type Archiver struct {
	logger *zap.Logger
	mirror Mirror
	now    func() time.Time
}

// Option customizes an Archiver.
type Option func(*Archiver)

// WithMirror enables remote mirroring of archived files.
func WithMirror(m Mirror) Option {
	return func(a *Archiver) { a.mirror = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// New constructs an Archiver.
func New(logger *zap.Logger, opts ...Option) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Archiver{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Move relocates path into a "<folderPrefix>-YYYY-MM-DD" folder next to
// it and returns the destination path. The date is the archive date, not
// the file's. A non-empty namePrefix is prepended to the destination
// file name so maintenance feeds carry their run kind. When a mirror is
// configured the file is uploaded first; a mirror failure logs a warning
// but never blocks the local move.
func (a *Archiver) Move(ctx context.Context, path, folderPrefix, namePrefix string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("source %s is a directory", path)
	}

	folder := fmt.Sprintf("%s-%s", folderPrefix, a.now().Format("2006-01-02"))
	destDir := filepath.Join(filepath.Dir(path), folder)
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("create archive folder: %w", err)
	}
	name := filepath.Base(path)
	if namePrefix != "" {
		name = namePrefix + "-" + name
	}
	dest := filepath.Join(destDir, name)

	if a.mirror != nil {
		a.mirrorFile(ctx, path, filepath.ToSlash(filepath.Join(folder, name)))
	}

	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", path, dest, err)
	}
	a.logger.Info("archived processed file",
		zap.String("file", filepath.Base(path)),
		zap.String("dest", dest),
	)
	return dest, nil
}

func (a *Archiver) mirrorFile(ctx context.Context, path, object string) {
	f, err := os.Open(path)
	if err != nil {
		a.logger.Warn("mirror skipped, cannot open file",
			zap.String("file", path), zap.Error(err))
		return
	}
	defer f.Close()

	uri, err := a.mirror.PutObject(ctx, object, "text/csv", f)
	if err != nil {
		a.logger.Warn("mirror upload failed",
			zap.String("file", path), zap.Error(err))
		return
	}
	a.logger.Debug("mirrored archived file", zap.String("uri", uri))
}
