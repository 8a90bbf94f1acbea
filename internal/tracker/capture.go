package tracker

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/tracker/errors"
	"github.com/grovetools/tracker/git"
	"github.com/grovetools/tracker/internal/store"
	"github.com/grovetools/tracker/internal/upload"
)

// captureLoop takes one screenshot immediately and then one per interval.
func (e *Engine) captureLoop(ctx context.Context, s *session) {
	defer s.loops.Done()
	ticker := e.deps.NewTicker(s.interval)
	defer ticker.Stop()

	e.captureTick(ctx, s)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			e.captureTick(ctx, s)
		}
	}
}

// captureTick never returns an error: every failure is logged and the
// loop moves on to the next tick.
func (e *Engine) captureTick(ctx context.Context, s *session) {
	if !s.running.Load() {
		return
	}
	logger := e.logger.WithField("task_id", s.taskID)

	data, err := e.deps.Capture.Capture(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.WithError(err).Warn("Screenshot capture failed")
		}
		return
	}

	now := e.deps.Now()
	id := s.nextID(now)
	filePath, err := e.deps.Store.WriteFile(store.ScreenshotPath(id), data)
	if err != nil {
		logger.WithError(err).Warn("Failed to write screenshot")
		return
	}

	rec := ScreenshotRecord{
		ID:        id,
		Timestamp: now,
		FilePath:  filePath,
		TaskID:    s.taskID,
	}
	if s.repoPath != "" {
		e.attachDiff(ctx, s, &rec)
	}

	if !s.appendScreenshot(&rec) {
		logger.WithField("screenshot", id).Debug("Session stopped during capture; frame dropped")
		return
	}
	e.writeMetadata(rec)

	if e.deps.Uploader != nil && s.corr.Complete() {
		e.tasks.Go("screenshot upload", logrus.Fields{"task_id": s.taskID, "screenshot": id}, func() error {
			return e.uploadScreenshot(s, rec)
		})
	}

	if s.opts.ShutterSound && e.deps.Shutter != nil {
		e.tasks.Go("shutter", logrus.Fields{"task_id": s.taskID}, func() error {
			e.deps.Shutter.Play(ctx)
			return nil
		})
	}
	logger.WithField("screenshot", id).Debug("Screenshot captured")
}

// attachDiff diffs the working tree against the previous capture's snapshot
// and records the result on rec. Git failures become rec.DiffError.
func (e *Engine) attachDiff(ctx context.Context, s *session, rec *ScreenshotRecord) {
	base := s.baseline()
	head, err := e.deps.Git.SnapshotRef(ctx, s.repoPath)
	switch {
	case base == "":
		rec.DiffContent = git.NoBaselineMarker
		if err != nil {
			rec.DiffError = err.Error()
		}
	case err != nil:
		rec.DiffError = err.Error()
	default:
		diff, derr := e.deps.Git.Diff(ctx, s.repoPath, base, head)
		if derr != nil {
			rec.DiffError = derr.Error()
		} else {
			e.shapeInto(rec, diff, s.opts)
		}
	}
	if err == nil {
		s.setBaseline(head)
	}

	state := e.deps.Git.GetState(ctx, s.repoPath)
	rec.GitState = &state
}

func (e *Engine) shapeInto(rec *ScreenshotRecord, diff string, opts Options) {
	filtered, err := git.FilterDiff(diff, opts.Exclude)
	if err != nil {
		e.logger.WithError(err).Warn("Invalid diff exclude patterns; keeping the full diff")
		filtered = diff
	}
	if strings.TrimSpace(filtered) == "" {
		return
	}
	shaped := git.ShapeDiff(filtered, opts.MaxDiffBytes, opts.MaxPreviewChars)
	diffPath, err := e.deps.Store.WriteFile(store.DiffPath(rec.ID), []byte(shaped.File))
	if err != nil {
		rec.DiffError = err.Error()
		return
	}
	rec.DiffPath = diffPath
	rec.DiffContent = shaped.Preview
	rec.DiffTruncated = shaped.Truncated
}

func (e *Engine) writeMetadata(rec ScreenshotRecord) {
	if _, err := e.deps.Store.WriteJSON(store.MetadataPath(rec.ID), rec); err != nil {
		e.logger.WithField("screenshot", rec.ID).WithError(err).Warn("Failed to persist screenshot metadata")
	}
}

// logicalKey is the destination of an artifact in the remote store.
func logicalKey(corr upload.Correlation, kind, file string) string {
	return path.Join(corr.TenantID, corr.ProjectID, corr.SessionID, kind, file)
}

func (e *Engine) uploadScreenshot(s *session, rec ScreenshotRecord) error {
	key := logicalKey(s.corr, "screenshots", filepath.Base(rec.FilePath))
	res, err := e.deps.Uploader.Upload(context.Background(), rec.FilePath, key, upload.ContentTypePNG, s.corr)
	if err != nil {
		return err
	}
	if updated, ok := s.setRemoteKey(rec.ID, res.RemoteKey); ok {
		e.writeMetadata(updated)
	}
	e.logger.WithFields(logrus.Fields{
		"screenshot": rec.ID,
		"remote_key": res.RemoteKey,
		"bytes":      res.Bytes,
	}).Debug("Screenshot uploaded")
	return nil
}

// finalDiff captures what changed since the last screenshot and uploads it.
func (e *Engine) finalDiff(s *session, end time.Time) error {
	ctx := context.Background()
	base := s.baseline()
	if base == "" {
		return nil
	}
	head, err := e.deps.Git.SnapshotRef(ctx, s.repoPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCommandFailed, "snapshot working tree for final diff")
	}
	diff, err := e.deps.Git.Diff(ctx, s.repoPath, base, head)
	if err != nil {
		return err
	}
	filtered, err := git.FilterDiff(diff, s.opts.Exclude)
	if err != nil {
		filtered = diff
	}
	if strings.TrimSpace(filtered) == "" {
		e.logger.WithField("task_id", s.taskID).Debug("No changes since last capture; final diff skipped")
		return nil
	}

	shaped := git.ShapeDiff(filtered, s.opts.MaxDiffBytes, s.opts.MaxPreviewChars)
	rel := store.FinalDiffPath(s.taskID, end)
	local, err := e.deps.Store.WriteFile(rel, []byte(shaped.File))
	if err != nil {
		return err
	}
	key := logicalKey(s.corr, "diffs", filepath.Base(rel))
	if _, err := e.deps.Uploader.Upload(ctx, local, key, upload.ContentTypeDiff, s.corr); err != nil {
		return err
	}
	e.logger.WithFields(logrus.Fields{"task_id": s.taskID, "key": key}).Info("Final diff uploaded")
	return nil
}
