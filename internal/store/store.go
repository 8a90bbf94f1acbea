// Package store is the durable local persistence for captured artifacts:
// screenshots, diffs, per-screenshot metadata and session logs.
//
// Every file name carries the task id and a timestamp, so concurrent sessions
// never target the same path and no locking is needed. Writes go through a
// temp file in the destination directory followed by a rename, so a crash
// never leaves a half-written JSON document behind.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/grovetools/tracker/errors"
)

// Subdirectories of the store root.
const (
	ScreenshotsDir = "screenshots"
	MetadataDir    = "metadata"
	DiffsDir       = "diffs"
	LogsDir        = "logs"
)

// Store is what the session engine needs from local persistence.
type Store interface {
	// Root is the absolute store directory.
	Root() string
	// MkdirAll creates rel (relative to Root) and its parents.
	MkdirAll(rel string) error
	// WriteFile atomically writes data to rel and returns the absolute path.
	WriteFile(rel string, data []byte) (string, error)
	// WriteJSON atomically writes v as indented JSON and returns the absolute path.
	WriteJSON(rel string, v interface{}) (string, error)
}

// LocalStore is a Store on the local filesystem.
type LocalStore struct {
	root string
}

var _ Store = (*LocalStore)(nil)

// New opens a LocalStore rooted at root, creating its subdirectories.
func New(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid store root").
			WithDetail("root", root)
	}
	s := &LocalStore{root: abs}
	for _, dir := range []string{ScreenshotsDir, MetadataDir, DiffsDir, LogsDir} {
		if err := s.MkdirAll(dir); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Root returns the absolute store directory.
func (s *LocalStore) Root() string { return s.root }

// MkdirAll creates rel and any missing parents.
func (s *LocalStore) MkdirAll(rel string) error {
	dir, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create directory").
			WithDetail("path", dir)
	}
	return nil
}

// WriteFile writes data to rel via temp file + rename.
func (s *LocalStore) WriteFile(rel string, data []byte) (path string, err error) {
	path, err = s.resolve(rel)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to create directory").
			WithDetail("path", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to create temp file").
			WithDetail("path", path)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to write file").
			WithDetail("path", path)
	}
	if err = tmp.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to write file").
			WithDetail("path", path)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to move file into place").
			WithDetail("path", path)
	}
	return path, nil
}

// WriteJSON marshals v with indentation and writes it like WriteFile.
func (s *LocalStore) WriteJSON(rel string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to encode JSON").
			WithDetail("path", rel)
	}
	return s.WriteFile(rel, append(data, '\n'))
}

// resolve joins rel onto the root and refuses anything that escapes it.
func (s *LocalStore) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", errors.New(errors.ErrCodeInvalidInput, "store paths must be relative").
			WithDetail("path", rel)
	}
	path := filepath.Join(s.root, rel)
	if path != s.root && !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodeInvalidInput, "store path escapes root").
			WithDetail("path", rel)
	}
	return path, nil
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName checks that a task id can be embedded in file names.
func ValidateName(name string) error {
	if !validName.MatchString(name) || strings.Contains(name, "..") {
		return errors.New(errors.ErrCodeInvalidInput,
			"task id must be 1-128 letters, digits, '.', '_' or '-' and start with a letter or digit").
			WithDetail("taskId", name)
	}
	return nil
}

// SafeTimestamp renders t in UTC with characters that are legal in file
// names on every platform, e.g. 2024-03-01T09-15-00-123Z.
func SafeTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15-04-05-000Z")
}

// ScreenshotPath is the relative path of a capture. Screenshot ids are
// {taskId}-{unixMillis}-{seq}, so two captures in the same millisecond
// still get distinct files.
func ScreenshotPath(screenshotID string) string {
	return filepath.Join(ScreenshotsDir, "screenshot-"+screenshotID+".png")
}

// MetadataPath is the relative path of a screenshot record.
func MetadataPath(screenshotID string) string {
	return filepath.Join(MetadataDir, screenshotID+".json")
}

// DiffPath is the relative path of the diff captured with a screenshot.
func DiffPath(screenshotID string) string {
	return filepath.Join(DiffsDir, "diff-"+screenshotID+".patch")
}

// FinalDiffPath is the relative path of the diff regenerated at stop.
func FinalDiffPath(taskID string, ts time.Time) string {
	return filepath.Join(DiffsDir, fmt.Sprintf("diff-%s-final-%d.patch", taskID, ts.UnixMilli()))
}

// SummaryPath is the relative path of a completed session summary.
func SummaryPath(taskID string, start time.Time) string {
	return filepath.Join(LogsDir, fmt.Sprintf("session-%s-%s.json", taskID, SafeTimestamp(start)))
}

// RollupPath is the relative path of a session's rollup log.
func RollupPath(taskID string, start time.Time) string {
	return filepath.Join(LogsDir, fmt.Sprintf("rollups-%s-%s.json", taskID, SafeTimestamp(start)))
}
