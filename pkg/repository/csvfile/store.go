package csvfile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/bulkdm/pkg/domain/interfaces"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
)

// DefaultFileName is the roster file name inside the app root
const DefaultFileName = "slack_users.csv"

// Store keeps the roster in a single CSV file
type Store struct {
	path string
}

var _ interfaces.RosterStore = (*Store)(nil)

// New creates a store for the CSV file at path
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the CSV file location
func (s *Store) Path() string {
	return s.path
}

// ModTime returns the file modification time, or false when the file is absent
func (s *Store) ModTime(ctx context.Context) (time.Time, bool, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, goerr.Wrap(err, "failed to stat roster file", goerr.V("path", s.path))
	}
	return info.ModTime(), true, nil
}

// LoadEntries decodes the roster file. A missing file is an empty roster.
func (s *Store) LoadEntries(ctx context.Context) ([]model.RosterEntry, error) {
	text, ok, err := s.read()
	if err != nil || !ok {
		return nil, err
	}
	return DecodeRoster(text), nil
}

// LoadAnnotations decodes the annotation column. A missing file yields an
// empty map. Read errors other than absence are returned, since overwriting
// the file after a failed read would drop every annotation.
func (s *Store) LoadAnnotations(ctx context.Context) (map[model.SlackUserID]string, error) {
	text, ok, err := s.read()
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[model.SlackUserID]string{}, nil
	}
	return DecodeAnnotations(text), nil
}

// Save replaces the roster file in a single atomic write
func (s *Store) Save(ctx context.Context, entries []model.RosterEntry) error {
	if err := writeFileAtomic(s.path, []byte(EncodeRoster(entries)), 0o644); err != nil {
		return goerr.Wrap(err, "failed to write roster file", goerr.V("path", s.path), goerr.V("count", len(entries)))
	}
	return nil
}

func (s *Store) read() (string, bool, error) {
	// #nosec G304 - path is configured by the operator
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, goerr.Wrap(err, "failed to read roster file", goerr.V("path", s.path))
	}
	return string(raw), true, nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path, so readers see either the old or the new roster.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
