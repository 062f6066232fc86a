package pipelinecache

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4/v4"
	"github.com/sirupsen/logrus"
)

// Store keeps one device's cache data lz4 compressed in a single file.
type Store struct {
	path   string
	logger logrus.FieldLogger
}

func NewStore(path string, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		path:   path,
		logger: logger.WithFields(logrus.Fields{"component": "pipelinecache", "path": path}),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the stored data when it was written for identity. A missing file yields
// nil. Unreadable or incompatible data is deleted so the next Save starts fresh, and
// also yields nil.
func (s *Store) Load(identity Identity) ([]byte, error) {
	if s.path == "" {
		return nil, nil
	}

	compressed, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Debug("pipeline cache miss")
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading pipeline cache")
	}

	data, err := io.ReadAll(lz4.NewReader(bytes.NewReader(compressed)))
	if err == nil {
		err = Validate(data, identity)
	}
	if err != nil {
		s.logger.WithError(err).WithField("device", identity).Warn("discarding pipeline cache")
		if removeErr := os.Remove(s.path); removeErr != nil && !os.IsNotExist(removeErr) {
			return nil, errors.Wrap(removeErr, "removing stale pipeline cache")
		}
		return nil, nil
	}

	s.logger.WithField("bytes", len(data)).Debug("pipeline cache loaded")
	return data, nil
}

// Save replaces the stored data. The file is written beside the target and renamed into
// place so a crash never leaves a truncated cache.
func (s *Store) Save(data []byte) error {
	if s.path == "" || len(data) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "creating pipeline cache directory")
	}

	file, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return errors.Wrap(err, "creating pipeline cache")
	}
	defer os.Remove(file.Name())
	defer file.Close()

	writer := lz4.NewWriter(file)
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		return errors.Wrap(err, "compressing pipeline cache")
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, "compressing pipeline cache")
	}
	if err := file.Close(); err != nil {
		return errors.Wrap(err, "writing pipeline cache")
	}

	if err := os.Rename(file.Name(), s.path); err != nil {
		return errors.Wrap(err, "replacing pipeline cache")
	}

	s.logger.WithField("bytes", len(data)).Debug("pipeline cache saved")
	return nil
}
