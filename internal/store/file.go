package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formsurge/internal/formschema"
)

// FileStore keeps one JSON document per form in a directory.
type FileStore struct {
	dir string
	log *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the directory if needed. A leading ~ is expanded.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand cache dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &FileStore{dir: expanded, log: logger.Named("store")}, nil
}

// Path returns the cache file used for formURL.
func (s *FileStore) Path(formURL string) string {
	return filepath.Join(s.dir, "google_form_"+KeyForURL(formURL)+".json")
}

// Load reads the cached schema. Unreadable or invalid files count as a miss.
func (s *FileStore) Load(_ context.Context, formURL string) (*formschema.Schema, error) {
	path := s.Path(formURL)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	schema, err := decodeSchema(data)
	if err != nil {
		s.log.Warn("Ignoring unusable cached schema.", zap.String("path", path), zap.Error(err))
		return nil, ErrNotFound
	}
	if schema.FormURL == "" {
		schema.FormURL = formURL
	}
	s.log.Debug("Loaded cached schema.", zap.String("path", path), zap.Int("questions", len(schema.Questions)))
	return schema, nil
}

// Save writes the schema atomically (temp file, then rename).
func (s *FileStore) Save(_ context.Context, schema *formschema.Schema) error {
	if schema == nil {
		return errors.New("cannot save a nil schema")
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	path := s.Path(schema.FormURL)
	tmp, err := os.CreateTemp(s.dir, ".google_form_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write schema: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move schema into place: %w", err)
	}

	s.log.Info("Schema cached.", zap.String("path", path))
	return nil
}
