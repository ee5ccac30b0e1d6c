package credentials

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/devpool/chatsync/internal/logging"
)

// Store reads the bearer token used to authenticate against the chat hub and
// the REST API. A missing token is a valid state, not an error.
type Store struct {
	fs     afero.Fs
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	override string
}

// NewStore creates a Store that reads the token from path on fs.
func NewStore(fs afero.Fs, path string) *Store {
	return &Store{
		fs:     fs,
		path:   path,
		logger: logging.Component("credentials"),
	}
}

// NewOsStore creates a Store backed by the operating system file system.
func NewOsStore(path string) *Store {
	return NewStore(afero.NewOsFs(), path)
}

// Path returns the token file path.
func (s *Store) Path() string {
	return s.path
}

// Token returns the current bearer token and whether one is available.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	override := s.override
	s.mu.RUnlock()
	if override != "" {
		return override, true
	}

	if s.path == "" {
		return "", false
	}

	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to read token file", "path", s.path, "error", err)
		}
		return "", false
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", false
	}
	return token, true
}

// Set stores token in memory, taking precedence over the file. An empty
// token clears the override.
func (s *Store) Set(token string) {
	s.mu.Lock()
	s.override = strings.TrimSpace(token)
	s.mu.Unlock()
}

// Save writes token to the token file.
func (s *Store) Save(token string) error {
	if s.path == "" {
		return errors.New("token file path is not configured")
	}
	return afero.WriteFile(s.fs, s.path, []byte(strings.TrimSpace(token)+"\n"), 0o600)
}

// Clear removes the token file and any in-memory override.
func (s *Store) Clear() error {
	s.Set("")
	if s.path == "" {
		return nil
	}
	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
