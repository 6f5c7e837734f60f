package media

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// TempStore hands out uniquely named scratch files under one directory.
type TempStore struct {
	dir    string
	logger *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// Artifact is a scratch file owned by a single delivery attempt.
// Release is idempotent and safe to defer.
type Artifact struct {
	Path string

	once  sync.Once
	store *TempStore
}

// NewTempStore creates dir if needed and returns a store rooted there.
func NewTempStore(log *slog.Logger, dir string) (*TempStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "playbot")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve temp dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &TempStore{
		dir:    abs,
		logger: log.With(slog.String("service", "tempstore")),
	}, nil
}

// Dir returns the absolute root directory.
func (s *TempStore) Dir() string {
	return s.dir
}

// Acquire allocates a new artifact path with the given extension. The file is
// not created; the caller writes to Path.
func (s *TempStore) Acquire(ext string) (*Artifact, error) {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	p, err := s.pathFor(uuid.NewString() + ext)
	if err != nil {
		return nil, err
	}
	return &Artifact{Path: p, store: s}, nil
}

// Release removes the artifact from disk.
func (a *Artifact) Release() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) && a.store != nil {
			a.store.logger.Warn("remove artifact failed", slog.String("path", a.Path), slog.Any("error", err))
		}
	})
}

// Sweep deletes regular files in the store older than maxAge and returns how
// many were removed.
func (s *TempStore) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read temp dir: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("sweep remove failed", slog.String("name", entry.Name()), slog.Any("error", err))
			continue
		}
		removed++
	}
	return removed, nil
}

// StartSweeper schedules Sweep on a fixed interval until StopSweeper is called.
func (s *TempStore) StartSweeper(interval, maxAge time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc("@every "+interval.String(), func() {
		n, err := s.Sweep(maxAge)
		if err != nil {
			s.logger.Warn("sweep failed", slog.Any("error", err))
			return
		}
		if n > 0 {
			s.logger.Info("swept stale artifacts", slog.Int("removed", n))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	s.cron = c
	return nil
}

// StopSweeper stops the scheduled sweep and waits for a running one to finish.
func (s *TempStore) StopSweeper() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *TempStore) pathFor(name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.ContainsRune(clean, filepath.Separator) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
	}
	return filepath.Join(s.dir, clean), nil
}
