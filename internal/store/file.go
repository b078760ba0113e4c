package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hillwatch/internal/bill"
	"github.com/JakeFAU/hillwatch/internal/metrics"
)

// Save defaults.
const (
	DefaultSaveAttempts = 3
	DefaultSaveBackoff  = 100 * time.Millisecond
)

// PersistenceError reports a save that failed after every attempt. The
// canonical file still holds the previous snapshot.
type PersistenceError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Config captures the parameters for the JSON file store.
type Config struct {
	// Path is the canonical dataset file.
	Path string `mapstructure:"path"`
	// SaveAttempts bounds the temp-write-and-rename retries.
	SaveAttempts int `mapstructure:"save_attempts"`
	// SaveBackoff is the pause before the first retry; it doubles per attempt.
	SaveBackoff time.Duration `mapstructure:"save_backoff"`
}

// FileStore loads and atomically replaces the dataset file.
type FileStore struct {
	path     string
	attempts int
	backoff  time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	rename func(oldpath, newpath string) error
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a FileStore, creating the parent directory when missing and
// verifying that it is writable.
func New(cfg Config, logger *zap.Logger) (*FileStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SaveAttempts <= 0 {
		cfg.SaveAttempts = DefaultSaveAttempts
	}
	if cfg.SaveBackoff < 0 {
		cfg.SaveBackoff = 0
	}
	if err := ensureWritableDir(filepath.Dir(cfg.Path)); err != nil {
		return nil, err
	}
	return &FileStore{
		path:     cfg.Path,
		attempts: cfg.SaveAttempts,
		backoff:  cfg.SaveBackoff,
		logger:   logger.Named("store"),
		rename:   os.Rename,
		sleep:    pause,
	}, nil
}

func ensureWritableDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return fmt.Errorf("create store directory: %w", mkErr)
		}
	case err != nil:
		return fmt.Errorf("stat store directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("store directory %s is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".writable_test.*")
	if err != nil {
		return fmt.Errorf("store directory is not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("clean up probe file: %w", err)
	}
	return nil
}

// Path returns the canonical dataset path.
func (s *FileStore) Path() string {
	return s.path
}

// ModTime reports the last modification of the dataset file. ok is false
// when no file has been written yet.
func (s *FileStore) ModTime() (t time.Time, ok bool, err error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("stat dataset: %w", err)
	}
	return info.ModTime(), true, nil
}

// Load reads the full dataset, returning an empty one when no file exists.
func (s *FileStore) Load(_ context.Context) (bill.Dataset, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return bill.Dataset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return bill.Dataset{}, nil
	}
	ds := bill.Dataset{}
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", s.path, err)
	}
	return ds, nil
}

// Encode renders ds exactly as Save writes it: two-space indentation, sorted
// keys, no HTML escaping.
func Encode(ds bill.Dataset) ([]byte, error) {
	if ds == nil {
		ds = bill.Dataset{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ds); err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	return buf.Bytes(), nil
}

// Save durably replaces the dataset file with ds. Saves are serialized; each
// attempt writes a temp file in the same directory, syncs it and renames it
// over the canonical path.
func (s *FileStore) Save(ctx context.Context, ds bill.Dataset) error {
	start := time.Now()
	payload, err := Encode(ds)
	if err != nil {
		metrics.ObserveStoreSave(metrics.OutcomeError, time.Since(start))
		return &PersistenceError{Path: s.path, Attempts: 0, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		lastErr = s.writeAtomic(payload)
		if lastErr == nil {
			metrics.ObserveStoreSave(metrics.OutcomeOK, time.Since(start))
			s.logger.Info("dataset saved",
				zap.String("path", s.path),
				zap.Int("records", len(ds)),
				zap.Int("bytes", len(payload)),
				zap.Int("attempt", attempt),
			)
			return nil
		}
		if attempt == s.attempts {
			break
		}
		delay := s.backoff << (attempt - 1)
		s.logger.Warn("dataset save failed; retrying",
			zap.String("path", s.path),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(lastErr),
		)
		if err := s.sleep(ctx, delay); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}
	metrics.ObserveStoreSave(metrics.OutcomeError, time.Since(start))
	return &PersistenceError{Path: s.path, Attempts: s.attempts, Err: lastErr}
}

func (s *FileStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open store directory: %w", err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync store directory: %w", err)
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
