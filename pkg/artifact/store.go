// Package artifact manages the durable directory of compiled EX4/EX5 files.
//
// Compiled files are moved in under their final name, located by job
// identifier for download, and optionally copied to a mirror provider so that
// a second host or bucket keeps them when the local directory is wiped.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/mqlforge/pkg/provider"
)

// ErrNotFound indicates no artifact exists for the requested job.
var ErrNotFound = errors.New("artifact not found")

// mirrorAttempts bounds uploads to a mirror that reports a retryable error.
const mirrorAttempts = 3

// Config configures a Store.
type Config struct {
	// Dir is the durable artifact directory (required).
	Dir string

	// Mirror receives a copy of every persisted artifact. Optional.
	Mirror provider.ObjectStore

	// MirrorPrefix is prepended to mirror keys.
	MirrorPrefix string

	Logger *zap.Logger
}

// Store is the durable artifact directory plus its optional mirror.
//
// Store is safe for concurrent use; callers serialize writes to the same name
// when they need ordering.
type Store struct {
	dir    string
	mirror provider.ObjectStore
	prefix string
	logger *zap.Logger

	retryDelay time.Duration
}

// Location describes where an artifact was found.
type Location struct {
	// Name is the artifact file name, e.g. "job-42.ex5".
	Name string

	// Path is the local durable path. Empty when only the mirror has it.
	Path string

	// MirrorKey is set when the artifact is served from the mirror.
	MirrorKey string

	Size int64
}

// Mirrored reports whether the artifact must be read from the mirror.
func (l *Location) Mirrored() bool { return l.Path == "" && l.MirrorKey != "" }

// NewStore creates the durable directory if needed.
func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("artifact dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:        filepath.Clean(cfg.Dir),
		mirror:     cfg.Mirror,
		prefix:     strings.Trim(cfg.MirrorPrefix, "/"),
		logger:     logger,
		retryDelay: 200 * time.Millisecond,
	}, nil
}

// Dir returns the durable artifact directory.
func (s *Store) Dir() string { return s.dir }

// HasMirror reports whether a mirror provider is configured.
func (s *Store) HasMirror() bool { return s.mirror != nil }

// Path returns the durable path for name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// MirrorKey returns the mirror object key for name.
func (s *Store) MirrorKey(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Persist moves srcPath into the durable directory as name, replacing any
// previous artifact with that name, and returns the durable path.
//
// Mirror upload is best effort: failures are logged and never returned.
func (s *Store) Persist(ctx context.Context, srcPath, name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	dst := s.Path(name)
	if err := moveFile(srcPath, dst); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", srcPath, dst, err)
	}

	if s.mirror != nil {
		if err := s.upload(ctx, dst, name); err != nil {
			s.logger.Warn("Mirror upload failed",
				zap.String("compiled_file", name),
				zap.String("mirror_key", s.MirrorKey(name)),
				zap.Error(err))
		} else {
			s.logger.Debug("Artifact mirrored",
				zap.String("compiled_file", name),
				zap.String("mirror_key", s.MirrorKey(name)))
		}
	}
	return dst, nil
}

func (s *Store) upload(ctx context.Context, localPath, name string) error {
	key := s.MirrorKey(name)
	var err error
	for attempt := 1; attempt <= mirrorAttempts; attempt++ {
		err = s.uploadOnce(ctx, localPath, key)
		if err == nil || !provider.IsRetryable(err) || attempt == mirrorAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.retryDelay):
		}
	}
	return err
}

func (s *Store) uploadOnce(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	return s.mirror.PutObject(ctx, key, f, st.Size())
}

// Locate finds the artifact for jobID, trying each compiled extension in
// order. The local directory is checked first for every extension, then the
// mirror. Returns ErrNotFound when no candidate exists.
func (s *Store) Locate(ctx context.Context, jobID string, exts []string) (*Location, error) {
	if err := validName(jobID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	for _, ext := range exts {
		name := jobID + ext
		st, err := os.Stat(s.Path(name))
		if err == nil && st.Mode().IsRegular() {
			return &Location{Name: name, Path: s.Path(name), Size: st.Size()}, nil
		}
	}

	if s.mirror == nil {
		return nil, ErrNotFound
	}
	for _, ext := range exts {
		name := jobID + ext
		key := s.MirrorKey(name)
		meta, err := s.mirror.Head(ctx, key)
		if err == nil {
			return &Location{Name: name, MirrorKey: key, Size: meta.Size}, nil
		}
		if !provider.IsNotFound(err) {
			s.logger.Warn("Mirror lookup failed", zap.String("mirror_key", key), zap.Error(err))
		}
	}
	return nil, ErrNotFound
}

// Open returns a reader for a located artifact. The caller closes it.
func (s *Store) Open(ctx context.Context, loc *Location) (io.ReadCloser, int64, error) {
	if loc == nil {
		return nil, 0, ErrNotFound
	}
	if !loc.Mirrored() {
		f, err := os.Open(loc.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, 0, ErrNotFound
			}
			return nil, 0, err
		}
		st, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, 0, err
		}
		return f, st.Size(), nil
	}

	body, size, err := s.mirror.GetObject(ctx, loc.MirrorKey)
	if err != nil {
		if provider.IsNotFound(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	return body, size, nil
}

// Close releases the mirror provider.
func (s *Store) Close() error {
	if s.mirror == nil {
		return nil
	}
	return s.mirror.Close()
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}
