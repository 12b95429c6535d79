// Package policy provides retention policy sources: a static in-memory policy
// and a YAML file that is re-read whenever it changes on disk.
package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/gosuda/fuelops/internal/domain"
)

var ErrInvalidPolicy = errors.New("policy: invalid retention policy") //nolint:gochecknoglobals // sentinel error

// StaticSource serves a fixed policy that can be replaced at runtime.
type StaticSource struct {
	mu     sync.RWMutex
	policy *domain.RetentionPolicy
}

func NewStaticSource(p *domain.RetentionPolicy) *StaticSource {
	return &StaticSource{policy: p}
}

func (s *StaticSource) Set(p *domain.RetentionPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

func (s *StaticSource) RetentionPolicy(_ context.Context) (*domain.RetentionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.policy), nil
}

// FileSource reads the policy from a YAML file. The parsed policy is cached
// until Watch sees the file change.
type FileSource struct {
	path   string
	mu     sync.Mutex
	cached *domain.RetentionPolicy
	logger zerolog.Logger
}

func NewFileSource(path string) *FileSource {
	return &FileSource{
		path:   filepath.Clean(path),
		logger: log.With().Str("component", "policy.file").Str("path", path).Logger(),
	}
}

func (s *FileSource) RetentionPolicy(_ context.Context) (*domain.RetentionPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached == nil {
		p, err := Load(s.path)
		if err != nil {
			return nil, fmt.Errorf("policy.FileSource.RetentionPolicy: %w", err)
		}
		s.cached = p
	}
	return clone(s.cached), nil
}

// Invalidate drops the cached policy so the next read hits the file.
func (s *FileSource) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// Watch invalidates the cache whenever the file is written, replaced or
// removed. It blocks until ctx is done. The parent directory is watched so
// editors that save through a rename are seen too.
func (s *FileSource) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("policy.FileSource.Watch: create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("policy.FileSource.Watch: watch %s: %w", filepath.Dir(s.path), err)
	}
	s.logger.Info().Msg("watching retention policy file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("policy.FileSource.Watch: events channel closed")
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			s.Invalidate()
			s.logger.Info().Str("op", ev.Op.String()).Msg("retention policy changed, cache invalidated")
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("policy.FileSource.Watch: errors channel closed")
			}
			s.logger.Warn().Err(err).Msg("policy watcher error")
		}
	}
}

// Load parses and validates a policy file.
func Load(path string) (*domain.RetentionPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML policy document. Unknown entity types and negative
// retention periods are rejected. Omitted enabled flags leave archival on.
func Parse(data []byte) (*domain.RetentionPolicy, error) {
	var p domain.RetentionPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	known := make(map[domain.EntityType]bool)
	for _, et := range domain.AllEntityTypes() {
		known[et] = true
	}
	for et, cp := range p.Collections {
		if !known[et] {
			return nil, fmt.Errorf("%w: unknown collection %q", ErrInvalidPolicy, et)
		}
		if cp.RetentionMonths < 0 {
			return nil, fmt.Errorf("%w: %s: negative retention_months", ErrInvalidPolicy, et)
		}
	}
	if p.Global.ArchivalMonths < 0 {
		return nil, fmt.Errorf("%w: global: negative archival_months", ErrInvalidPolicy)
	}
	return &p, nil
}

func clone(p *domain.RetentionPolicy) *domain.RetentionPolicy {
	if p == nil {
		return nil
	}
	out := &domain.RetentionPolicy{Global: p.Global}
	out.Global.ArchivalEnabled = cloneFlag(p.Global.ArchivalEnabled)
	if p.Collections != nil {
		out.Collections = make(map[domain.EntityType]domain.CollectionPolicy, len(p.Collections))
		for k, v := range p.Collections {
			v.Enabled = cloneFlag(v.Enabled)
			out.Collections[k] = v
		}
	}
	return out
}

func cloneFlag(b *bool) *bool {
	if b == nil {
		return nil
	}
	return domain.Flag(*b)
}
