package policy

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// Source serves the active test-order policy. With Watch it reloads the file whenever it
// changes; a file that fails to parse keeps the previous policy in force.
type Source struct {
	path    string
	current atomic.Pointer[integration.TestOrderPolicy]
	logger  *zap.Logger

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	// reloaded is signalled after every reload attempt
	reloaded chan error
}

// NewSource loads path once. An empty path yields a source with the policy disabled.
func NewSource(path string, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Source{path: path, logger: logger.Named("policy")}
	p := integration.TestOrderPolicy{}
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		p = loaded
	}
	s.current.Store(&p)
	s.logger.Info("Test order policy loaded", zap.String("path", path), zap.Bool("enabled", p.Enabled))
	return s, nil
}

// Current implements integration.TestOrderPolicySource
func (s *Source) Current() integration.TestOrderPolicy {
	return *s.current.Load()
}

// Reload reads the file again. On error the previous policy stays active.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	p, err := LoadFromFile(s.path)
	if err != nil {
		s.logger.Warn("Test order policy reload failed, keeping previous policy",
			zap.String("path", s.path), zap.Error(err))
		return err
	}
	s.current.Store(&p)
	s.logger.Info("Test order policy reloaded", zap.String("path", s.path), zap.Bool("enabled", p.Enabled))
	return nil
}

// Watch starts reloading on file changes until ctx is done or Close is called. The
// directory is watched so editors that replace the file by rename are picked up.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return err
	}
	s.watcher = w

	s.wg.Add(1)
	go s.loop(ctx, w)
	return nil
}

func (s *Source) loop(ctx context.Context, w *fsnotify.Watcher) {
	defer s.wg.Done()
	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			err := s.Reload()
			if s.reloaded != nil {
				select {
				case s.reloaded <- err:
				default:
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Policy watcher error", zap.Error(err))
		}
	}
}

// Close stops watching
func (s *Source) Close() error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}

var _ integration.TestOrderPolicySource = (*Source)(nil)
