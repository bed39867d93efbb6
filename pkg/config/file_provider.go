package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

// Snapshot is the immutable view of the runtime-tunable configuration. Only
// the knobs that are safe to swap under live traffic appear here; key
// material and backend selection require a restart.
type Snapshot struct {
	Generation int64
	ReceivedAt time.Time
	Thresholds domain.Thresholds
	RateLimit  RateLimitConfig
}

// FileProvider watches a configuration file and publishes validated snapshots
// to subscribers whenever the file changes. A file that fails to parse or
// validate never reaches subscribers; the previous snapshot stays in force.
type FileProvider struct {
	path        string
	logger      *slog.Logger
	mu          sync.RWMutex
	snapshot    Snapshot
	subscribers []chan Snapshot
	watcher     *fsnotify.Watcher
	cancel      context.CancelFunc
}

// NewFileProvider creates a provider watching the specified file.
func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &FileProvider{
		path:    absPath,
		logger:  logger,
		watcher: watcher,
		cancel:  cancel,
	}

	if err := p.load(); err != nil {
		_ = watcher.Close()
		cancel()
		return nil, err
	}

	// Watch the directory, not the file: editors and config maps replace the
	// file rather than writing it in place.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		cancel()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	go p.watchLoop(ctx)

	return p, nil
}

// Current returns the latest validated snapshot.
func (p *FileProvider) Current() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Subscribe returns a channel that receives configuration updates. The current
// snapshot is delivered immediately.
func (p *FileProvider) Subscribe() <-chan Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Snapshot, 1)
	p.subscribers = append(p.subscribers, ch)
	ch <- p.snapshot
	return ch
}

// Close stops the watcher and cleans up resources.
func (p *FileProvider) Close() error {
	p.cancel()
	return p.watcher.Close()
}

func (p *FileProvider) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer
	debounceDuration := 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != p.path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Chmod) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := p.load(); err != nil {
						p.logger.Error("Config reload rejected, keeping previous snapshot", "path", p.path, "error", err)
					} else {
						p.logger.Info("Configuration reloaded", "path", p.path)
					}
				})
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("Config watcher error", "error", err)
		}
	}
}

func (p *FileProvider) load() error {
	cfg, err := Load(p.path)
	if err != nil {
		return err
	}

	p.mu.Lock()
	snapshot := Snapshot{
		Generation: p.snapshot.Generation + 1,
		ReceivedAt: time.Now().UTC(),
		Thresholds: cfg.Score.Thresholds(),
		RateLimit:  cfg.RateLimit,
	}
	p.snapshot = snapshot
	subscribers := make([]chan Snapshot, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- snapshot:
		default:
			// Skip if channel is full (slow consumer)
		}
	}

	return nil
}
