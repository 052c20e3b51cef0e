package noise

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Cache keeps loaded noise models in memory for long-running processes and
// drops entries whose files change on disk.
type Cache struct {
	dir    string
	mu     sync.RWMutex
	models map[string]*Model
	hooks  []func(name string)
	log    zerolog.Logger
}

// NewCache creates a cache over the models in dir.
func NewCache(dir string, log zerolog.Logger) *Cache {
	return &Cache{
		dir:    dir,
		models: make(map[string]*Model),
		log:    log.With().Str("component", "noise_cache").Logger(),
	}
}

// Dir returns the directory the cache reads from
func (c *Cache) Dir() string {
	return c.dir
}

// Get returns the named model, loading it on first use.
func (c *Cache) Get(name string) (*Model, error) {
	c.mu.RLock()
	m, ok := c.models[name]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := Load(c.dir, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.models[name]; ok {
		return cached, nil
	}
	c.models[name] = m
	return m, nil
}

// Invalidate drops a cached model
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.models, name)
	c.mu.Unlock()
}

// Cached reports whether name is currently loaded.
func (c *Cache) Cached(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.models[name]
	return ok
}

// OnChange registers fn to be called with the model name after the watcher
// drops a changed entry.
func (c *Cache) OnChange(fn func(name string)) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

func (c *Cache) changed(name string) {
	c.Invalidate(name)

	c.mu.RLock()
	hooks := make([]func(string), len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn(name)
	}
}

// Watch invalidates entries when their files are written, replaced or
// removed. It blocks until ctx is cancelled.
func (c *Cache) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return err
	}
	c.log.Info().Str("dir", c.dir).Msg("Watching noise models for changes")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			base := filepath.Base(event.Name)
			if !strings.HasSuffix(base, FileExt) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				name := strings.TrimSuffix(base, FileExt)
				c.changed(name)
				c.log.Info().Str("model", name).Str("op", event.Op.String()).Msg("Noise model changed, cache entry dropped")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Warn().Err(err).Msg("Noise model watcher error")

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
