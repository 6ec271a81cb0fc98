package config

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MinReloadInterval is the shortest refresh period a Reloader accepts.
const MinReloadInterval = 30 * time.Second

// Reloader re-reads the configuration on a fixed interval and hands the
// latest valid copy to readers. A failed reload keeps the previous config.
type Reloader struct {
	load     func() (*Config, error)
	mode     string
	interval time.Duration

	mu       sync.RWMutex
	cur      *Config
	onChange []func(*Config)
}

// NewReloader starts from initial. Intervals below MinReloadInterval are
// raised to it.
func NewReloader(initial *Config, mode string, interval time.Duration, load func() (*Config, error)) *Reloader {
	if interval < MinReloadInterval {
		interval = MinReloadInterval
	}
	return &Reloader{load: load, mode: mode, interval: interval, cur: initial}
}

// Current returns the active config. Callers must not modify it.
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cur
}

// OnChange registers fn to run after each successful reload.
func (r *Reloader) OnChange(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Reload loads and validates once, replacing the active config on success.
func (r *Reloader) Reload() error {
	cfg, err := r.load()
	if err != nil {
		return eris.Wrap(err, "config: reload")
	}
	if err := cfg.Validate(r.mode); err != nil {
		return eris.Wrap(err, "config: reload")
	}

	r.mu.Lock()
	r.cur = cfg
	hooks := append([]func(*Config){}, r.onChange...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(cfg)
	}
	return nil
}

// Run reloads every interval until ctx is done.
func (r *Reloader) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.Reload(); err != nil {
				zap.L().Warn("config: reload failed, keeping previous config", zap.Error(err))
				continue
			}
			zap.L().Debug("config: reloaded")
		}
	}
}
