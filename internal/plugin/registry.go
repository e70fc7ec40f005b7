// Package plugin hosts the command plugins fed by the message bus.
package plugin

import (
	"context"
	"log/slog"
	"sync"

	"github.com/com-four/warmachine-ng/internal/domain"
)

// Registry fans each normalized message out to every registered plugin.
// Plugins are isolated: a panic or error in one never reaches the others or
// the read loop.
type Registry struct {
	mu      sync.RWMutex
	plugins []domain.Plugin
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a plugin. Registration order is dispatch order.
func (r *Registry) Register(p domain.Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = append(r.plugins, p)
	r.logger.Info("plugin registered", "plugin", p.Name())
}

// Plugins returns the registered plugins in dispatch order.
func (r *Registry) Plugins() []domain.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Dispatch hands one message to every plugin.
func (r *Registry) Dispatch(ctx context.Context, conn domain.Connection, msg domain.Message) {
	for _, p := range r.Plugins() {
		r.dispatchOne(ctx, p, conn, msg)
	}
}

func (r *Registry) dispatchOne(ctx context.Context, p domain.Plugin, conn domain.Connection, msg domain.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("plugin panic", "plugin", p.Name(), "panic", rec)
		}
	}()
	if err := p.OnMessage(ctx, conn, msg); err != nil {
		r.logger.Error("plugin error", "plugin", p.Name(), "err", err)
	}
}

// Run consumes the bus until the context is cancelled or the bus closes.
func (r *Registry) Run(ctx context.Context, b domain.MessageBus, conn domain.Connection) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.Subscribe():
			if !ok {
				return
			}
			r.Dispatch(ctx, conn, msg)
		}
	}
}
