package slack

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// HandlerFunc processes one raw inbound envelope. Handlers must apply their
// event idempotently: re-dispatching the same event yields the same cache
// state.
type HandlerFunc func(ctx context.Context, raw json.RawMessage)

// Dispatcher routes decoded envelopes by composite key: the event type, or
// "type_subtype" when a subtype is present. Unknown keys are logged at
// debug and dropped: the backend's event vocabulary grows independently of
// this handler set and must never crash the connector.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	fallback HandlerFunc
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Register binds a handler to a composite event key, replacing any previous
// binding.
func (d *Dispatcher) Register(key string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[key] = h
}

// SetFallback installs a handler for keys with no registered handler.
func (d *Dispatcher) SetFallback(h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = h
}

// Dispatch invokes the handler for key, recovering panics so a bad payload
// cannot take down the read loop.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, raw json.RawMessage) {
	d.mu.RLock()
	h, ok := d.handlers[key]
	if !ok {
		h = d.fallback
	}
	d.mu.RUnlock()

	if h == nil {
		d.logger.Debug("no handler for event", "key", key)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panic", "key", key, "panic", r)
		}
	}()
	h(ctx, raw)
}

// dispatchKey builds the composite routing key for an envelope.
func dispatchKey(typ, subtype string) string {
	if subtype != "" {
		return typ + "_" + subtype
	}
	return typ
}
