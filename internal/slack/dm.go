package slack

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DMResolver memoizes user-id to DM-channel-id resolution. The mapping
// never changes for the lifetime of a workspace, so entries are cached
// forever. Concurrent lookups for the same uncached user collapse into one
// backend call via singleflight.
type DMResolver struct {
	open   func(ctx context.Context, userID string) (string, error)
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]string
	sf    singleflight.Group
}

func NewDMResolver(open func(ctx context.Context, userID string) (string, error), logger *slog.Logger) *DMResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &DMResolver{
		open:   open,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// Resolve returns the DM channel id for a user, issuing at most one
// im.open call per uncached user regardless of concurrency.
func (r *DMResolver) Resolve(ctx context.Context, userID string) (string, error) {
	r.mu.RLock()
	id, ok := r.cache[userID]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	v, err, _ := r.sf.Do(userID, func() (any, error) {
		// Double-check inside singleflight: a previous flight may have
		// filled the cache between our read and this call.
		r.mu.RLock()
		cached, hit := r.cache[userID]
		r.mu.RUnlock()
		if hit {
			return cached, nil
		}

		opened, err := r.open(ctx, userID)
		if err != nil {
			return "", err
		}

		r.mu.Lock()
		r.cache[userID] = opened
		r.mu.Unlock()
		return opened, nil
	})
	if err != nil {
		r.logger.Error("cannot open dm channel", "user", userID, "err", err)
		return "", err
	}
	return v.(string), nil
}
