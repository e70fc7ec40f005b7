package slack

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by directory lookups for ids or names the cache
// has never seen. Callers decide whether a miss is fatal.
var ErrNotFound = errors.New("not found")

// ErrTransportClosed is returned by writes issued while no streaming session
// is open.
var ErrTransportClosed = errors.New("transport closed")

// AuthError reports a failed session-start exchange. It carries the reason
// the backend gave, or "unknown" when it gave none. A bad credential will
// not become valid by retrying, so authentication is never retried
// automatically.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("slack authentication failed: %s", e.Reason)
}

// BackendError reports an API call that came back with ok:false.
type BackendError struct {
	Op     string
	Reason string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("slack %s failed: %s", e.Op, e.Reason)
}

func orUnknown(reason string) string {
	if reason == "" {
		return "unknown"
	}
	return reason
}
