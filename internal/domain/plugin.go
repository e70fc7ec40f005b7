package domain

import "context"

// Plugin reacts to normalized messages. Implementations respond through the
// originating connection's Say.
type Plugin interface {
	Name() string
	OnMessage(ctx context.Context, conn Connection, msg Message) error
}
