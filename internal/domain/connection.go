package domain

import "context"

// Connection is a long-lived link to a chat backend. Read blocks until the
// next user-authored message is available, recovering from transport drops
// internally.
type Connection interface {
	// ID uniquely identifies this connection across restarts. It is used as
	// the namespace for persisted per-connection settings.
	ID() string
	Connect(ctx context.Context) error
	Read(ctx context.Context) (Message, error)
	// Say delivers text to a destination: "#name" addresses a channel or
	// group, anything else is treated as a user display name and delivered
	// as a direct message.
	Say(ctx context.Context, text, destination string) error
}

// RosterProvider is an opt-in interface for connections that can list the
// members of a channel. Plugins use it via type assertion.
type RosterProvider interface {
	UsersInChannel(ctx context.Context, channel string) ([]string, error)
}
