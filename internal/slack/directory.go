package slack

import (
	"fmt"
	"log/slog"
	"sync"
)

// Directory caches user and conversation identity for one connection. It is
// seeded from the rtm.start bootstrap payload and kept current by the
// user_change / presence_change / *_joined event handlers. All tables live
// behind one mutex so a rename can swap the name index and the record in a
// single step.
type Directory struct {
	mu sync.RWMutex

	selfID   string
	selfName string

	users        map[string]*User
	userIDByName map[string]string

	channels        map[string]*Channel
	channelIDByName map[string]string

	logger *slog.Logger
}

func NewDirectory(logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		users:           make(map[string]*User),
		userIDByName:    make(map[string]string),
		channels:        make(map[string]*Channel),
		channelIDByName: make(map[string]string),
		logger:          logger,
	}
}

// Seed replaces session identity and populates the cache tables from a
// bootstrap payload. A nil payload is a no-op; a missing self section is
// logged and identity keeps its previous value rather than failing the
// whole bootstrap. DM channels are addressed by user, so they get no name
// index entry.
func (d *Directory) Seed(b *bootstrap) {
	if b == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if b.Self != nil {
		d.selfID = b.Self.ID
		d.selfName = b.Self.Name
	} else {
		d.logger.Error("bootstrap payload has no self section")
	}

	for i := range b.Users {
		u := b.Users[i]
		d.users[u.ID] = &u
		if u.Name != "" {
			d.userIDByName[u.Name] = u.ID
		}
	}
	for _, im := range b.IMs {
		ch := im
		ch.Kind = KindDM
		d.channels[ch.ID] = &ch
	}
	for _, c := range b.Channels {
		ch := c
		ch.Kind = KindChannel
		d.channels[ch.ID] = &ch
		d.channelIDByName[ch.Name] = ch.ID
	}
	for _, g := range b.Groups {
		ch := g
		ch.Kind = KindGroup
		d.channels[ch.ID] = &ch
		d.channelIDByName[ch.Name] = ch.ID
	}
}

// Self returns the bot's own id and display name for this session.
func (d *Directory) Self() (id, name string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selfID, d.selfName
}

// UserByID returns a copy of the cached user record.
func (d *Directory) UserByID(id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, fmt.Errorf("user id %q: %w", id, ErrNotFound)
	}
	return *u, nil
}

// UserIDByName resolves a display name to a user id.
func (d *Directory) UserIDByName(name string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.userIDByName[name]
	if !ok {
		return "", fmt.Errorf("user name %q: %w", name, ErrNotFound)
	}
	return id, nil
}

// UserNameByID resolves a user id to its current display name.
func (d *Directory) UserNameByID(id string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return "", fmt.Errorf("user id %q: %w", id, ErrNotFound)
	}
	return u.Name, nil
}

// ChannelNameByID resolves a channel/group/DM id to its display name.
func (d *Directory) ChannelNameByID(id string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[id]
	if !ok {
		return "", fmt.Errorf("channel id %q: %w", id, ErrNotFound)
	}
	return ch.Name, nil
}

// ChannelIDByName resolves a channel or group display name to its id.
func (d *Directory) ChannelIDByName(name string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.channelIDByName[name]
	if !ok {
		return "", fmt.Errorf("channel name %q: %w", name, ErrNotFound)
	}
	return id, nil
}

// ApplyUserChange upserts a user record. The old name is captured from the
// cached record before it is overwritten, and the name index swap happens
// under the same lock, so a rename is one atomic step and no id ever maps
// to two live names.
func (d *Directory) ApplyUserChange(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.users[u.ID]; ok && old.Name != u.Name {
		delete(d.userIDByName, old.Name)
	}
	cp := u
	d.users[u.ID] = &cp
	if u.Name != "" {
		d.userIDByName[u.Name] = u.ID
	}
}

// ApplyPresenceChange updates only the presence field. An unknown id is
// logged and ignored so a stale event cannot crash the event loop.
func (d *Directory) ApplyPresenceChange(id, presence string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[id]
	if !ok {
		d.logger.Warn("presence change for unknown user", "user", id)
		return
	}
	u.Presence = presence
	if u.Raw != nil {
		u.Raw["presence"] = presence
	}
}

// AddChannel upserts a conversation record, indexing the name for channels
// and groups only.
func (d *Directory) AddChannel(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := ch
	d.channels[ch.ID] = &cp
	if ch.Kind != KindDM && ch.Name != "" {
		d.channelIDByName[ch.Name] = ch.ID
	}
}
