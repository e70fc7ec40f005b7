package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/com-four/warmachine-ng/internal/domain"
	"github.com/com-four/warmachine-ng/internal/store"
)

const standupKeyPrefix = "standup:"

// StandupSchedule is one channel's recurring standup.
type StandupSchedule struct {
	Channel string `json:"channel"`
	Time    string `json:"time"` // 24h clock, "15:04"
	Days    string `json:"days"` // subset of SunMTWThFSat
}

// Standup schedules daily standup announcements per channel.
//
// Commands:
//
//	!standup-add <24h time> <SunMTWThFSat> [#channel]
//	!standup-remove [#channel]
//	!standup-list
//
// Schedules persist in the settings store under the owning connection's id,
// so they survive restarts.
type Standup struct {
	settings *store.SettingsStore
	logger   *slog.Logger

	mu        sync.RWMutex
	schedules map[string]StandupSchedule // channel -> schedule
	announced map[string]string          // channel -> date of last announcement

	// now is swappable for tests.
	now func() time.Time
}

func NewStandup(settings *store.SettingsStore, logger *slog.Logger) *Standup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Standup{
		settings:  settings,
		logger:    logger,
		schedules: make(map[string]StandupSchedule),
		announced: make(map[string]string),
		now:       time.Now,
	}
}

func (s *Standup) Name() string { return "standup" }

func (s *Standup) OnMessage(ctx context.Context, conn domain.Connection, msg domain.Message) error {
	if !strings.HasPrefix(msg.Text, "!standup") {
		return nil
	}
	s.logger.Debug("standup recv", "sender", msg.Sender, "text", msg.Text)

	fields := strings.Fields(msg.Text)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "!standup-add":
		return s.add(ctx, conn, msg, args)
	case "!standup-remove":
		return s.remove(ctx, conn, msg, args)
	case "!standup-list":
		return s.list(ctx, conn, msg)
	}
	return nil
}

func (s *Standup) add(ctx context.Context, conn domain.Connection, msg domain.Message, args []string) error {
	if len(args) < 2 {
		return conn.Say(ctx, "Usage: !standup-add <24h time> <SunMTWThFSat> [#channel]", msg.ReplyTarget())
	}

	when, days := args[0], args[1]
	channel := msg.Channel
	if len(args) >= 3 {
		channel = args[2]
	}
	if channel == "" {
		return conn.Say(ctx, "Adding a standup from a DM requires a #channel argument", msg.ReplyTarget())
	}
	if _, err := time.Parse("15:04", when); err != nil {
		return conn.Say(ctx, fmt.Sprintf("Cannot parse %q as a 24h time", when), msg.ReplyTarget())
	}
	if _, err := parseDays(days); err != nil {
		return conn.Say(ctx, err.Error(), msg.ReplyTarget())
	}

	sched := StandupSchedule{Channel: channel, Time: when, Days: days}
	if err := s.persist(ctx, conn.ID(), sched); err != nil {
		return fmt.Errorf("persist standup schedule: %w", err)
	}

	s.mu.Lock()
	s.schedules[channel] = sched
	s.mu.Unlock()

	return conn.Say(ctx, fmt.Sprintf("Scheduling standup for %s on %s in %s", when, days, channel), msg.ReplyTarget())
}

func (s *Standup) remove(ctx context.Context, conn domain.Connection, msg domain.Message, args []string) error {
	channel := msg.Channel
	if len(args) >= 1 {
		channel = args[0]
	}
	if channel == "" {
		return conn.Say(ctx, "Removing a standup from a DM requires a #channel argument", msg.ReplyTarget())
	}

	if err := s.settings.Delete(ctx, conn.ID(), standupKeyPrefix+channel); err != nil {
		return fmt.Errorf("remove standup schedule: %w", err)
	}

	s.mu.Lock()
	delete(s.schedules, channel)
	s.mu.Unlock()

	return conn.Say(ctx, "Standup removed for "+channel, msg.ReplyTarget())
}

func (s *Standup) list(ctx context.Context, conn domain.Connection, msg domain.Message) error {
	s.mu.RLock()
	channels := make([]string, 0, len(s.schedules))
	for ch := range s.schedules {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	lines := make([]string, 0, len(channels))
	for _, ch := range channels {
		sched := s.schedules[ch]
		lines = append(lines, fmt.Sprintf("%s at %s on %s", ch, sched.Time, sched.Days))
	}
	s.mu.RUnlock()

	if len(lines) == 0 {
		return conn.Say(ctx, "No standups scheduled", msg.ReplyTarget())
	}
	return conn.Say(ctx, strings.Join(lines, "\n"), msg.ReplyTarget())
}

func (s *Standup) persist(ctx context.Context, namespace string, sched StandupSchedule) error {
	data, err := json.Marshal(sched)
	if err != nil {
		return err
	}
	return s.settings.Set(ctx, namespace, standupKeyPrefix+sched.Channel, string(data))
}

// Load restores persisted schedules for a connection.
func (s *Standup) Load(ctx context.Context, namespace string) error {
	entries, err := s.settings.List(ctx, namespace)
	if err != nil {
		return fmt.Errorf("load standup schedules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range entries {
		if !strings.HasPrefix(key, standupKeyPrefix) {
			continue
		}
		var sched StandupSchedule
		if err := json.Unmarshal([]byte(value), &sched); err != nil {
			s.logger.Warn("skipping corrupt standup schedule", "key", key, "err", err)
			continue
		}
		s.schedules[sched.Channel] = sched
	}
	return nil
}

// Start runs the announcement loop until the context is cancelled. Each
// schedule fires at most once per day, at or after its configured time on a
// configured day.
func (s *Standup) Start(ctx context.Context, conn domain.Connection) {
	if err := s.Load(ctx, conn.ID()); err != nil {
		s.logger.Error("standup schedules unavailable", "err", err)
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, conn)
		}
	}
}

func (s *Standup) tick(ctx context.Context, conn domain.Connection) {
	now := s.now()
	today := now.Format("2006-01-02")

	s.mu.RLock()
	due := make([]StandupSchedule, 0)
	for ch, sched := range s.schedules {
		if s.announced[ch] == today {
			continue
		}
		days, err := parseDays(sched.Days)
		if err != nil || !days[now.Weekday()] {
			continue
		}
		at, err := time.Parse("15:04", sched.Time)
		if err != nil {
			continue
		}
		fireAt := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
		if !now.Before(fireAt) {
			due = append(due, sched)
		}
	}
	s.mu.RUnlock()

	for _, sched := range due {
		s.announce(ctx, conn, sched)
		s.mu.Lock()
		s.announced[sched.Channel] = today
		s.mu.Unlock()
	}
}

func (s *Standup) announce(ctx context.Context, conn domain.Connection, sched StandupSchedule) {
	text := "Time for standup!"
	if roster, ok := conn.(domain.RosterProvider); ok {
		if members, err := roster.UsersInChannel(ctx, sched.Channel); err == nil && len(members) > 0 {
			text = text + " " + strings.Join(members, ", ")
		}
	}
	if err := conn.Say(ctx, text, sched.Channel); err != nil {
		s.logger.Error("standup announcement failed", "channel", sched.Channel, "err", err)
	}
}

// dayTokens maps the schedule notation to weekdays. Longer tokens are
// matched first so "Th" is not read as "T" followed by a bad token.
var dayTokens = []struct {
	token string
	day   time.Weekday
}{
	{"Sun", time.Sunday},
	{"Sat", time.Saturday},
	{"Th", time.Thursday},
	{"M", time.Monday},
	{"T", time.Tuesday},
	{"W", time.Wednesday},
	{"F", time.Friday},
}

// parseDays parses strings like "MTWThF" or "SunSat" into a weekday set.
func parseDays(s string) (map[time.Weekday]bool, error) {
	days := make(map[time.Weekday]bool)
	rest := s
	for rest != "" {
		matched := false
		for _, t := range dayTokens {
			if strings.HasPrefix(rest, t.token) {
				days[t.day] = true
				rest = rest[len(t.token):]
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("cannot parse %q as days (use SunMTWThFSat)", s)
		}
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no days given (use SunMTWThFSat)")
	}
	return days, nil
}
