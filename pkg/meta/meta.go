package meta

import (
	"time"
)

// Source identifies the provenance of a request
type Source string

const (
	SourceUser   Source = "user"
	SourceSystem Source = "system"
)

// Meta carries caller provenance for a request. It is visible to guards
// and handlers and recorded on task settlement records.
type Meta struct {
	Source    Source
	Timestamp time.Time
	Reason    string
	Context   map[string]any

	stamped bool
}

// Stamp returns a stamped copy of m with defaults filled in: a zero
// timestamp becomes the current time and an empty source becomes system.
// Stamping an already-stamped meta returns it unchanged.
func Stamp(m Meta) *Meta {
	if m.stamped {
		return &m
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	if m.Source == "" {
		m.Source = SourceSystem
	}
	m.stamped = true
	return &m
}

// System returns a stamped system-sourced meta with the given reason
func System(reason string) *Meta {
	return Stamp(Meta{Source: SourceSystem, Reason: reason})
}

// User returns a stamped user-sourced meta with the given reason
func User(reason string) *Meta {
	return Stamp(Meta{Source: SourceUser, Reason: reason})
}

// IsStamped reports whether m went through Stamp. Membership can be
// tested without comparing field values.
func IsStamped(m *Meta) bool {
	return m != nil && m.stamped
}

// Event models the event-like values adapters derive request metas from.
// Trusted events originate from real user interaction.
type Event struct {
	Type    string
	Trusted bool
	Time    time.Time
}

// FromEvent derives a stamped meta from an event: a trusted event maps to
// a user source, the event type becomes the reason and the event time the
// timestamp.
func FromEvent(ev Event, context map[string]any) *Meta {
	source := SourceSystem
	if ev.Trusted {
		source = SourceUser
	}
	return Stamp(Meta{
		Source:    source,
		Timestamp: ev.Time,
		Reason:    ev.Type,
		Context:   context,
	})
}
