package cron

import (
	"sync"
	"time"

	"github.com/kevinpt/cstone-sub000/umsg"
)

// Entry flags. EventStarted is internal bookkeeping, not settable by callers.
const (
	FlagPersist      uint8 = 0x01
	FlagProtect      uint8 = 0x02
	FlagOneShot      uint8 = 0x04
	userFlagMask     uint8 = 0x7F
	flagEventStarted uint8 = 0x80
)

// Def is one scheduled event: a schedule spec, the event to publish, and an
// optional paired "end" event fired EventMinutes after the start.
type Def struct {
	Event        uint32
	EventEnd     uint32
	Spec         TimeSpec
	EventMinutes int16 // 0 disables the end event
	Flags        uint8
}

// activeMap is the bitmap form of Def.Spec, recomputed whenever the entry's
// paired start/end state toggles.
type activeMap struct {
	minutes    uint64
	hours      uint32
	days       uint32
	months     uint16
	daysOfWeek uint16
}

func buildMap(spec TimeSpec) activeMap {
	m := activeMap{
		minutes:    fieldToBitmap(spec.Minute),
		hours:      uint32(fieldToBitmap(spec.Hour)),
		days:       uint32(fieldToBitmap(spec.DayOfMonth)),
		months:     uint16(fieldToBitmap(spec.Month)),
		daysOfWeek: uint16(fieldToBitmap(spec.DayOfWeek)),
	}

	// day-of-month and day-of-week can't both restrict the match: an
	// explicit day-of-week takes priority over a wildcarded day-of-month.
	if m.daysOfWeek != 0xFFFF && m.daysOfWeek != 0 {
		m.days = 0
	} else if m.days != 0 {
		m.daysOfWeek = 0
	}

	return m
}

func (m activeMap) matches(t time.Time) bool {
	minute := uint(t.Minute())
	hour := uint(t.Hour())
	month := uint(t.Month() - 1)
	day := uint(t.Day() - 1)
	weekday := uint(t.Weekday())

	return m.minutes&(1<<minute) != 0 &&
		m.hours&(1<<hour) != 0 &&
		m.months&(1<<month) != 0 &&
		(m.days&(1<<day) != 0 || m.daysOfWeek&(1<<weekday) != 0)
}

type entry struct {
	def Def
	mp  activeMap
}

func newEntry(def Def) *entry {
	clean := def
	clean.Flags &= userFlagMask
	if clean.Flags&FlagOneShot != 0 {
		clean.Flags &^= FlagPersist // one-shot entries are never persisted
	}
	return &entry{def: clean, mp: buildMap(clean.Spec)}
}

// Scheduler holds the live set of cron entries and publishes their events to
// a hub once per elapsed minute.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	hub     *umsg.Hub
	source  uint32
}

// NewScheduler creates an empty scheduler publishing events to hub, tagged
// with source as the originating resource ID on every published message.
func NewScheduler(hub *umsg.Hub, source uint32) *Scheduler {
	return &Scheduler{hub: hub, source: source}
}

// AddEvent registers a new schedule entry built directly from a TimeSpec.
func (s *Scheduler) AddEvent(def Def) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, newEntry(def))
}

// AddEventBySchedule parses a crontab-style schedule string and registers it.
func (s *Scheduler) AddEventBySchedule(schedule string, event uint32, flags uint8, eventEnd uint32, eventMinutes int16) error {
	spec, err := DecodeSchedule(schedule)
	if err != nil {
		return err
	}
	s.AddEvent(Def{Event: event, EventEnd: eventEnd, EventMinutes: eventMinutes, Flags: flags, Spec: spec})
	return nil
}

// AddEventAtTime schedules a one-shot event at a specific wall-clock time.
func (s *Scheduler) AddEventAtTime(at time.Time, event uint32) {
	spec := TimeSpec{
		Minute:     At(uint8(at.Minute())),
		Hour:       At(uint8(at.Hour())),
		DayOfMonth: At(uint8(at.Day() - 1)),
		Month:      At(uint8(at.Month() - 1)),
		DayOfWeek:  Any(),
	}
	s.AddEvent(Def{Event: event, Spec: spec, Flags: FlagOneShot})
}

// RemoveEvent removes every entry publishing the given start event.
func (s *Scheduler) RemoveEvent(event uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.def.Event == event {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return found
}

// Entries returns a snapshot of the currently registered definitions.
func (s *Scheduler) Entries() []Def {
	s.mu.Lock()
	defer s.mu.Unlock()

	defs := make([]Def, len(s.entries))
	for i, e := range s.entries {
		defs[i] = e.def
	}
	return defs
}

func (s *Scheduler) send(id uint32) {
	if s.hub == nil {
		return
	}
	_ = s.hub.Send(umsg.Msg{ID: id, Source: s.source})
}

// dispatchMinute checks every entry against now, firing start/end events and
// pruning spent one-shot entries. Must be called with s.mu held.
func (s *Scheduler) dispatchMinute(now time.Time) {
	kept := s.entries[:0]
	for _, e := range s.entries {
		remove := false

		if e.mp.matches(now) {
			if e.def.Flags&flagEventStarted == 0 {
				s.send(e.def.Event)

				if e.def.EventMinutes > 0 {
					endHour := now.Hour() + int(e.def.EventMinutes)/60
					endMinute := now.Minute() + int(e.def.EventMinutes)%60
					if endMinute > 59 {
						endHour++
						endMinute -= 60
					}
					endHour %= 24

					e.mp.days = 0xFFFFFFFF
					e.mp.months = 0xFFFF
					e.mp.daysOfWeek = 0xFFFF
					e.mp.hours = 1 << uint(endHour)
					e.mp.minutes = 1 << uint(endMinute)
					e.def.Flags |= flagEventStarted
				} else if e.def.Flags&FlagOneShot != 0 {
					remove = true
				}
			} else {
				s.send(e.def.EventEnd)
				e.mp = buildMap(e.def.Spec)
				e.def.Flags &^= flagEventStarted
				if e.def.Flags&FlagOneShot != 0 {
					remove = true
				}
			}
		}

		if !remove {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

// Dispatch replays every elapsed minute between from (exclusive) and until
// (inclusive), matching entries against each minute boundary. Pass the
// previous and current Dispatch call's times directly; Dispatch handles
// forward jumps of up to an hour and a minute (DST spring-forward, clock
// catch-up) by firing every skipped minute. A backward jump (DST fall-back)
// of any size, a zero gap, or a forward gap longer than that fires nothing.
func (s *Scheduler) Dispatch(from, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta := until.Sub(from)
	const period = time.Minute
	const maxSkip = time.Hour + period

	if delta <= 0 || delta > maxSkip {
		return
	}

	// Align to the first whole minute after from.
	next := from.Truncate(period).Add(period)
	for !next.After(until) {
		s.dispatchMinute(next)
		next = next.Add(period)
	}
}
