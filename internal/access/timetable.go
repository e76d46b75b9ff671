// Package access implements the capability delegation core: the weekly
// time-slot schedule, the sponsor→follower delegation graph, the
// propagation engine recomputing entitlements from it, and the façade
// composing the engine with the credential broker and the federation
// protocol.
package access

import "time"

const (
	// SlotsPerDay is the number of half-hour slots in one day.
	SlotsPerDay = 48
	// SlotCount is the length of the weekly schedule.
	SlotCount = 7 * SlotsPerDay

	// NoAccess marks a slot that grants nothing.
	NoAccess = -1

	// MaxDelegationDepth bounds the configurable TTL so slot values fit
	// their storage type.
	MaxDelegationDepth = 127
)

// TimeTable is a recurring weekly access schedule at half-hour resolution,
// starting Monday 00:00. Each slot holds the remaining delegation depth:
// a value v > 0 grants access with v re-lend hops left, v == 0 grants
// access without further re-lending, NoAccess grants nothing.
type TimeTable [SlotCount]int8

// NewFullTable returns a schedule with every slot at the given TTL, the
// shape administrators always hold.
func NewFullTable(ttl int) *TimeTable {
	if ttl > MaxDelegationDepth {
		ttl = MaxDelegationDepth
	}
	var t TimeTable
	for i := range t {
		t[i] = int8(ttl)
	}
	return &t
}

func newEmptyTable() *TimeTable {
	var t TimeTable
	for i := range t {
		t[i] = NoAccess
	}
	return &t
}

// SlotIndex maps a wall-clock instant to its slot in the weekly table.
func SlotIndex(at time.Time) int {
	day := (int(at.Weekday()) + 6) % 7 // Monday first
	return day*SlotsPerDay + at.Hour()*2 + at.Minute()/30
}

// ValueAt returns the slot value covering the given instant.
func (t *TimeTable) ValueAt(at time.Time) int {
	return int(t[SlotIndex(at)])
}

// HasAccess reports whether any slot grants access.
func (t *TimeTable) HasAccess() bool {
	for _, v := range t {
		if v >= 0 {
			return true
		}
	}
	return false
}

// CanDelegate reports whether any slot has re-lend hops left.
func (t *TimeTable) CanDelegate() bool {
	for _, v := range t {
		if v > 0 {
			return true
		}
	}
	return false
}

// absorb merges a sponsor's schedule into t, slot-wise taking the better
// of the current value and the sponsor's value decayed by one hop.
// Sponsor slots without re-lend capacity contribute nothing. Reports
// whether any slot improved.
func (t *TimeTable) absorb(sponsor *TimeTable) bool {
	improved := false
	for i, v := range sponsor {
		if v <= 0 {
			continue
		}
		if v-1 > t[i] {
			t[i] = v - 1
			improved = true
		}
	}
	return improved
}

// Clone returns a copy of the table.
func (t *TimeTable) Clone() *TimeTable {
	c := *t
	return &c
}

// Equal reports whether two tables hold the same slots. Two nil tables
// are equal; nil never equals non-nil.
func (t *TimeTable) Equal(o *TimeTable) bool {
	if t == nil || o == nil {
		return t == o
	}
	return *t == *o
}
