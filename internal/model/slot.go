package model

import (
	"math"
	"sort"
	"strconv"
)

// MaxSlots is the number of addressable virtual controllers.
const MaxSlots = 4

// DefaultSlot is used for oversubscription and for out-of-range requests.
const DefaultSlot SlotID = 1

// SlotID identifies one virtual controller, 1..MaxSlots.
type SlotID int

// Valid reports whether the id is inside [1..MaxSlots].
func (s SlotID) Valid() bool {
	return s >= 1 && s <= MaxSlots
}

// Clamp returns s if it is valid and DefaultSlot otherwise.
func (s SlotID) Clamp() SlotID {
	if !s.Valid() {
		return DefaultSlot
	}
	return s
}

// SlotFromNumber converts a client-supplied slot number. Fractional,
// overflowing and out-of-range values map to DefaultSlot.
func SlotFromNumber(n float64) SlotID {
	if n != math.Trunc(n) || n < 1 || n > MaxSlots {
		return DefaultSlot
	}
	return SlotID(n)
}

func (s SlotID) String() string {
	return strconv.Itoa(int(s))
}

// AllSlots returns every slot id in ascending order.
func AllSlots() []SlotID {
	slots := make([]SlotID, 0, MaxSlots)
	for i := 1; i <= MaxSlots; i++ {
		slots = append(slots, SlotID(i))
	}
	return slots
}

// Occupancy maps each slot to the number of clients assigned to it.
// All MaxSlots keys are always present.
type Occupancy map[SlotID]int

// MarshalJSON encodes the occupancy as {"1": n, "2": n, ...}.
func (o Occupancy) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, slot := range AllSlots() {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '"')
		buf = strconv.AppendInt(buf, int64(slot), 10)
		buf = append(buf, '"', ':')
		buf = strconv.AppendInt(buf, int64(o[slot]), 10)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Total returns the sum of all slot counts.
func (o Occupancy) Total() int {
	n := 0
	for _, c := range o {
		n += c
	}
	return n
}

// SortSlots sorts ids in ascending order in place.
func SortSlots(ids []SlotID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// Assignment is the result of an assignment operation for one client.
type Assignment struct {
	Slot         SlotID `json:"controller"`
	Success      bool   `json:"success"`
	AutoAssigned bool   `json:"auto_assigned"`
}
