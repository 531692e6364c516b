package domain

import (
	"fmt"
	"slices"
)

// SeatState is the server-confirmed state of a seat.
type SeatState int

const (
	SeatEmpty SeatState = iota
	SeatOccupied
	SeatClosed
)

// Valid reports whether s is a known state.
func (s SeatState) Valid() bool {
	return s >= SeatEmpty && s <= SeatClosed
}

func (s SeatState) String() string {
	switch s {
	case SeatEmpty:
		return "empty"
	case SeatOccupied:
		return "occupied"
	case SeatClosed:
		return "closed"
	default:
		return fmt.Sprintf("seat_state(%d)", int(s))
	}
}

// MarshalText renders the state by name in API responses.
func (s SeatState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Seat is a numbered broadcasting slot. Occupant is set only when the seat
// is occupied.
type Seat struct {
	Index    int       `json:"index"`
	State    SeatState `json:"state"`
	Occupant *Role     `json:"occupant,omitempty"`
}

// NormalizeSeats sorts seats ascending by index in place. Non-positive or
// duplicate indices make the list malformed.
func NormalizeSeats(seats []Seat) error {
	slices.SortFunc(seats, func(a, b Seat) int { return a.Index - b.Index })
	for i, s := range seats {
		if s.Index < 1 {
			return fmt.Errorf("%w: seat index %d", ErrMalformedPayload, s.Index)
		}
		if i > 0 && seats[i-1].Index == s.Index {
			return fmt.Errorf("%w: duplicate seat index %d", ErrMalformedPayload, s.Index)
		}
	}
	return nil
}
