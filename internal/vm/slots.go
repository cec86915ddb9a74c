package vm

import (
	"errors"
	"fmt"
)

// ErrSlotOutOfRange is returned when a slot index exceeds the size a Slots
// was created with.
var ErrSlotOutOfRange = errors.New("slot out of range")

// Slots is a fixed-size array of numeric slots with an undefined flag per
// slot. It never grows: its size is computed before any bytecode runs.
type Slots struct {
	values    []float64
	undefined []bool
}

// NewSlots returns n slots holding 0, all defined.
func NewSlots(n int) *Slots {
	if n < 0 {
		n = 0
	}
	return &Slots{
		values:    make([]float64, n),
		undefined: make([]bool, n),
	}
}

// Len returns the number of slots.
func (s *Slots) Len() int {
	return len(s.values)
}

func (s *Slots) check(i int) error {
	if i < 0 || i >= len(s.values) {
		return fmt.Errorf("%w: %d (size %d)", ErrSlotOutOfRange, i, len(s.values))
	}
	return nil
}

// Get returns the value of slot i and whether it is defined.
func (s *Slots) Get(i int) (float64, bool, error) {
	if err := s.check(i); err != nil {
		return 0, false, err
	}
	return s.values[i], !s.undefined[i], nil
}

// Set stores v in slot i and marks it defined.
func (s *Slots) Set(i int, v float64) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.values[i] = v
	s.undefined[i] = false
	return nil
}

// SetUndefined flags slot i as undefined.
func (s *Slots) SetUndefined(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.values[i] = 0
	s.undefined[i] = true
	return nil
}

// IsUndefined reports whether slot i is flagged undefined. Out of range
// slots are undefined.
func (s *Slots) IsUndefined(i int) bool {
	if s.check(i) != nil {
		return true
	}
	return s.undefined[i]
}

// Fill sets every slot to v and marks it defined.
func (s *Slots) Fill(v float64) {
	for i := range s.values {
		s.values[i] = v
		s.undefined[i] = false
	}
}
