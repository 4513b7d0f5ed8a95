// Package arena provides index-addressed record storage with a free list.
//
// Records live in one contiguous slice. Unused slots are chained into a
// singly linked free list; Allocate pops its head and Free pushes a slot back.
// When the list is empty the capacity doubles (never below MinCapacity) and
// the new slots are linked in. Handles are slot indices: they stay valid
// across growth, while pointers returned by At or Get are only valid until
// the next Allocate.
package arena

import (
	"iter"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Handle identifies a slot. Nil is the empty sentinel.
type Handle int

const Nil Handle = -1

// MinCapacity is the capacity reached by the first growth
const MinCapacity = 64

var ErrInvalidHandle = errors.New("invalid handle")

type slotState uint8

const (
	slotFree slotState = iota
	slotUsed
)

type slot[T any] struct {
	value T
	// next free slot, only meaningful while the slot is free
	next  Handle
	state slotState
}

// Arena stores records of type T in reusable slots addressed by Handle
type Arena[T any] struct {
	slots    []slot[T]
	freeList Handle
	count    int

	logger *zap.Logger
}

// New creates an empty arena. Nothing is allocated before the first Allocate.
func New[T any](logger *zap.Logger) *Arena[T] {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Arena[T]{freeList: Nil, logger: logger}
}

// Allocate pops a slot from the free list, growing the arena if needed.
// The slot value is the zero value of T.
func (a *Arena[T]) Allocate() Handle {
	if a.freeList == Nil {
		a.grow()
	}

	h := a.freeList
	s := &a.slots[h]
	if s.state != slotFree {
		panic(errors.Errorf("arena: free list head %d is in use", h))
	}

	a.freeList = s.next
	s.next = Nil
	s.state = slotUsed
	a.count++

	return h
}

// Free returns a slot to the free list. The handle must not be used afterward.
func (a *Arena[T]) Free(h Handle) error {
	if !a.Valid(h) {
		return errors.Wrapf(ErrInvalidHandle, "free %d", h)
	}

	var zero T
	s := &a.slots[h]
	s.value = zero
	s.state = slotFree
	s.next = a.freeList
	a.freeList = h
	a.count--

	return nil
}

// Get returns the record behind a live handle
func (a *Arena[T]) Get(h Handle) (*T, error) {
	if !a.Valid(h) {
		return nil, errors.Wrapf(ErrInvalidHandle, "get %d", h)
	}

	return &a.slots[h].value, nil
}

// At is Get for handles the caller knows to be live. It panics otherwise.
func (a *Arena[T]) At(h Handle) *T {
	if !a.Valid(h) {
		panic(errors.Wrapf(ErrInvalidHandle, "at %d", h))
	}

	return &a.slots[h].value
}

// Valid reports whether h refers to an allocated slot
func (a *Arena[T]) Valid(h Handle) bool {
	return h >= 0 && int(h) < len(a.slots) && a.slots[h].state == slotUsed
}

// Len returns the number of allocated slots
func (a *Arena[T]) Len() int {
	return a.count
}

// Cap returns the number of slots, free or not
func (a *Arena[T]) Cap() int {
	return len(a.slots)
}

// Reset frees every slot while keeping the capacity
func (a *Arena[T]) Reset() {
	clear(a.slots)
	a.count = 0
	a.freeList = Nil
	a.link(0)
}

// All iterates the allocated slots in index order
func (a *Arena[T]) All() iter.Seq2[Handle, *T] {
	return func(yield func(Handle, *T) bool) {
		for i := range a.slots {
			if a.slots[i].state != slotUsed {
				continue
			}
			if !yield(Handle(i), &a.slots[i].value) {
				return
			}
		}
	}
}

func (a *Arena[T]) grow() {
	oldCapacity := len(a.slots)
	newCapacity := max(MinCapacity, oldCapacity*2)

	slots := make([]slot[T], newCapacity)
	copy(slots, a.slots)
	a.slots = slots
	a.link(oldCapacity)

	a.logger.Debug("arena grown",
		zap.Int("from", oldCapacity),
		zap.Int("to", newCapacity),
		zap.Int("used", a.count))
}

// link chains the slots from start to the end in front of the free list
func (a *Arena[T]) link(start int) {
	for i := len(a.slots) - 1; i >= start; i-- {
		a.slots[i].state = slotFree
		a.slots[i].next = a.freeList
		a.freeList = Handle(i)
	}
}
