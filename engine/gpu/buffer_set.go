package gpu

import (
	"fmt"
	"slices"
	"sync"
)

// Ownership records who is responsible for releasing a buffer held by a BufferSet.
type Ownership int

const (
	// OwnershipOwned buffers were allocated by the BufferSet's holder and are released by BufferSet.Release.
	OwnershipOwned Ownership = iota

	// OwnershipExternal buffers belong to another component (for example the mesh pipeline) and are never released here.
	OwnershipExternal
)

// String returns the ownership name.
func (o Ownership) String() string {
	switch o {
	case OwnershipOwned:
		return "owned"
	case OwnershipExternal:
		return "external"
	default:
		return fmt.Sprintf("Ownership(%d)", int(o))
	}
}

type bufferSlot struct {
	buffer    Buffer
	ownership Ownership
}

// bufferSet is the implementation of the BufferSet interface.
type bufferSet struct {
	mu    *sync.Mutex
	label string

	// slots holds the bound buffers keyed by binding index.
	slots map[uint32]bufferSlot

	// bindGroup is the bind group built from slots; it is always owned.
	bindGroup BindGroup

	// staged holds writes queued by Stage until the next Flush.
	staged []BufferWrite

	released bool
}

// BufferSet tracks the buffers bound to one kernel together with an ownership tag per buffer.
// It is the single teardown point for a GPU consumer: Release frees every owned buffer and the
// bind group exactly once and leaves external buffers untouched.
//
// Usage pattern:
//  1. Set each binding with the buffer and its ownership
//  2. Create the bind group from Entries() and store it with SetBindGroup
//  3. Stage per-frame writes and Flush them to the device
//  4. Release on teardown
type BufferSet interface {
	// Label returns the debug label for this set.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Set binds buf at binding with the given ownership. A previously owned buffer at the same binding is released.
	//
	// Parameters:
	//   - binding: the binding index
	//   - buf: the buffer to bind
	//   - ownership: who releases buf
	Set(binding uint32, buf Buffer, ownership Ownership)

	// Buffer returns the buffer at binding, or nil if none is bound.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - Buffer: the bound buffer or nil
	Buffer(binding uint32) Buffer

	// Ownership returns the ownership tag of the buffer at binding.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - Ownership: the ownership tag
	//   - bool: false if nothing is bound at binding
	Ownership(binding uint32) (Ownership, bool)

	// Entries returns the bound buffers as bind group entries sorted by binding.
	//
	// Returns:
	//   - []BindGroupEntry: the entries
	Entries() []BindGroupEntry

	// BindGroup returns the bind group, or nil if none has been set.
	//
	// Returns:
	//   - BindGroup: the bind group or nil
	BindGroup() BindGroup

	// SetBindGroup stores the bind group built from this set. The set takes ownership of it.
	//
	// Parameters:
	//   - bg: the bind group
	SetBindGroup(bg BindGroup)

	// Stage queues a write to the buffer at binding for the next Flush.
	// The data slice is referenced, not copied, until Flush returns.
	//
	// Parameters:
	//   - binding: the binding index
	//   - offset: the byte offset into the buffer
	//   - data: the bytes to write
	Stage(binding uint32, offset uint64, data []byte)

	// Flush submits all staged writes to the device in staging order and clears the queue.
	//
	// Parameters:
	//   - d: the device owning the buffers
	//
	// Returns:
	//   - error: the first write error, with the remaining writes dropped
	Flush(d Device) error

	// OwnedCount returns the number of owned buffers currently held.
	//
	// Returns:
	//   - int: the owned buffer count
	OwnedCount() int

	// Release releases the bind group and every owned buffer. Subsequent calls are no-ops.
	Release()
}

var _ BufferSet = &bufferSet{}

// NewBufferSet creates an empty BufferSet.
//
// Parameters:
//   - label: debug label used in error messages
//
// Returns:
//   - BufferSet: the new set
func NewBufferSet(label string) BufferSet {
	return &bufferSet{
		mu:    &sync.Mutex{},
		label: label,
		slots: make(map[uint32]bufferSlot),
	}
}

func (s *bufferSet) Label() string {
	return s.label
}

func (s *bufferSet) Set(binding uint32, buf Buffer, ownership Ownership) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.slots[binding]; ok && prev.ownership == OwnershipOwned && prev.buffer != buf {
		prev.buffer.Release()
	}
	s.slots[binding] = bufferSlot{buffer: buf, ownership: ownership}
}

func (s *bufferSet) Buffer(binding uint32) Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.slots[binding].buffer
}

func (s *bufferSet) Ownership(binding uint32) (Ownership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[binding]
	return slot.ownership, ok
}

func (s *bufferSet) Entries() []BindGroupEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]BindGroupEntry, 0, len(s.slots))
	for binding, slot := range s.slots {
		entries = append(entries, BindGroupEntry{Binding: binding, Buffer: slot.buffer})
	}
	slices.SortFunc(entries, func(a, b BindGroupEntry) int {
		return int(a.Binding) - int(b.Binding)
	})
	return entries
}

func (s *bufferSet) BindGroup() BindGroup {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bindGroup
}

func (s *bufferSet) SetBindGroup(bg BindGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bindGroup != nil && s.bindGroup != bg {
		s.bindGroup.Release()
	}
	s.bindGroup = bg
}

func (s *bufferSet) Stage(binding uint32, offset uint64, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.staged = append(s.staged, BufferWrite{Binding: binding, Offset: offset, Data: data})
}

func (s *bufferSet) Flush(d Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() { s.staged = s.staged[:0] }()
	for _, w := range s.staged {
		slot, ok := s.slots[w.Binding]
		if !ok {
			return fmt.Errorf("%s: no buffer at binding %d", s.label, w.Binding)
		}
		if err := d.WriteBuffer(slot.buffer, w.Offset, w.Data); err != nil {
			return fmt.Errorf("%s: write binding %d: %w", s.label, w.Binding, err)
		}
	}
	return nil
}

func (s *bufferSet) OwnedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, slot := range s.slots {
		if slot.ownership == OwnershipOwned {
			n++
		}
	}
	return n
}

func (s *bufferSet) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return
	}
	s.released = true

	if s.bindGroup != nil {
		s.bindGroup.Release()
		s.bindGroup = nil
	}
	for binding, slot := range s.slots {
		if slot.ownership == OwnershipOwned {
			slot.buffer.Release()
		}
		delete(s.slots, binding)
	}
	s.staged = nil
}
