package gpu

// BufferWrite describes a single staged buffer write targeting a binding of a BufferSet at a given byte offset.
type BufferWrite struct {
	Binding uint32
	Offset  uint64
	Data    []byte
}
