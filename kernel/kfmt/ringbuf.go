package kfmt

import "io"

// ringBufferSize defines the size of the ring buffer that captures log output
// before an output sink is attached. The ring buffer size must always be a
// power of 2.
const ringBufferSize = 4096

// ringBuffer keeps the most recent ringBufferSize bytes written to it. Once
// full, each new byte overwrites the oldest unread byte.
type ringBuffer struct {
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
}

// Write writes len(p) bytes from p to the ringBuffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read reads up to len(p) bytes into p. It returns io.EOF once all buffered
// bytes have been consumed.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.rIndex == rb.wIndex {
		return 0, io.EOF
	}

	// Unread bytes either sit in [rIndex, wIndex) or wrap around the end
	// of the buffer; in the latter case this call drains up to the end.
	limit := rb.wIndex
	if rb.rIndex > rb.wIndex {
		limit = ringBufferSize
	}

	n := copy(p, rb.buffer[rb.rIndex:limit])
	rb.rIndex = (rb.rIndex + n) & (ringBufferSize - 1)
	return n, nil
}

// Len returns the number of unread bytes.
func (rb *ringBuffer) Len() int {
	return (rb.wIndex - rb.rIndex) & (ringBufferSize - 1)
}

// Reset discards any buffered data.
func (rb *ringBuffer) Reset() {
	rb.rIndex, rb.wIndex = 0, 0
}
