package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"voiceorb/stream"
)

// DefaultMaxBytes bounds a Buffer when no quota is configured.
const DefaultMaxBytes = 64 << 20

var (
	ErrAppendInFlight  = errors.New("player: append already in flight")
	ErrEnded           = errors.New("player: buffer already ended")
	ErrQuotaExceeded   = errors.New("player: buffer quota exceeded")
	ErrUnsupportedData = errors.New("player: data does not match the declared format")
	ErrReaderClosed    = errors.New("player: reader closed")
)

// Buffer is a growable store of encoded audio. It is the append target for
// a streamed response and the source every decoder reads from. Bytes are
// retained for the buffer's lifetime so a session can be rebound and played
// again from the start.
type Buffer struct {
	codec       Codec
	contentType string
	maxBytes    int

	mu      sync.Mutex
	data    []byte
	busy    bool
	ended   bool
	sniffed bool
	aborted error
	changed chan struct{}
}

// NewBuffer returns an empty Buffer for the given content type.
func NewBuffer(contentType string, maxBytes int) *Buffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Buffer{
		codec:       CodecFor(contentType),
		contentType: contentType,
		maxBytes:    maxBytes,
		changed:     make(chan struct{}),
	}
}

// Codec returns the codec implied by the content type.
func (b *Buffer) Codec() Codec { return b.codec }

// ContentType returns the declared content type.
func (b *Buffer) ContentType() string { return b.contentType }

// Append starts appending c. The returned channel yields one completion.
// Appending while another append is in flight fails with ErrAppendInFlight.
func (b *Buffer) Append(c stream.Chunk) <-chan error {
	done := make(chan error, 1)

	b.mu.Lock()
	switch {
	case b.aborted != nil:
		done <- b.aborted
	case b.busy:
		done <- ErrAppendInFlight
	case b.ended:
		done <- ErrEnded
	}
	if len(done) > 0 {
		b.mu.Unlock()
		return done
	}
	b.busy = true
	b.mu.Unlock()

	go func() {
		done <- b.commit(c.Data)
	}()
	return done
}

func (b *Buffer) commit(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { b.busy = false }()

	if b.aborted != nil {
		return b.aborted
	}
	if len(b.data)+len(p) > b.maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrQuotaExceeded, b.maxBytes)
	}
	if !b.sniffed {
		if b.codec == CodecUnknown {
			return fmt.Errorf("%w: no decoder for %q", ErrUnsupportedData, b.contentType)
		}
		head := make([]byte, 0, len(b.data)+len(p))
		head = append(append(head, b.data...), p...)
		if len(head) >= b.codec.sniffLen() {
			if !b.codec.sniff(head) {
				return fmt.Errorf("%w: not %s", ErrUnsupportedData, b.codec)
			}
			b.sniffed = true
		}
	}
	b.data = append(b.data, p...)
	b.notify()
	return nil
}

// EndOfStream marks the buffer complete. Readers see io.EOF once they have
// consumed everything.
func (b *Buffer) EndOfStream() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.aborted != nil:
		return b.aborted
	case b.busy:
		return ErrAppendInFlight
	case b.ended:
		return nil
	}
	b.ended = true
	b.notify()
	return nil
}

// Abort fails every current and future reader with err.
func (b *Buffer) Abort(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.aborted == nil {
		b.aborted = err
		b.notify()
	}
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Ended reports whether end-of-stream was signalled.
func (b *Buffer) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

// WaitFor blocks until at least n bytes are buffered, the stream ended or
// ctx is done.
func (b *Buffer) WaitFor(ctx context.Context, n int) error {
	for {
		b.mu.Lock()
		if b.aborted != nil {
			err := b.aborted
			b.mu.Unlock()
			return err
		}
		if len(b.data) >= n || b.ended {
			b.mu.Unlock()
			return nil
		}
		ch := b.changed
		b.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// notify wakes every waiter. Callers hold b.mu.
func (b *Buffer) notify() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// NewReader returns a reader positioned at the first byte. Reads block while
// the buffer is drained but not ended.
func (b *Buffer) NewReader() *BufferReader {
	return &BufferReader{b: b, done: make(chan struct{})}
}

// BufferReader reads a Buffer from the start. It is safe to Close from
// another goroutine to unblock a pending Read.
type BufferReader struct {
	b    *Buffer
	off  int
	once sync.Once
	done chan struct{}
}

func (r *BufferReader) Read(p []byte) (int, error) {
	for {
		select {
		case <-r.done:
			return 0, ErrReaderClosed
		default:
		}

		r.b.mu.Lock()
		if r.b.aborted != nil {
			err := r.b.aborted
			r.b.mu.Unlock()
			return 0, err
		}
		if r.off < len(r.b.data) {
			n := copy(p, r.b.data[r.off:])
			r.off += n
			r.b.mu.Unlock()
			return n, nil
		}
		if r.b.ended {
			r.b.mu.Unlock()
			return 0, io.EOF
		}
		ch := r.b.changed
		r.b.mu.Unlock()

		select {
		case <-ch:
		case <-r.done:
			return 0, ErrReaderClosed
		}
	}
}

// Close unblocks pending reads. It is idempotent.
func (r *BufferReader) Close() error {
	r.once.Do(func() { close(r.done) })
	return nil
}
