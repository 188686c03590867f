package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultReadSize is the largest chunk the Ingestor produces.
const DefaultReadSize = 4096

// Chunk is an ordered, immutable range of encoded audio.
type Chunk struct {
	Seq  int
	Data []byte
}

// Len returns the chunk size in bytes.
func (c Chunk) Len() int { return len(c.Data) }

// Source yields chunks in order. Next returns io.EOF once exhausted.
type Source interface {
	Next(ctx context.Context) (Chunk, error)
}

// Ingestor reads a response body into chunks. It is lazy, finite and cannot
// be restarted: once Next returned a terminal result it keeps returning it.
type Ingestor struct {
	resp     *Response
	readSize int

	// mu serializes Next; Close must not take it since a read may block.
	mu     sync.Mutex
	seq    int
	final  error
	closed atomic.Bool
}

// NewIngestor validates resp and returns an Ingestor over its body. A failed
// precondition is an InvalidResponse and nothing is read.
func NewIngestor(resp *Response, readSize int) (*Ingestor, error) {
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	return &Ingestor{resp: resp, readSize: readSize}, nil
}

// Next returns the next chunk. A read failure is a TransportFailure; the
// Appender reclassifies it once audio has been appended.
func (in *Ingestor) Next(ctx context.Context) (Chunk, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.final != nil {
		return Chunk{}, in.final
	}
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if in.closed.Load() {
		in.final = Errorf(KindTransportFailure, "read from closed stream")
		return Chunk{}, in.final
	}

	buf := make([]byte, in.readSize)
	for {
		n, err := in.resp.Body.Read(buf)
		if n > 0 {
			c := Chunk{Seq: in.seq, Data: buf[:n:n]}
			in.seq++
			if err != nil && !errors.Is(err, io.EOF) {
				// Deliver the bytes now, report the failure on the next call.
				in.final = in.readErr(ctx, err)
			} else if errors.Is(err, io.EOF) {
				in.final = io.EOF
			}
			return c, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				in.final = io.EOF
			} else {
				in.final = in.readErr(ctx, err)
			}
			return Chunk{}, in.final
		}
	}
}

func (in *Ingestor) readErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if in.closed.Load() {
		return context.Canceled
	}
	return Wrap(KindTransportFailure, err)
}

// Close closes the response body, unblocking a pending read.
func (in *Ingestor) Close() error {
	if !in.closed.CompareAndSwap(false, true) {
		return nil
	}
	return in.resp.Close()
}
