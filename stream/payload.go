package stream

import (
	"context"
	"io"
)

// Payload is a Source over a complete response body. It yields the whole
// body as a single chunk, so a buffered reply goes through the same Appender
// as a streamed one.
type Payload struct {
	data []byte
	done bool
}

// ReadPayload validates resp and reads its body to the end, failing with
// TransportFailure if the read breaks off. The body is closed on return.
// limit bounds the payload size; zero means unbounded.
func ReadPayload(ctx context.Context, resp *Response, limit int) (*Payload, error) {
	if err := resp.Validate(); err != nil {
		resp.Close()
		return nil, err
	}
	defer resp.Close()

	stop := context.AfterFunc(ctx, func() { resp.Close() })
	defer stop()

	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(r, int64(limit)+1)
	}
	data, err := io.ReadAll(r)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, Wrap(KindTransportFailure, err)
	}
	if limit > 0 && len(data) > limit {
		return nil, Errorf(KindBufferAppend, "payload exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, Errorf(KindTransportFailure, "empty payload")
	}
	return &Payload{data: data}, nil
}

// NewPayload wraps data already in memory.
func NewPayload(data []byte) *Payload {
	return &Payload{data: data}
}

// Len returns the payload size in bytes.
func (p *Payload) Len() int { return len(p.data) }

func (p *Payload) Next(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if p.done {
		return Chunk{}, io.EOF
	}
	p.done = true
	return Chunk{Seq: 0, Data: p.data}, nil
}
