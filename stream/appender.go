package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Sink is a growable playable buffer. Append starts an append and returns a
// channel that yields exactly one completion. A sink accepts one append at a
// time.
type Sink interface {
	Append(c Chunk) <-chan error
	EndOfStream() error
}

// Result summarizes a Run.
type Result struct {
	Appended int
	Bytes    int
}

// Appender moves chunks from a Source into a Sink with at most one append in
// flight.
type Appender struct {
	sink      Sink
	log       zerolog.Logger
	onFirst   func()
	onAppend  func(c Chunk, took time.Duration)
	onPartial func(err error)
}

// AppenderOption configures an Appender.
type AppenderOption func(*Appender)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) AppenderOption {
	return func(a *Appender) { a.log = l }
}

// OnFirstAppend registers fn to run once, right after the first successful
// append completes.
func OnFirstAppend(fn func()) AppenderOption {
	return func(a *Appender) { a.onFirst = fn }
}

// OnAppend registers fn to run after every successful append.
func OnAppend(fn func(c Chunk, took time.Duration)) AppenderOption {
	return func(a *Appender) { a.onAppend = fn }
}

// OnPartial registers fn to run when the stream fails after audio was
// appended, before the sink receives end-of-stream.
func OnPartial(fn func(err error)) AppenderOption {
	return func(a *Appender) { a.onPartial = fn }
}

// NewAppender returns an Appender writing into sink.
func NewAppender(sink Sink, opts ...AppenderOption) *Appender {
	a := &Appender{sink: sink, log: zerolog.Nop()}
	for _, o := range opts {
		o(a)
	}
	return a
}

type arrival struct {
	chunk Chunk
	err   error
}

// Run drains src into the sink until the source is exhausted, a failure
// occurs or ctx is done. On a clean end the sink receives end-of-stream once
// no append is outstanding.
//
// Failures before the first successful append keep their kind and nothing is
// finalized. Failures after it are reported as PartialStreamFailure and the
// sink still receives end-of-stream so the buffered audio stays playable.
//
// When Run returns the reader goroutine has exited and src, if it is an
// io.Closer, has been closed.
func (a *Appender) Run(ctx context.Context, src Source) (Result, error) {
	readCtx, cancel := context.WithCancel(ctx)
	arrivals := make(chan arrival)
	readerDone := make(chan struct{})
	go a.read(readCtx, src, arrivals, readerDone)
	defer func() {
		cancel()
		if c, ok := src.(io.Closer); ok {
			_ = c.Close()
		}
		<-readerDone
	}()

	var (
		res      Result
		queue    ChunkQueue
		inflight <-chan error
		current  Chunk
		started  time.Time
		srcDone  bool
		srcErr   error
	)

	for {
		if inflight == nil {
			if c, ok := queue.Pop(); ok {
				current, started = c, time.Now()
				inflight = a.sink.Append(c)
			} else if srcDone {
				if err := a.sink.EndOfStream(); err != nil {
					return res, Wrap(KindBufferAppend, err)
				}
				a.log.Debug().Int("chunks", res.Appended).Int("bytes", res.Bytes).Msg("end of stream")
				return res, nil
			} else if srcErr != nil {
				return res, a.fail(res, srcErr)
			}
		}

		in := arrivals
		if srcDone || srcErr != nil {
			in = nil
		}

		select {
		case ar := <-in:
			switch {
			case ar.err == nil:
				queue.Push(ar.chunk)
			case errors.Is(ar.err, io.EOF):
				srcDone = true
			default:
				srcErr = ar.err
				a.log.Debug().Err(ar.err).Int("queued", queue.Len()).Msg("source failed")
			}

		case err := <-inflight:
			inflight = nil
			if err != nil {
				a.log.Debug().Err(err).Int("seq", current.Seq).Msg("append rejected")
				return res, a.fail(res, Wrap(KindBufferAppend, err))
			}
			res.Appended++
			res.Bytes += current.Len()
			if a.onAppend != nil {
				a.onAppend(current, time.Since(started))
			}
			if res.Appended == 1 && a.onFirst != nil {
				a.onFirst()
			}

		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

// fail classifies err and, once audio was appended, finalizes the sink so
// what is buffered can still play out.
func (a *Appender) fail(res Result, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if res.Appended == 0 {
		return err
	}
	var e *Error
	if errors.As(err, &e) {
		err = e.Err
	}
	partial := &Error{Kind: KindPartialStream, Err: err}
	if a.onPartial != nil {
		a.onPartial(partial)
	}
	if eosErr := a.sink.EndOfStream(); eosErr != nil {
		a.log.Warn().Err(eosErr).Msg("end of stream after failure")
	}
	return partial
}

func (a *Appender) read(ctx context.Context, src Source, out chan<- arrival, done chan<- struct{}) {
	defer close(done)
	for {
		c, err := src.Next(ctx)
		select {
		case out <- arrival{chunk: c, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}
