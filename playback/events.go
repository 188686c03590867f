package playback

import (
	"sync"
	"time"

	"voiceorb/stream"
)

// Event reports a status change of one session. A notice that changes no
// status, such as a stream ending early, has From == To.
type Event struct {
	Session string
	Origin  Origin
	From    Status
	To      Status
	Kind    stream.Kind
	Partial bool

	// FallingBack is set on the Errored event of a streaming session whose
	// reply continues in a buffered session.
	FallingBack bool
	Text        string
	At          time.Time
}

// Notice reports whether the event carries no transition.
func (e Event) Notice() bool { return e.From == e.To }

// dispatcher delivers events in the order they were pushed. Pushing never
// blocks; a single goroutine forwards the queue to the consumer.
type dispatcher struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	wake   chan struct{}
	stop   chan struct{}
	out    chan Event
	done   chan struct{}
}

func newDispatcher(size int) *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		out:  make(chan Event, size),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) push(e Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, e)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	defer close(d.out)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, e := range batch {
			select {
			case d.out <- e:
			case <-d.stop:
				return
			}
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-d.wake:
		case <-d.stop:
			return
		}
	}
}

// close flushes queued events to the consumer until timeout, then stops.
func (d *dispatcher) close(timeout time.Duration) {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
	select {
	case <-d.done:
	case <-time.After(timeout):
		close(d.stop)
		<-d.done
	}
}
