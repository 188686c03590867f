package player

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

const (
	pumpBlockSize = 1024
	pumpDepth     = 64
)

// pump decodes on its own goroutine so a decoder waiting for network bytes
// never holds the speaker lock. The speaker side reads without blocking and
// plays silence on underrun.
type pump struct {
	src    beep.Streamer
	blocks chan [][2]float64
	cur    [][2]float64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu  sync.Mutex
	err error
}

func startPump(src beep.Streamer) *pump {
	p := &pump{
		src:    src,
		blocks: make(chan [][2]float64, pumpDepth),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *pump) run() {
	defer close(p.done)
	defer close(p.blocks)
	for {
		buf := make([][2]float64, pumpBlockSize)
		n, ok := p.src.Stream(buf)
		if n > 0 {
			select {
			case p.blocks <- buf[:n]:
			case <-p.stop:
				return
			}
		}
		if !ok {
			p.mu.Lock()
			p.err = p.src.Err()
			p.mu.Unlock()
			return
		}
	}
}

// Stream fills samples from decoded blocks. It reports false only after the
// decoder finished and every block was consumed.
func (p *pump) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		if len(p.cur) == 0 {
			select {
			case blk, ok := <-p.blocks:
				if !ok {
					return filled, filled > 0
				}
				p.cur = blk
			default:
				clear(samples[filled:])
				return len(samples), true
			}
		}
		n := copy(samples[filled:], p.cur)
		p.cur = p.cur[n:]
		filled += n
	}
	return filled, true
}

func (p *pump) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stop ends the decode goroutine and waits for it. The decoder's reader must
// be closed first if the decoder may be blocked on it.
func (p *pump) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}
