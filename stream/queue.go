package stream

// ChunkQueue is a FIFO of chunks waiting for the sink to become idle.
type ChunkQueue struct {
	items []Chunk
	bytes int
}

// Push appends c to the tail.
func (q *ChunkQueue) Push(c Chunk) {
	q.items = append(q.items, c)
	q.bytes += len(c.Data)
}

// Pop removes and returns the head.
func (q *ChunkQueue) Pop() (Chunk, bool) {
	if len(q.items) == 0 {
		return Chunk{}, false
	}
	c := q.items[0]
	q.items[0] = Chunk{}
	q.items = q.items[1:]
	q.bytes -= len(c.Data)
	return c, true
}

// Len returns the number of queued chunks.
func (q *ChunkQueue) Len() int { return len(q.items) }

// Bytes returns the number of queued bytes.
func (q *ChunkQueue) Bytes() int { return q.bytes }

// Clear drops everything queued.
func (q *ChunkQueue) Clear() {
	clear(q.items)
	q.items = q.items[:0]
	q.bytes = 0
}
