package replicate

import "io"

const (
	// broadcastChunkSize is how much of the source each pump iteration
	// reads.
	broadcastChunkSize = 32 * 1024
	// broadcastQueueDepth bounds the number of chunks a slow consumer
	// can fall behind before the pump blocks.
	broadcastQueueDepth = 256
)

// chunk is one unit of broadcast data. A chunk carries either bytes or
// a terminal read error.
type chunk struct {
	data []byte
	err  error
}

// newBroadcast fans src out to n readers. A single pump goroutine reads
// the source once and hands each chunk to every consumer over a bounded
// queue, so the whole body is never buffered in memory. Consumers that
// stop reading must drain their reader or the pump stalls.
func newBroadcast(src io.Reader, n int) []io.Reader {
	queues := make([]chan chunk, n)
	readers := make([]io.Reader, n)
	for i := range queues {
		queues[i] = make(chan chunk, broadcastQueueDepth)
		readers[i] = &queueReader{queue: queues[i]}
	}

	go func() {
		for {
			buf := make([]byte, broadcastChunkSize)
			read, err := src.Read(buf)
			if read > 0 {
				c := chunk{data: buf[:read]}
				for _, q := range queues {
					q <- c
				}
			}
			if err != nil {
				if err != io.EOF {
					for _, q := range queues {
						q <- chunk{err: err}
					}
				}
				for _, q := range queues {
					close(q)
				}
				return
			}
		}
	}()

	return readers
}

// queueReader consumes one broadcast queue as an io.Reader. Chunk data
// is shared across consumers and must not be modified.
type queueReader struct {
	queue <-chan chunk
	cur   []byte
	err   error
}

func (q *queueReader) Read(p []byte) (int, error) {
	for len(q.cur) == 0 {
		if q.err != nil {
			return 0, q.err
		}
		c, ok := <-q.queue
		if !ok {
			q.err = io.EOF
			return 0, io.EOF
		}
		if c.err != nil {
			q.err = c.err
			return 0, c.err
		}
		q.cur = c.data
	}

	n := copy(p, q.cur)
	q.cur = q.cur[n:]
	return n, nil
}
