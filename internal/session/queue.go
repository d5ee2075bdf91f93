package session

import (
	"context"
	"sync"

	"github.com/muurk/rmlink/internal/logging"
	"go.uber.org/zap"
)

// QueueResult is the outcome of a queued send
type QueueResult struct {
	Reply *Reply
	Err   error
}

type queueItem struct {
	code   []byte
	result chan QueueResult
}

// Queue serializes SendData calls for one device: each code is sent only
// after the previous one completed or timed out.
type Queue struct {
	session *Session

	mu     sync.Mutex
	items  []*queueItem
	closed bool

	wake chan struct{}
	done chan struct{}
}

// NewQueue starts a send queue on the session
func (s *Session) NewQueue() *Queue {
	q := &Queue{
		session: s,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue adds a code to the queue. The returned channel receives exactly
// one result.
func (q *Queue) Enqueue(code []byte) (<-chan QueueResult, error) {
	item := &queueItem{
		code:   append([]byte(nil), code...),
		result: make(chan QueueResult, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	q.items = append(q.items, item)
	depth := len(q.items)
	q.mu.Unlock()

	logging.Debug("Code queued",
		zap.String("mac", q.session.mac.Hex()),
		zap.Int("depth", depth),
	)

	q.signal()
	return item.result, nil
}

// Len returns the number of codes not yet sent
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting codes. Codes already queued are still sent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Done is closed once the queue is closed and drained
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		item.result <- q.process(item.code)
	}
}

func (q *Queue) process(code []byte) QueueResult {
	req, err := q.session.SendData(code)
	if err != nil {
		logging.Error("Queued send failed", zap.String("mac", q.session.mac.Hex()), zap.Error(err))
		return QueueResult{Err: err}
	}
	reply, err := req.Wait(context.Background())
	if err != nil {
		logging.Warn("Queued send did not complete",
			zap.String("mac", q.session.mac.Hex()),
			zap.Uint16("request_id", req.ID),
			zap.Error(err),
		)
	}
	return QueueResult{Reply: reply, Err: err}
}
