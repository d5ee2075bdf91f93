package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/muurk/rmlink/internal/protocol"
)

// Reply is the outcome of a completed request
type Reply struct {
	RequestID uint16
	Ack       byte
	Payload   []byte         // Header-stripped for data replies, nil for plain acks
	Event     protocol.Event // Dispatcher result, if the payload carried one
	RTT       time.Duration
}

// Request is a command in flight. It completes exactly once, with a reply,
// a timeout or a failure.
type Request struct {
	ID      uint16
	Command byte

	sentAt time.Time
	timer  *time.Timer
	once   sync.Once
	done   chan struct{}
	reply  *Reply
	err    error
	onDone func(*Reply, error)
}

func newRequest(id uint16, command byte) *Request {
	return &Request{
		ID:      id,
		Command: command,
		sentAt:  time.Now(),
		done:    make(chan struct{}),
	}
}

// finish records the outcome; later calls are ignored
func (r *Request) finish(reply *Reply, err error) bool {
	finished := false
	r.once.Do(func() {
		if reply != nil {
			reply.RTT = time.Since(r.sentAt)
		}
		r.reply, r.err = reply, err
		if r.onDone != nil {
			r.onDone(reply, err)
		}
		close(r.done)
		finished = true
	})
	return finished
}

// Done is closed when the request completes
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request completes or ctx ends.
// Cancelling ctx does not cancel the request; its own deadline still applies.
func (r *Request) Wait(ctx context.Context) (*Reply, error) {
	select {
	case <-r.done:
		return r.reply, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Request) String() string {
	return fmt.Sprintf("Request{id=%d, command=0x%02x}", r.ID, r.Command)
}
