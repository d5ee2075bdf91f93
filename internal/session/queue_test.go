package session

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/rmlink/internal/protocol"
)

func TestQueue_SendsOneAtATime(t *testing.T) {
	var inflight, overlaps atomic.Int32
	dev := newFakeDevice(t, 0x2787, nil)
	dev.setHandler(func(req *protocol.Packet) *fakeReply {
		if inflight.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.AfterFunc(15*time.Millisecond, func() { inflight.Add(-1) })
		return &fakeReply{ack: protocol.AckPlain, delay: 20 * time.Millisecond}
	})
	s := dev.dial(t)

	q := s.NewQueue()
	var results []<-chan QueueResult
	for i := byte(0); i < 4; i++ {
		ch, err := q.Enqueue([]byte{0x26, 0x00, i})
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		results = append(results, ch)
	}

	for i, ch := range results {
		select {
		case res := <-ch:
			if res.Err != nil {
				t.Errorf("item %d error = %v", i, res.Err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("item %d never completed", i)
		}
	}

	if n := overlaps.Load(); n != 0 {
		t.Errorf("%d sends overlapped an unfinished one", n)
	}

	reqs := dev.received()
	if len(reqs) != 4 {
		t.Fatalf("device received %d requests, want 4", len(reqs))
	}
	for i, req := range reqs {
		if req.Payload[6] != byte(i) {
			t.Errorf("request %d carried code %d, want FIFO order", i, req.Payload[6])
		}
	}

	q.Close()
	select {
	case <-q.Done():
	case <-time.After(time.Second):
		t.Fatal("queue did not stop after Close")
	}
	if _, err := q.Enqueue([]byte{0x26}); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue() after Close error = %v, want ErrClosed", err)
	}
}

func TestQueue_TimeoutDoesNotStall(t *testing.T) {
	dev := newFakeDevice(t, 0x2787, func(req *protocol.Packet) *fakeReply {
		// Drop the first code only.
		if req.Payload[4] == 0xaa {
			return nil
		}
		return &fakeReply{ack: protocol.AckPlain}
	})
	s := dev.dial(t, WithTimeout(50*time.Millisecond))

	q := s.NewQueue()
	defer q.Close()

	first, _ := q.Enqueue([]byte{0xaa})
	second, _ := q.Enqueue([]byte{0xbb})

	if res := <-first; !errors.Is(res.Err, ErrRequestTimeout) {
		t.Errorf("first error = %v, want ErrRequestTimeout", res.Err)
	}
	if res := <-second; res.Err != nil {
		t.Errorf("second error = %v", res.Err)
	}
}

func TestQueue_DrainsOnClose(t *testing.T) {
	dev := newFakeDevice(t, 0x2787, func(*protocol.Packet) *fakeReply {
		return &fakeReply{ack: protocol.AckPlain, delay: 10 * time.Millisecond}
	})
	s := dev.dial(t)

	q := s.NewQueue()
	a, _ := q.Enqueue([]byte{0x01})
	b, _ := q.Enqueue([]byte{0x02})
	q.Close()

	for _, ch := range []<-chan QueueResult{a, b} {
		if res := <-ch; res.Err != nil {
			t.Errorf("queued item error = %v", res.Err)
		}
	}
	<-q.Done()
	if q.Len() != 0 {
		t.Errorf("Len() = %d after drain", q.Len())
	}
}
