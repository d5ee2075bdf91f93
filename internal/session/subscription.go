package session

import (
	"github.com/google/uuid"
	"github.com/muurk/rmlink/internal/logging"
	"github.com/muurk/rmlink/internal/protocol"
	"go.uber.org/zap"
)

// Subscription receives the events decoded from a session's replies
type Subscription struct {
	id      uuid.UUID
	events  chan protocol.Event
	session *Session
}

// Subscribe registers a new event subscription. Events are dropped for a
// subscriber whose channel is full.
func (s *Session) Subscribe() (*Subscription, error) {
	sub := &Subscription{
		id:      uuid.New(),
		events:  make(chan protocol.Event, s.eventBuffer),
		session: s,
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.isClosed() {
		return nil, ErrClosed
	}
	s.subs[sub.id] = sub
	return sub, nil
}

// ID returns the unique ID for this subscription
func (sub *Subscription) ID() string {
	return sub.id.String()
}

// Events returns the event channel. It is closed when the subscription or
// its session is closed.
func (sub *Subscription) Events() <-chan protocol.Event {
	return sub.events
}

// Close detaches the subscription from its session
func (sub *Subscription) Close() error {
	s := sub.session
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if _, ok := s.subs[sub.id]; !ok {
		return ErrClosed
	}
	delete(s.subs, sub.id)
	close(sub.events)
	return nil
}

func (s *Session) publish(ev protocol.Event) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		select {
		case sub.events <- ev:
		default:
			logging.Warn("Dropping event for slow subscriber",
				zap.String("mac", s.mac.Hex()),
				zap.String("subscription", sub.ID()),
				zap.String("event", ev.Kind()),
			)
		}
	}
}
