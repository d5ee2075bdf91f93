package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/muurk/rmlink/internal/devicetype"
	"github.com/muurk/rmlink/internal/logging"
	"github.com/muurk/rmlink/internal/protocol"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout is the per-request reply deadline
	DefaultTimeout = 5 * time.Second

	// DefaultInitialCounter is the first request id a session uses
	DefaultInitialCounter uint16 = 4444

	// DefaultEventBuffer is the channel size of each subscription
	DefaultEventBuffer = 16

	maxDatagramSize = 2048
)

// State is the handshake state of a session
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Ready
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Session
type Option func(*Session)

// WithTimeout sets the reply deadline for every request
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithInitialCounter sets the first request id
func WithInitialCounter(c uint16) Option {
	return func(s *Session) {
		s.counter = c
	}
}

// WithEventBuffer sets the channel size for new subscriptions
func WithEventBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.eventBuffer = n
		}
	}
}

// Session is the protocol state for one device: its socket, session key and
// id, request counter and the table of requests waiting for a reply.
type Session struct {
	conn        net.PacketConn
	remote      net.Addr
	mac         protocol.MAC
	info        devicetype.Info
	iv          protocol.IV
	timeout     time.Duration
	eventBuffer int

	// mu guards the key, id, counter, state and pending table. Encoding a
	// request and rotating the key both happen under it.
	mu      sync.Mutex
	key     protocol.Key
	id      protocol.SessionID
	counter uint16
	state   State
	pending map[uint16]*Request
	closed  bool

	subsMu sync.RWMutex
	subs   map[uuid.UUID]*Subscription

	loopDone chan struct{}
}

// New builds a session for a device reachable at remote over conn.
// The session takes ownership of conn on success and reads from it until
// Close. Unsupported and unknown device types are rejected with an error
// wrapping devicetype.ErrUnsupported or devicetype.ErrUnknown.
func New(conn net.PacketConn, remote net.Addr, mac protocol.MAC, deviceType uint16, opts ...Option) (*Session, error) {
	info, err := devicetype.Validate(deviceType)
	if err != nil {
		return nil, err
	}

	s := &Session{
		conn:        conn,
		remote:      remote,
		mac:         mac,
		info:        info,
		iv:          protocol.DefaultIV(),
		timeout:     DefaultTimeout,
		eventBuffer: DefaultEventBuffer,
		key:         protocol.DefaultKey(),
		counter:     DefaultInitialCounter,
		state:       Unauthenticated,
		pending:     make(map[uint16]*Request),
		subs:        make(map[uuid.UUID]*Subscription),
		loopDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.readLoop()

	logging.LogDevice("session created", mac.Hex(), remote.String(), deviceType)
	return s, nil
}

// Dial binds an ephemeral UDP port and builds a session on it
func Dial(ctx context.Context, remote *net.UDPAddr, mac protocol.MAC, deviceType uint16, opts ...Option) (*Session, error) {
	if _, err := devicetype.Validate(deviceType); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return nil, &TransportError{Op: "bind", Err: err}
	}

	s, err := New(conn, remote, mac, deviceType, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// MAC returns the device address
func (s *Session) MAC() protocol.MAC { return s.mac }

// Info returns the device classification
func (s *Session) Info() devicetype.Info { return s.info }

// Remote returns the device's UDP address
func (s *Session) Remote() net.Addr { return s.remote }

// LocalAddr returns the address the session receives on
func (s *Session) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// State returns the handshake state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Key returns the current session key
func (s *Session) Key() protocol.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// SessionID returns the current device-assigned session id
func (s *Session) SessionID() protocol.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Pending returns the number of requests waiting for a reply
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// send encodes and transmits a command and registers it for correlation
func (s *Session) send(command byte, payload []byte, onDone func(*Reply, error)) (*Request, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}

	id := s.counter
	s.counter++
	if _, busy := s.pending[id]; busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrRequestIDInUse, id)
	}

	pkt := &protocol.Packet{
		Command:    command,
		DeviceType: s.info.Code,
		Counter:    id,
		MAC:        s.mac,
		SessionID:  s.id,
		Payload:    payload,
	}
	data, err := pkt.Encode(s.key, s.iv)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	req := newRequest(id, command)
	req.onDone = onDone
	s.pending[id] = req
	req.timer = time.AfterFunc(s.timeout, func() { s.expire(req) })
	s.mu.Unlock()

	logging.LogRawBytes("Request payload", payload)
	logging.LogPacket("sent", s.mac.Hex(), command, id, data)

	if _, err := s.conn.WriteTo(data, s.remote); err != nil {
		terr := &TransportError{Op: "send", Err: err}
		logging.Error("Failed to send packet",
			zap.String("mac", s.mac.Hex()),
			zap.Uint16("request_id", id),
			zap.Error(err),
		)
		s.complete(id, nil, terr)
		return nil, terr
	}

	return req, nil
}

// complete removes a pending request and finishes it
func (s *Session) complete(id uint16, reply *Reply, err error) bool {
	s.mu.Lock()
	req, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		logging.Debug("No pending request for reply",
			zap.String("mac", s.mac.Hex()),
			zap.Uint16("request_id", id),
		)
		return false
	}

	req.timer.Stop()
	if reply != nil {
		reply.RequestID = id
	}
	req.finish(reply, err)

	if reply != nil {
		logging.Info("Response received",
			zap.String("mac", s.mac.Hex()),
			zap.Uint16("request_id", id),
			zap.String("ack", fmt.Sprintf("0x%02x", reply.Ack)),
			zap.Duration("rtt", reply.RTT),
		)
	}
	return true
}

// expire fails a request whose deadline passed. A reply that already
// completed it wins.
func (s *Session) expire(req *Request) {
	s.mu.Lock()
	if s.pending[req.ID] != req {
		s.mu.Unlock()
		return
	}
	delete(s.pending, req.ID)
	s.mu.Unlock()

	logging.Warn("Request timed out",
		zap.String("mac", s.mac.Hex()),
		zap.Uint16("request_id", req.ID),
		zap.Duration("timeout", s.timeout),
	)
	req.finish(nil, fmt.Errorf("%w: request %d after %s", ErrRequestTimeout, req.ID, s.timeout))
}

func (s *Session) readLoop() {
	defer close(s.loopDone)

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warn("Receive failed",
				zap.String("mac", s.mac.Hex()),
				zap.Error(&TransportError{Op: "receive", Err: err}),
			)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		s.handleDatagram(data, addr)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// handleDatagram decodes a reply and routes it by ack tag
func (s *Session) handleDatagram(data []byte, addr net.Addr) {
	s.mu.Lock()
	key := s.key
	s.mu.Unlock()

	resp, err := protocol.Decode(data, key, s.iv)
	if err != nil {
		var devErr *protocol.DeviceError
		if errors.As(err, &devErr) {
			logging.Warn("Device reported error",
				zap.String("mac", s.mac.Hex()),
				zap.Uint16("request_id", devErr.RequestID),
				zap.String("error_code", fmt.Sprintf("0x%04x", devErr.Code)),
			)
			s.complete(devErr.RequestID, nil, devErr)
			return
		}
		logging.Warn("Dropping malformed datagram",
			zap.String("mac", s.mac.Hex()),
			zap.String("remote_addr", addr.String()),
			zap.Error(err),
		)
		return
	}

	logging.LogPacket("received", s.mac.Hex(), resp.Ack, resp.RequestID, data)

	switch resp.Ack {
	case protocol.AckHandshake:
		hs, err := protocol.ParseHandshake(resp.Payload)
		if err != nil {
			logging.Warn("Dropping handshake reply", zap.String("mac", s.mac.Hex()), zap.Error(err))
			return
		}
		s.mu.Lock()
		s.key = hs.Key
		s.id = hs.SessionID
		s.state = Ready
		s.mu.Unlock()

		logging.Info("Handshake complete",
			zap.String("mac", s.mac.Hex()),
			zap.String("session_id", hs.SessionID.String()),
			zap.Uint16("request_id", resp.RequestID),
		)
		s.complete(resp.RequestID, &Reply{Ack: resp.Ack, Payload: resp.Payload}, nil)

	case protocol.AckData, protocol.AckDataAlt:
		payload := protocol.StripHeader(resp.Payload, s.info.Headers.Request)
		logging.LogRawBytes("Reply payload", payload)

		ev := protocol.Dispatch(payload, s.info.RM4())
		if ev != nil {
			logging.Debug("Dispatched event",
				zap.String("mac", s.mac.Hex()),
				zap.String("event", ev.String()),
			)
			s.publish(ev)
		}
		s.complete(resp.RequestID, &Reply{Ack: resp.Ack, Payload: payload, Event: ev}, nil)

	case protocol.AckPlain:
		logging.Debug("Command acknowledged",
			zap.String("mac", s.mac.Hex()),
			zap.Uint16("request_id", resp.RequestID),
		)
		s.complete(resp.RequestID, &Reply{Ack: resp.Ack}, nil)

	default:
		logging.Warn("Unhandled ack tag",
			zap.String("mac", s.mac.Hex()),
			zap.String("ack", fmt.Sprintf("0x%02x", resp.Ack)),
			zap.Uint16("request_id", resp.RequestID),
		)
	}
}

// Close fails every pending request with ErrClosed, ends all subscriptions
// and releases the socket. The device is not notified.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.pending
	s.pending = make(map[uint16]*Request)
	s.mu.Unlock()

	for _, req := range pending {
		req.timer.Stop()
		req.finish(nil, ErrClosed)
	}

	s.subsMu.Lock()
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.events)
	}
	s.subsMu.Unlock()

	err := s.conn.Close()
	<-s.loopDone

	logging.LogDevice("session closed", s.mac.Hex(), s.remote.String(), s.info.Code)
	return err
}
