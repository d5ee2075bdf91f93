package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/muurk/rmlink/internal/protocol"
	"github.com/muurk/rmlink/internal/protocol/protocoltest"
)

// fakeReply describes how the fake device answers one request
type fakeReply struct {
	ack     byte
	errCode uint16
	payload []byte
	delay   time.Duration
}

// fakeDevice is a loopback UDP peer that decodes requests with the current
// key and answers through handle. Returning nil sends nothing.
type fakeDevice struct {
	t          *testing.T
	conn       net.PacketConn
	mac        protocol.MAC
	deviceType uint16
	handshake  protocol.Handshake

	mu       sync.Mutex
	handle   func(req *protocol.Packet) *fakeReply
	dropAuth bool
	key      protocol.Key
	requests []*protocol.Packet
	lastAddr net.Addr
}

func newFakeDevice(t *testing.T, deviceType uint16, handle func(req *protocol.Packet) *fakeReply) *fakeDevice {
	t.Helper()

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	f := &fakeDevice{
		t:          t,
		conn:       conn,
		mac:        protocol.MAC{0xec, 0x0b, 0xae, 0x8c, 0x43, 0xf1},
		deviceType: deviceType,
		handshake: protocol.Handshake{
			SessionID: protocol.SessionID{0x11, 0x22, 0x33, 0x44},
			Key:       protocol.Key{0xa0, 0xa1, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7, 0xa8, 0xa9, 0xaa, 0xab, 0xac, 0xad, 0xae, 0xaf},
		},
		handle: handle,
		key:    protocol.DefaultKey(),
	}
	t.Cleanup(func() { conn.Close() })

	go f.serve()
	return f
}

func (f *fakeDevice) serve() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := f.conn.ReadFrom(buf)
		if err != nil {
			return
		}

		f.mu.Lock()
		key := f.key
		f.mu.Unlock()

		req, err := protocoltest.ParseRequest(buf[:n], key, protocol.DefaultIV())
		if err != nil {
			continue
		}

		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.lastAddr = addr
		handle, dropAuth := f.handle, f.dropAuth
		f.mu.Unlock()

		if req.Command == protocol.CommandAuth {
			if dropAuth {
				continue
			}
			f.reply(addr, req.Counter, &fakeReply{
				ack:     protocol.AckHandshake,
				payload: protocoltest.HandshakePayload(f.handshake),
			}, key)
			f.mu.Lock()
			f.key = f.handshake.Key
			f.mu.Unlock()
			continue
		}

		if handle == nil {
			continue
		}
		if r := handle(req); r != nil {
			if r.delay > 0 {
				id := req.Counter
				time.AfterFunc(r.delay, func() { f.reply(addr, id, r, key) })
				continue
			}
			f.reply(addr, req.Counter, r, key)
		}
	}
}

func (f *fakeDevice) reply(addr net.Addr, id uint16, r *fakeReply, key protocol.Key) {
	data, err := protocoltest.EncodeReply(r.ack, id, f.deviceType, f.mac, r.errCode, r.payload, key, protocol.DefaultIV())
	if err != nil {
		f.t.Errorf("encode reply: %v", err)
		return
	}
	f.conn.WriteTo(data, addr)
}

func (f *fakeDevice) setHandler(handle func(req *protocol.Packet) *fakeReply) {
	f.mu.Lock()
	f.handle = handle
	f.mu.Unlock()
}

func (f *fakeDevice) setDropAuth(drop bool) {
	f.mu.Lock()
	f.dropAuth = drop
	f.mu.Unlock()
}

// sendLate sends an unsolicited reply for id to the last client address
func (f *fakeDevice) sendLate(id uint16, r *fakeReply) {
	f.mu.Lock()
	addr, key := f.lastAddr, f.key
	f.mu.Unlock()
	f.reply(addr, id, r, key)
}

func (f *fakeDevice) received() []*protocol.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Packet(nil), f.requests...)
}

func (f *fakeDevice) addr() *net.UDPAddr {
	return f.conn.LocalAddr().(*net.UDPAddr)
}

// dial connects a session to the fake device
func (f *fakeDevice) dial(t *testing.T, opts ...Option) *Session {
	t.Helper()

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s, err := New(conn, f.addr(), f.mac, f.deviceType, opts...)
	if err != nil {
		conn.Close()
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ack answers every request with a plain acknowledgement
func ack(*protocol.Packet) *fakeReply {
	return &fakeReply{ack: protocol.AckPlain}
}
