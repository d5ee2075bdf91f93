package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/muurk/rmlink/internal/config"
	"github.com/muurk/rmlink/internal/discovery"
	"github.com/muurk/rmlink/internal/protocol"
	"github.com/muurk/rmlink/internal/protocol/protocoltest"
)

const rmProType = 0x2787

var testMAC = protocol.MAC{0xec, 0x0b, 0xae, 0x8c, 0x43, 0xf1}

// fakeRM is a loopback RM Pro. It announces itself on hello, completes the
// handshake, acks code sends and answers temperature queries with 21.5°C.
type fakeRM struct {
	t    *testing.T
	conn net.PacketConn

	mu    sync.Mutex
	key   protocol.Key
	codes [][]byte
}

func newFakeRM(t *testing.T) *fakeRM {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeRM{t: t, conn: conn, key: protocol.DefaultKey()}
	t.Cleanup(func() { conn.Close() })
	go f.serve()
	return f
}

func (f *fakeRM) addr() *net.UDPAddr {
	return f.conn.LocalAddr().(*net.UDPAddr)
}

func (f *fakeRM) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.codes...)
}

func (f *fakeRM) serve() {
	handshake := protocol.Handshake{
		SessionID: protocol.SessionID{0x01, 0x02, 0x03, 0x04},
		Key:       protocol.Key{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f},
	}

	buf := make([]byte, 2048)
	for {
		n, addr, err := f.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		data := buf[:n]

		if n == protocol.HelloSize && data[0x26] == protocol.CommandHello {
			f.conn.WriteTo(protocoltest.BuildAnnouncement(testMAC, rmProType), addr)
			continue
		}

		f.mu.Lock()
		key := f.key
		f.mu.Unlock()
		req, err := protocoltest.ParseRequest(data, key, protocol.DefaultIV())
		if err != nil {
			continue
		}

		var ack byte
		var payload []byte
		switch {
		case req.Command == protocol.CommandAuth:
			ack, payload = protocol.AckHandshake, protocoltest.HandshakePayload(handshake)
		case req.Payload[0] == protocol.SubSendData:
			f.mu.Lock()
			f.codes = append(f.codes, bytes.TrimRight(req.Payload[4:], "\x00"))
			f.mu.Unlock()
			ack = protocol.AckPlain
		case req.Payload[0] == protocol.SubSensorsLegacy:
			ack, payload = protocol.AckData, []byte{protocol.TagTemperature, 0, 0, 0, 21, 5}
		default:
			ack = protocol.AckPlain
		}

		reply, err := protocoltest.EncodeReply(ack, req.Counter, rmProType, testMAC, 0, payload, key, protocol.DefaultIV())
		if err != nil {
			f.t.Errorf("encode reply: %v", err)
			continue
		}
		f.conn.WriteTo(reply, addr)

		if req.Command == protocol.CommandAuth {
			f.mu.Lock()
			f.key = handshake.Key
			f.mu.Unlock()
		}
	}
}

func testRegistry(t *testing.T, f *fakeRM) *config.Registry {
	t.Helper()
	r := config.NewRegistry()
	r.SetDevice(testMAC, "127.0.0.1", f.addr().Port, rmProType)
	if err := r.SetDeviceNickname(testMAC, "living-room"); err != nil {
		t.Fatal(err)
	}
	r.SaveCode("tv-power", []byte{0x26, 0x00, 0x01, 0x02}, testMAC, config.KindIR)
	return r
}

func newTestServer(t *testing.T, f *fakeRM, registry *config.Registry) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(&Config{
		Registry:       registry,
		RequestTimeout: time.Second,
		Scanner: &discovery.Scanner{
			Timeout:       300 * time.Millisecond,
			BroadcastAddr: f.addr(),
			Interfaces:    []net.IP{net.IPv4(127, 0, 0, 1)},
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ts.Close()
	})
	return srv, ts
}

func dialWS(t *testing.T, srv *Server, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + PathWebSocket
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	// Registration happens just after the upgrade response
	deadline := time.Now().Add(time.Second)
	for srv.Hub().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

// message holds the union of Event and Result fields
type message struct {
	Type    string       `json:"type"`
	ID      string       `json:"id"`
	OK      bool         `json:"ok"`
	Error   string       `json:"error"`
	Device  string       `json:"device"`
	Info    *DeviceInfo  `json:"info"`
	Celsius *float64     `json:"celsius"`
	Devices []DeviceInfo `json:"devices"`
	Event   *Event       `json:"event"`
}

// readUntil reads messages until match returns true
func readUntil(t *testing.T, conn *websocket.Conn, match func(message) bool) message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var m message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(m) {
			return m
		}
	}
}

func resultFor(id string) func(message) bool {
	return func(m message) bool { return m.Type == TypeResult && m.ID == id }
}

func TestServer_Bridge(t *testing.T) {
	f := newFakeRM(t)
	srv, ts := newTestServer(t, f, testRegistry(t, f))
	conn := dialWS(t, srv, ts)

	if err := srv.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan() error = %v", err)
	}

	disc := readUntil(t, conn, func(m message) bool { return m.Type == TypeDiscovered })
	if disc.Info == nil || disc.Info.MAC != testMAC.String() {
		t.Fatalf("discovered = %+v", disc)
	}
	if disc.Info.Nickname != "living-room" || disc.Info.State != "ready" || disc.Info.Type != "0x2787" {
		t.Errorf("info = %+v", disc.Info)
	}

	t.Run("send", func(t *testing.T) {
		conn.WriteJSON(Request{ID: "1", Type: RequestSend, Device: "living-room", Data: "26000304"})
		res := readUntil(t, conn, resultFor("1"))
		if !res.OK || res.Error != "" {
			t.Fatalf("result = %+v", res)
		}
	})

	t.Run("send_named", func(t *testing.T) {
		conn.WriteJSON(Request{ID: "2", Type: RequestSendNamed, Name: "tv-power"})
		res := readUntil(t, conn, resultFor("2"))
		if !res.OK {
			t.Fatalf("result = %+v", res)
		}

		codes := f.sent()
		if len(codes) != 2 || !bytes.Equal(codes[1], []byte{0x26, 0x00, 0x01, 0x02}) {
			t.Errorf("codes sent = % x", codes)
		}
	})

	t.Run("temperature", func(t *testing.T) {
		conn.WriteJSON(Request{ID: "3", Type: RequestTemperature, Device: testMAC.Hex()})
		res := readUntil(t, conn, resultFor("3"))
		if !res.OK || res.Event == nil || res.Event.Celsius == nil || *res.Event.Celsius != 21.5 {
			t.Fatalf("result = %+v", res)
		}
	})

	t.Run("devices", func(t *testing.T) {
		conn.WriteJSON(Request{ID: "4", Type: RequestDevices})
		res := readUntil(t, conn, resultFor("4"))
		if len(res.Devices) != 1 || res.Devices[0].MAC != testMAC.String() {
			t.Fatalf("devices = %+v", res.Devices)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			req  Request
			want string
		}{
			{Request{ID: "e1", Type: "reboot"}, "unknown request type"},
			{Request{ID: "e2", Type: RequestSend, Data: "zz"}, "invalid code data"},
			{Request{ID: "e3", Type: RequestSend, Device: "kitchen", Data: "2600"}, "unknown device"},
			{Request{ID: "e4", Type: RequestSendNamed, Name: "missing"}, "unknown code"},
		}
		for _, tt := range tests {
			conn.WriteJSON(tt.req)
			res := readUntil(t, conn, resultFor(tt.req.ID))
			if res.OK || !strings.Contains(res.Error, tt.want) {
				t.Errorf("%s: result = %+v, want error containing %q", tt.req.ID, res, tt.want)
			}
		}

		conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		res := readUntil(t, conn, func(m message) bool { return m.Type == TypeResult && m.Error != "" })
		if !strings.Contains(res.Error, "invalid request") {
			t.Errorf("result = %+v", res)
		}
	})
}

func TestServer_AddConfiguredDevices(t *testing.T) {
	f := newFakeRM(t)
	srv, ts := newTestServer(t, f, testRegistry(t, f))
	conn := dialWS(t, srv, ts)

	srv.AddConfiguredDevices(context.Background())
	if srv.Table().Len() != 1 {
		t.Fatalf("table has %d devices, want 1", srv.Table().Len())
	}
	readUntil(t, conn, func(m message) bool { return m.Type == TypeDiscovered })

	// A rescan must not add the device twice
	if err := srv.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if srv.Table().Len() != 1 {
		t.Errorf("table has %d devices after rescan", srv.Table().Len())
	}
}

func TestServer_HTTP(t *testing.T) {
	f := newFakeRM(t)
	srv, ts := newTestServer(t, f, config.NewRegistry())
	if err := srv.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + PathDevices)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var devices []DeviceInfo
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].Model != "Broadlink RM2 Pro Plus v2" {
		t.Errorf("devices = %+v", devices)
	}

	resp, err = http.Get(ts.URL + PathHealth)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var health struct {
		Status  string `json:"status"`
		Devices int    `json:"devices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.Devices != 1 {
		t.Errorf("health = %+v", health)
	}

	resp, err = http.Post(ts.URL+PathDevices, "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", resp.StatusCode)
	}
}

func TestServer_ResolveWithoutDevices(t *testing.T) {
	srv, err := New(&Config{})
	if err != nil {
		t.Fatal(err)
	}
	res := srv.Do(context.Background(), Request{ID: "1", Type: RequestTemperature})
	if res.OK || !strings.Contains(res.Error, ErrUnknownDevice.Error()) {
		t.Errorf("result = %+v", res)
	}
	if _, err := srv.resolve("ec:0b:ae:8c:43:f1"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("resolve() error = %v", err)
	}
}

func TestEventFor(t *testing.T) {
	tests := []struct {
		name  string
		ev    protocol.Event
		check func(*Event) bool
	}{
		{
			name: "temperature",
			ev:   &protocol.TemperatureEvent{Tag: protocol.TagTemperatureHumidity, Celsius: 21.5, Humidity: 45.25, HasHumidity: true},
			check: func(e *Event) bool {
				return e.Type == TypeTemperature && *e.Celsius == 21.5 && *e.Humidity == 45.25 && e.Tag == "0a"
			},
		},
		{
			name: "temperature without humidity",
			ev:   &protocol.TemperatureEvent{Tag: protocol.TagTemperature, Celsius: 19},
			check: func(e *Event) bool {
				return e.Type == TypeTemperature && e.Humidity == nil
			},
		},
		{
			name: "raw data",
			ev:   &protocol.RawDataEvent{Tag: protocol.TagRawCode, Data: []byte{0x26, 0x00}},
			check: func(e *Event) bool {
				return e.Type == TypeRawData && e.Data == "2600"
			},
		},
		{
			name: "rf found",
			ev:   &protocol.RFFoundEvent{Tag: protocol.TagRFFoundRM4, Flag: 1},
			check: func(e *Event) bool {
				return e.Type == TypeRFFound && *e.Flag == 1
			},
		},
		{
			name: "rf sweep",
			ev:   &protocol.RFSweepEvent{Tag: protocol.TagRFSweep2, Flag: 0},
			check: func(e *Event) bool {
				return e.Type == TypeRFSweep && *e.Flag == 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := eventFor(testMAC, tt.ev)
			if e == nil || e.Device != testMAC.String() || !tt.check(e) {
				t.Errorf("eventFor() = %+v", e)
			}
		})
	}
}

func TestParseServiceEntry(t *testing.T) {
	entry := zeroconf.NewServiceEntry("rmlink-pi", ServiceType, ServiceDomain)
	entry.HostName = "pi.local."
	entry.Port = 8780
	entry.AddrIPv4 = []net.IP{net.IPv4(192, 168, 1, 10)}
	entry.Text = []string{"path=/ws", "tls=true"}

	b := parseServiceEntry(entry)
	if got, want := b.URL(), "wss://192.168.1.10:8780/ws"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}

	b.Addrs = nil
	b.TLS = false
	if got, want := b.URL(), "ws://pi.local:8780/ws"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}
