package server

import (
	"encoding/hex"
	"time"

	"github.com/muurk/rmlink/internal/discovery"
	"github.com/muurk/rmlink/internal/protocol"
)

// Message types sent by the bridge
const (
	TypeDiscovered  = "discovered"
	TypeTemperature = "temperature"
	TypeRawData     = "raw_data"
	TypeRFFound     = "rf_found"
	TypeRFSweep     = "rf_sweep"
	TypeResult      = "result"
)

// Request types accepted from clients
const (
	RequestSend        = "send"
	RequestSendNamed   = "send_named"
	RequestTemperature = "temperature"
	RequestDevices     = "devices"
)

// Request is a client command. ID is echoed in the result.
type Request struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	Device string `json:"device,omitempty"` // MAC in any form, or configured nickname
	Data   string `json:"data,omitempty"`   // Hex code for send
	Name   string `json:"name,omitempty"`   // Code name for send_named
}

// DeviceInfo describes a device in discovered events and device listings
type DeviceInfo struct {
	MAC          string    `json:"mac"`
	Address      string    `json:"address"`
	Type         string    `json:"type"`
	Model        string    `json:"model"`
	Capability   string    `json:"capability"`
	Nickname     string    `json:"nickname,omitempty"`
	State        string    `json:"state"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Event is pushed to every client when a device reports something
type Event struct {
	Type     string      `json:"type"`
	Device   string      `json:"device,omitempty"`
	Time     time.Time   `json:"time"`
	Info     *DeviceInfo `json:"info,omitempty"`
	Celsius  *float64    `json:"celsius,omitempty"`
	Humidity *float64    `json:"humidity,omitempty"`
	Data     string      `json:"data,omitempty"`
	Flag     *int        `json:"flag,omitempty"`
	Tag      string      `json:"tag,omitempty"`
}

// Result answers one Request
type Result struct {
	Type    string       `json:"type"`
	ID      string       `json:"id,omitempty"`
	OK      bool         `json:"ok"`
	Error   string       `json:"error,omitempty"`
	RTT     string       `json:"rtt,omitempty"`
	Devices []DeviceInfo `json:"devices,omitempty"`
	Event   *Event       `json:"event,omitempty"`
}

func deviceInfo(d *discovery.Device, nickname string) DeviceInfo {
	info := DeviceInfo{
		MAC:          d.MAC.String(),
		Address:      d.Addr().String(),
		Type:         hexCode(d.Type.Code),
		Model:        d.Type.Model,
		Capability:   d.Type.Capability.String(),
		Nickname:     nickname,
		State:        "offline",
		DiscoveredAt: d.DiscoveredAt,
	}
	if d.Session != nil {
		info.State = d.Session.State().String()
	}
	return info
}

// eventFor converts a dispatched device event to its wire form
func eventFor(mac protocol.MAC, ev protocol.Event) *Event {
	out := &Event{
		Device: mac.String(),
		Time:   time.Now(),
		Tag:    hex.EncodeToString([]byte{ev.Type()}),
	}

	switch e := ev.(type) {
	case *protocol.TemperatureEvent:
		out.Type = TypeTemperature
		c := e.Celsius
		out.Celsius = &c
		if e.HasHumidity {
			h := e.Humidity
			out.Humidity = &h
		}
	case *protocol.RawDataEvent:
		out.Type = TypeRawData
		out.Data = hex.EncodeToString(e.Data)
	case *protocol.RFFoundEvent:
		out.Type = TypeRFFound
		f := int(e.Flag)
		out.Flag = &f
	case *protocol.RFSweepEvent:
		out.Type = TypeRFSweep
		f := int(e.Flag)
		out.Flag = &f
	default:
		return nil
	}
	return out
}

func hexCode(code uint16) string {
	return "0x" + hex.EncodeToString([]byte{byte(code >> 8), byte(code)})
}
