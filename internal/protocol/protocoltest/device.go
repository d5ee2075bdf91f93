// Package protocoltest builds and reads packets from the device side of the
// protocol. Session, discovery and bridge tests use it to run simulated
// devices on loopback UDP.
package protocoltest

import (
	"encoding/binary"
	"fmt"

	"github.com/muurk/rmlink/internal/protocol"
)

// Device side offsets within the 0x38-byte header
const (
	offsetChecksum  = 0x20
	offsetError     = 0x22
	offsetCommand   = 0x26
	offsetMAC       = 0x2a
	offsetSessionID = 0x30

	announceOffsetType   = 0x34
	announceOffsetMACEnd = 0x3f
	announceCommand      = 0x07
)

// EncodeReply builds the packet a device sends back for requestID.
// A non-zero errCode is written at 0x22 and the payload is still encrypted.
func EncodeReply(ack byte, requestID uint16, deviceType uint16, mac protocol.MAC, errCode uint16, payload []byte, key protocol.Key, iv protocol.IV) ([]byte, error) {
	p := &protocol.Packet{
		Command:    ack,
		DeviceType: deviceType,
		Counter:    requestID,
		MAC:        mac,
		Payload:    payload,
	}
	packet, err := p.Encode(key, iv)
	if err != nil {
		return nil, err
	}
	if errCode != 0 {
		binary.LittleEndian.PutUint16(packet[offsetError:], errCode)
		binary.LittleEndian.PutUint16(packet[offsetChecksum:], 0)
		binary.LittleEndian.PutUint16(packet[offsetChecksum:], protocol.Checksum(packet))
	}
	return packet, nil
}

// ParseRequest reads an outbound packet back into its fields.
// The payload keeps its zero padding.
func ParseRequest(datagram []byte, key protocol.Key, iv protocol.IV) (*protocol.Packet, error) {
	resp, err := protocol.Decode(datagram, key, iv)
	if err != nil {
		return nil, err
	}
	p := &protocol.Packet{
		Command:    resp.Ack,
		DeviceType: resp.DeviceType,
		Counter:    resp.RequestID,
		Payload:    resp.Payload,
	}
	var reversed protocol.MAC
	copy(reversed[:], datagram[offsetMAC:])
	p.MAC = reversed.Reverse()
	copy(p.SessionID[:], datagram[offsetSessionID:])
	return p, nil
}

// BuildAnnouncement builds the reply a device sends to a hello broadcast
func BuildAnnouncement(mac protocol.MAC, deviceType uint16) []byte {
	data := make([]byte, protocol.MinAnnouncementSize)
	copy(data, protocol.Magic[:])
	binary.LittleEndian.PutUint16(data[announceOffsetType:], deviceType)
	for i := range mac {
		data[announceOffsetMACEnd-i] = mac[i]
	}
	data[offsetCommand] = announceCommand
	binary.LittleEndian.PutUint16(data[offsetChecksum:], protocol.Checksum(data))
	return data
}

// HandshakePayload builds the body of an AckHandshake reply
func HandshakePayload(h protocol.Handshake) []byte {
	payload := make([]byte, 0x14)
	copy(payload[0x00:], h.SessionID[:])
	copy(payload[0x04:], h.Key[:])
	return payload
}

// Handshake answers an authenticate request with h, encrypted under the
// default key as devices do.
func Handshake(req *protocol.Packet, h protocol.Handshake) ([]byte, error) {
	if req.Command != protocol.CommandAuth {
		return nil, fmt.Errorf("command 0x%02x is not an authenticate request", req.Command)
	}
	return EncodeReply(protocol.AckHandshake, req.Counter, req.DeviceType, req.MAC, 0,
		HandshakePayload(h), protocol.DefaultKey(), protocol.DefaultIV())
}
