package protocol

import (
	"bytes"
	"fmt"
)

// Sub-command bytes sent under CommandRequest
const (
	SubSendData      byte = 0x02
	SubEnterLearning byte = 0x03
	SubCheckData     byte = 0x04
	SubRFSweep       byte = 0x19
	SubCheckRF       byte = 0x1a
	SubCheckRF2      byte = 0x1b
	SubCancelLearn   byte = 0x1e
	SubSensorsLegacy byte = 0x01
	SubSensorsRM4    byte = 0x24
)

// AuthPayloadSize is the length of the handshake request body
const AuthPayloadSize = 0x50

// AuthPayload builds the fixed handshake request body
func AuthPayload() []byte {
	payload := make([]byte, AuthPayloadSize)
	for i := 0x04; i <= 0x12; i++ {
		payload[i] = 0x31
	}
	payload[0x1e] = 0x01
	payload[0x2d] = 0x01
	copy(payload[0x30:], "Test  1")
	return payload
}

// Handshake is the key material returned in an AckHandshake reply
type Handshake struct {
	SessionID SessionID
	Key       Key
}

// ParseHandshake extracts the new session id (bytes 0x00-0x03) and key
// (bytes 0x04-0x13) from a decrypted handshake reply.
func ParseHandshake(payload []byte) (Handshake, error) {
	var h Handshake
	if len(payload) < 0x14 {
		return h, fmt.Errorf("%w: handshake payload is %d bytes, need 20", ErrMalformed, len(payload))
	}
	copy(h.SessionID[:], payload[0x00:0x04])
	copy(h.Key[:], payload[0x04:0x14])
	return h, nil
}

// BuildQuery prefixes a one-byte sub-command with the request header
func BuildQuery(header []byte, sub byte) []byte {
	out := make([]byte, 0, len(header)+1)
	out = append(out, header...)
	return append(out, sub)
}

// BuildSendData builds the code-send body: header, 02 00 00 00, then the code
func BuildSendData(header []byte, code []byte) []byte {
	out := make([]byte, 0, len(header)+4+len(code))
	out = append(out, header...)
	out = append(out, SubSendData, 0x00, 0x00, 0x00)
	return append(out, code...)
}

// SensorsSubCommand returns the temperature/humidity query byte for a generation
func SensorsSubCommand(rm4 bool) byte {
	if rm4 {
		return SubSensorsRM4
	}
	return SubSensorsLegacy
}

// StripHeader removes an echoed request header from a decrypted reply.
// The first occurrence of header is located and everything up to and
// including it is dropped. An empty header always matches at offset 0.
func StripHeader(payload, header []byte) []byte {
	idx := bytes.Index(payload, header)
	if idx < 0 {
		return payload
	}
	return payload[idx+len(header):]
}
