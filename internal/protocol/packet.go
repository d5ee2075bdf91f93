package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Packet layout constants
const (
	HeaderSize    = 0x38 // Fixed command packet header
	MinPacketSize = 0x39 // Header plus at least one ciphertext byte
	BlockSize     = aes.BlockSize

	checksumSeed = 0xbeaf
)

// Header offsets
const (
	offsetMagic      = 0x00
	offsetChecksum   = 0x20 // Whole-packet checksum, written after encryption
	offsetError      = 0x22 // Device-reported error code on responses
	offsetDeviceType = 0x24
	offsetCommand    = 0x26
	offsetCounter    = 0x28
	offsetMAC        = 0x2a
	offsetSessionID  = 0x30
	offsetPayloadSum = 0x34 // Plaintext payload checksum, written before encryption
)

// Command codes
const (
	CommandHello   byte = 0x06 // Discovery broadcast marker
	CommandAuth    byte = 0x65
	CommandRequest byte = 0x6a // Every command other than the handshake
)

// Ack tags carried at offset 0x26 of a response
const (
	AckHandshake byte = 0xe9
	AckData      byte = 0xee
	AckDataAlt   byte = 0xef
	AckPlain     byte = 0x72
)

// Magic is the fixed packet preamble
var Magic = [8]byte{0x5a, 0xa5, 0xaa, 0x55, 0x5a, 0xa5, 0xaa, 0x55}

// ErrMalformed is returned for datagrams that cannot be a valid response
var ErrMalformed = errors.New("malformed packet")

// DeviceError is a non-zero error code reported in a response header.
// The payload of such a response is never decrypted.
type DeviceError struct {
	Code      uint16
	RequestID uint16
	Ack       byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device reported error 0x%04x for request %d", e.Code, e.RequestID)
}

// Key is an AES-128 session key
type Key [16]byte

// IV is the CBC initialization vector
type IV [16]byte

// SessionID is the 4-byte id assigned by the device during the handshake
type SessionID [4]byte

// String returns the key as hex
func (k Key) String() string { return hex.EncodeToString(k[:]) }

// String returns the id as hex
func (id SessionID) String() string { return hex.EncodeToString(id[:]) }

var (
	defaultKey = Key{0x09, 0x76, 0x28, 0x34, 0x3f, 0xe9, 0x9e, 0x23, 0x76, 0x5c, 0x15, 0x13, 0xac, 0xcf, 0x8b, 0x02}
	defaultIV  = IV{0x56, 0x2e, 0x17, 0x99, 0x6d, 0x09, 0x3d, 0x28, 0xdd, 0xb3, 0xba, 0x69, 0x5a, 0x2e, 0x6f, 0x58}
)

// DefaultKey returns the key every session starts with
func DefaultKey() Key { return defaultKey }

// DefaultIV returns the fixed IV used for the protocol's lifetime
func DefaultIV() IV { return defaultIV }

// MAC is a device hardware address in canonical order
type MAC [6]byte

// Reverse returns the address in reverse byte order, as written on the wire
func (m MAC) Reverse() MAC {
	var r MAC
	for i := range m {
		r[i] = m[len(m)-1-i]
	}
	return r
}

// Hex returns the address as 12 lowercase hex digits, the form used as a table key
func (m MAC) Hex() string {
	return hex.EncodeToString(m[:])
}

// String returns the colon separated form
func (m MAC) String() string {
	parts := make([]string, len(m))
	for i, b := range m {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}

// ParseMAC accepts "ec0bae8c43f1", "ec:0b:ae:8c:43:f1" or "ec-0b-ae-8c-43-f1"
func ParseMAC(s string) (MAC, error) {
	var m MAC
	clean := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return m, fmt.Errorf("invalid MAC %q: %w", s, err)
	}
	if len(raw) != len(m) {
		return m, fmt.Errorf("invalid MAC %q: want 6 bytes, got %d", s, len(raw))
	}
	copy(m[:], raw)
	return m, nil
}

// Checksum is the 0xBEAF-seeded running byte sum, masked to 16 bits
func Checksum(data []byte) uint16 {
	sum := uint16(checksumSeed)
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// VerifyChecksum reports whether sum matches data
func VerifyChecksum(sum uint16, data []byte) bool {
	return Checksum(data) == sum
}

// Packet is an outbound command before encryption
type Packet struct {
	Command    byte
	DeviceType uint16
	Counter    uint16 // Request id used for correlation
	MAC        MAC
	SessionID  SessionID
	Payload    []byte
}

// Encode builds the encrypted wire form of the packet.
//
// Packet Structure:
//
//	[0x00-0x07] magic
//	[0x20-0x21] whole-packet checksum (LE)
//	[0x24-0x25] device type (LE)
//	[0x26]      command
//	[0x28-0x29] counter (LE)
//	[0x2a-0x2f] MAC, reversed
//	[0x30-0x33] session id
//	[0x34-0x35] plaintext payload checksum (LE)
//	[0x38+]     AES-128-CBC ciphertext
func (p *Packet) Encode(key Key, iv IV) ([]byte, error) {
	payload := padPayload(p.Payload)

	packet := make([]byte, HeaderSize, HeaderSize+len(payload))
	copy(packet[offsetMagic:], Magic[:])
	binary.LittleEndian.PutUint16(packet[offsetDeviceType:], p.DeviceType)
	packet[offsetCommand] = p.Command
	binary.LittleEndian.PutUint16(packet[offsetCounter:], p.Counter)
	reversed := p.MAC.Reverse()
	copy(packet[offsetMAC:], reversed[:])
	copy(packet[offsetSessionID:], p.SessionID[:])
	binary.LittleEndian.PutUint16(packet[offsetPayloadSum:], Checksum(payload))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	ciphertext := make([]byte, len(payload))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(ciphertext, payload)

	packet = append(packet, ciphertext...)
	binary.LittleEndian.PutUint16(packet[offsetChecksum:], Checksum(packet))

	return packet, nil
}

// padPayload appends BlockSize - len%BlockSize zero bytes. An aligned payload
// gets a whole extra block, which is what devices expect.
func padPayload(payload []byte) []byte {
	out := make([]byte, len(payload)+BlockSize-len(payload)%BlockSize)
	copy(out, payload)
	return out
}

// Response is a decoded inbound packet
type Response struct {
	Ack        byte
	RequestID  uint16
	DeviceType uint16
	Payload    []byte // Decrypted, still carrying any zero padding
}

func (r *Response) String() string {
	return fmt.Sprintf("Response{ack=0x%02x, request_id=%d, payload_len=%d}",
		r.Ack, r.RequestID, len(r.Payload))
}

// Decode validates and decrypts a datagram received from a device.
// A non-zero header error code yields a *DeviceError without decryption.
// The outer checksum is not verified; devices in the field do not always set it.
func Decode(datagram []byte, key Key, iv IV) (*Response, error) {
	if len(datagram) < MinPacketSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformed, len(datagram), MinPacketSize)
	}

	resp := &Response{
		Ack:        datagram[offsetCommand],
		RequestID:  binary.LittleEndian.Uint16(datagram[offsetCounter:]),
		DeviceType: binary.LittleEndian.Uint16(datagram[offsetDeviceType:]),
	}

	if code := binary.LittleEndian.Uint16(datagram[offsetError:]); code != 0 {
		return resp, &DeviceError{Code: code, RequestID: resp.RequestID, Ack: resp.Ack}
	}

	ciphertext := datagram[HeaderSize:]
	if len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of %d", ErrMalformed, len(ciphertext), BlockSize)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	resp.Payload = make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(resp.Payload, ciphertext)

	return resp, nil
}
