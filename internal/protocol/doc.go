// Package protocol implements the Broadlink RM UDP wire format.
//
// This package handles encoding, decryption and validation of command
// packets, the discovery hello/announcement exchange, sub-command bodies and
// the decoding of reply payloads into typed events. It holds no session
// state: callers pass the current key, IV, session id and counter.
//
// # Command Packet
//
// Every command and reply has a fixed 0x38-byte header followed by an
// AES-128-CBC encrypted payload:
//   - 0x00-0x07: magic 5a a5 aa 55 5a a5 aa 55
//   - 0x20-0x21: checksum over the whole packet, written after encryption
//   - 0x22-0x23: device error code (replies only)
//   - 0x24-0x25: device type (LE)
//   - 0x26: command (0x65 handshake, 0x6a everything else) or reply ack tag
//   - 0x28-0x29: counter, the request id used for correlation (LE)
//   - 0x2a-0x2f: MAC in reverse byte order
//   - 0x30-0x33: session id
//   - 0x34-0x35: plaintext payload checksum
//
// Checksums start at 0xBEAF and add every byte, masked to 16 bits.
//
// # Usage Example - Encoding
//
//	pkt := &protocol.Packet{
//	    Command:    protocol.CommandRequest,
//	    DeviceType: 0x5213,
//	    Counter:    4444,
//	    MAC:        mac,
//	    SessionID:  id,
//	    Payload:    protocol.BuildQuery(headers.Request, protocol.SubCheckData),
//	}
//	data, err := pkt.Encode(key, protocol.DefaultIV())
//
// # Usage Example - Decoding
//
//	resp, err := protocol.Decode(datagram, key, protocol.DefaultIV())
//	var devErr *protocol.DeviceError
//	if errors.As(err, &devErr) {
//	    // fail the request devErr.RequestID
//	}
//	if resp.Ack == protocol.AckData {
//	    payload := protocol.StripHeader(resp.Payload, headers.Request)
//	    if ev := protocol.Dispatch(payload, rm4); ev != nil {
//	        fmt.Println(ev)
//	    }
//	}
//
// # Discovery
//
// BuildHello produces the 0x30-byte broadcast a listener sends to
// 255.255.255.255:80; ParseAnnouncement reads the MAC and device type from
// each reply.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package protocol
