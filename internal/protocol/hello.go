package protocol

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// Discovery packet constants
const (
	HelloSize            = 0x30
	MinAnnouncementSize  = 0x40
	announceOffsetType   = 0x34
	announceOffsetMACEnd = 0x3f
)

// BuildHello builds the discovery broadcast for a listener bound to ip:port.
//
// Packet Structure:
//
//	[0x08-0x0b] timezone offset in hours (negative: 0xff+tz-1, then ff ff ff)
//	[0x0c-0x0d] year (LE)
//	[0x0e]      minute
//	[0x0f]      hour
//	[0x10]      two-digit year
//	[0x11]      weekday (Sunday = 0)
//	[0x12]      day of month
//	[0x13]      month (January = 0)
//	[0x18-0x1b] listener IPv4 address
//	[0x1c-0x1d] listener port (LE)
//	[0x20-0x21] checksum (LE)
//	[0x26]      0x06
func BuildHello(now time.Time, ip net.IP, port int) ([]byte, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("hello requires an IPv4 address, got %v", ip)
	}
	if port < 0 || port > 0xffff {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	packet := make([]byte, HelloSize)

	_, offset := now.Zone()
	tz := offset / 3600
	if tz < 0 {
		packet[0x08] = byte(0xff + tz - 1)
		packet[0x09] = 0xff
		packet[0x0a] = 0xff
		packet[0x0b] = 0xff
	} else {
		packet[0x08] = byte(tz)
	}

	year := now.Year()
	binary.LittleEndian.PutUint16(packet[0x0c:], uint16(year))
	packet[0x0e] = byte(now.Minute())
	packet[0x0f] = byte(now.Hour())
	packet[0x10] = byte(year % 100)
	packet[0x11] = byte(now.Weekday())
	packet[0x12] = byte(now.Day())
	packet[0x13] = byte(now.Month() - 1)

	copy(packet[0x18:0x1c], ip4)
	binary.LittleEndian.PutUint16(packet[0x1c:], uint16(port))
	packet[offsetCommand] = CommandHello

	binary.LittleEndian.PutUint16(packet[offsetChecksum:], Checksum(packet))

	return packet, nil
}

// Announcement is what a device says in reply to a hello broadcast
type Announcement struct {
	MAC        MAC
	DeviceType uint16
}

func (a Announcement) String() string {
	return fmt.Sprintf("Announcement{mac=%s, device_type=0x%04x}", a.MAC, a.DeviceType)
}

// ParseAnnouncement extracts the MAC and device type from a discovery reply.
// The MAC is stored reversed at 0x3a-0x3f.
func ParseAnnouncement(data []byte) (Announcement, error) {
	var a Announcement
	if len(data) < MinAnnouncementSize {
		return a, fmt.Errorf("%w: announcement is %d bytes, need %d", ErrMalformed, len(data), MinAnnouncementSize)
	}

	for i := range a.MAC {
		a.MAC[i] = data[announceOffsetMACEnd-i]
	}
	a.DeviceType = binary.LittleEndian.Uint16(data[announceOffsetType:])

	return a, nil
}
