// Package discovery finds Broadlink RM devices on the local network.
//
// A scan opens one UDP socket per local IPv4 address, broadcasts a hello
// packet to 255.255.255.255:80 from each, and collects announcements until
// the collection window closes. RM devices answer with a datagram carrying
// their MAC address and device type code.
//
// # Discovery Process
//
//  1. Enumerate up, non-loopback IPv4 addresses (or use Scanner.Interfaces)
//  2. Bind an ephemeral port on each and send the hello packet
//  3. Parse each announcement, skipping MACs already in the table
//  4. Classify the type code; unsupported and unknown types are logged and dropped
//  5. Optionally dial a session and start its handshake (Scanner.Connect)
//  6. Add the device to the Table and call Scanner.OnDevice
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	scanner.Timeout = 5 * time.Second
//
//	devices, err := scanner.ScanForDevices()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range devices {
//	    fmt.Println(d)
//	}
//
// A Table can be shared across scans; Scan only adds MACs it has not seen.
//
// # Network Requirements
//
//   - Devices must be on the same broadcast domain
//   - Firewalls must allow UDP broadcast to port 80 and the replies
//
// # Thread Safety
//
// Table is safe for concurrent use. OnDevice may be called from several
// listener goroutines at once.
package discovery
