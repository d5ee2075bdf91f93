// Package server implements the rmlink bridge: a WebSocket front end for
// the RM devices on the local network.
//
// The bridge discovers devices with a periodic broadcast scan, connects and
// authenticates each one, and keeps a send queue per device. Events decoded
// from device replies are pushed to every connected client; clients send
// JSON requests and get one result per request.
//
// # Endpoints
//
//   - GET /ws: WebSocket, JSON text frames
//   - GET /devices: device list as JSON
//   - GET /healthz: version, device and client counts
//
// # Requests
//
//	{"id": "1", "type": "send", "device": "ec:0b:ae:8c:43:f1", "data": "2600..."}
//	{"id": "2", "type": "send_named", "name": "tv-power"}
//	{"id": "3", "type": "temperature", "device": "living-room"}
//	{"id": "4", "type": "devices"}
//
// Devices are referenced by MAC in any common form or by the nickname set
// in the registry. The reference may be omitted when exactly one device is
// known.
//
// # Events
//
//	{"type": "discovered", "device": "...", "info": {...}}
//	{"type": "temperature", "device": "...", "celsius": 21.5}
//	{"type": "raw_data", "device": "...", "data": "2600..."}
//	{"type": "rf_found", "device": "...", "flag": 1}
//	{"type": "rf_sweep", "device": "...", "flag": 0}
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{
//	    Port:           8780,
//	    Advertise:      true,
//	    RescanInterval: 5 * time.Minute,
//	    Registry:       registry,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start blocks until SIGINT or SIGTERM
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// When Advertise is set the bridge registers itself as _rmlink._tcp over
// mDNS; FindBridges locates running bridges. Setting CertPath and KeyPath
// serves wss:// instead of ws://.
package server
