// Package session manages the protocol state for one RM device.
//
// A Session owns a UDP socket, the current session key and id, the request
// counter and the table of requests waiting for a reply. Commands return a
// *Request immediately; Wait blocks until the matching reply arrives or the
// per-request deadline (5 seconds by default) passes.
//
// # States
//
//	Unauthenticated -> Authenticating -> Ready
//
// Authenticate sends the handshake. The reply carries a new key and session
// id which replace the defaults; every later request is encrypted with them.
//
// # Usage Example
//
//	s, err := session.Dial(ctx, addr, mac, 0x5213)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	req, err := s.Authenticate()
//	if err != nil {
//	    return err
//	}
//	if _, err := req.Wait(ctx); err != nil {
//	    return err
//	}
//
//	req, _ = s.CheckTemperature()
//	reply, err := req.Wait(ctx)
//	if temp, ok := reply.Event.(*protocol.TemperatureEvent); ok {
//	    fmt.Printf("%.1f°C\n", temp.Celsius)
//	}
//
// # RF
//
// Sessions for RF-capable devices expose the sweep commands through RF();
// other devices get ErrNotRFCapable.
//
// # Sequential Sends
//
// NewQueue returns a FIFO that sends one code at a time, waiting for each to
// complete or time out before sending the next.
//
// # Events
//
// Subscribe returns a channel of protocol.Event values decoded from data
// replies, whichever request triggered them.
package session
