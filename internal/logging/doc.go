// Package logging provides structured logging for the rmlink tools.
//
// This package wraps a zap logger with convenience functions used by the
// protocol engine, the discovery scanner and the bridge. Logging is silent by
// default so the CLI output stays clean; set RMLINK_LOG_LEVEL or pass a level
// to Initialize to enable it.
//
// # Log Levels
//
//   - Debug: packet hex dumps, counter assignment, payload dispatch
//   - Info: discovered devices, handshakes, bridge connections
//   - Warn: dropped datagrams, unhandled ack tags, dropped events
//   - Error: bind failures, send failures
//
// # Structured Logging
//
//	logging.Info("Handshake complete",
//	    zap.String("mac", "ec0bae8c43f1"),
//	    zap.Uint16("request_id", 4444),
//	)
//
// # Specialized Logging
//
//	logging.LogDevice("discovered", mac, remoteAddr, deviceType)
//	logging.LogPacket("sent", mac, 0x6a, requestID, packet)
//	logging.LogRawBytes("Decrypted payload", payload)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Logs go to stderr in console format. All functions are safe for concurrent use.
package logging
