// Package config provides user configuration management for rmlink.
//
// This package manages a YAML file holding application preferences, devices
// defined by hand (for networks where broadcast discovery does not reach
// them), and a library of learned IR/RF codes. Devices found by discovery
// are never written back.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/rmlink/config.yaml or $HOME/.config/rmlink/config.yaml
//   - macOS: $HOME/.config/rmlink/config.yaml
//   - Windows: %LOCALAPPDATA%\rmlink\config.yaml
//
// RMLINK_CONFIG overrides the location.
//
// # File Format
//
//	version: 1
//	preferences:
//	  discover_timeout: 10
//	  request_timeout: 5
//	  initial_counter: 4444
//	  bridge:
//	    host: 0.0.0.0
//	    port: 8780
//	    advertise: true
//	    rescan_seconds: 300
//	devices:
//	  ec0bae8c43f1:
//	    nickname: living-room
//	    host: 192.168.1.50
//	    type: "0x2787"
//	codes:
//	  tv-power:
//	    data: 26000c00...
//	    device: ec0bae8c43f1
//	    kind: ir
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.SaveCode("tv-power", code, device.MAC, config.KindIR)
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes. A Registry
// value itself is not safe for concurrent mutation.
package config
