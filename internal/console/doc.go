// Package console implements the full-screen remote control for RM devices.
//
// Built on Bubble Tea, it follows the Model-Update-View pattern with
// immutable state updates. Network work runs in tea.Cmd functions and comes
// back to the model as messages.
//
// # Screens
//
//   - Discovery: scans the network (plus devices defined in the config file),
//     shows each device as a card, authenticates with the selected one
//   - Remote: lists the code library, sends the selected code through the
//     device's send queue and reads the temperature sensor
//
// Both screens render through RenderApplicationContainer, which draws the
// header, the content area and a context-sensitive help footer.
//
// # Usage Example
//
//	registry, _ := config.GetGlobalRegistry()
//	if err := console.Run(console.NewConfig(registry)); err != nil {
//	    log.Fatal(err)
//	}
//
// # Key Bindings
//
//   - Discovery: ↑/↓ navigate, / filter, enter connect, r rescan, q quit
//   - Remote: ↑/↓ navigate, / filter, enter send, t temperature, esc back, q quit
//
// # Testing
//
// The network is reached only through Config.Scan and Config.Connect, and
// the remote screen only through the Controller interface, so the models can
// be driven with fakes by feeding messages to Update.
package console
