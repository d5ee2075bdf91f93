package urls

// Documentation URLs printed in troubleshooting tips.
// All URLs point to the project site at https://muurk.github.io/rmlink/

// GettingStarted is the quick start guide covering discovery and first send.
const GettingStarted = "https://muurk.github.io/rmlink/getting-started/"

// Troubleshooting covers broadcast discovery, firewalls and timeouts.
const Troubleshooting = "https://muurk.github.io/rmlink/troubleshooting/"

// SupportedDevices lists the RM device type codes and their capabilities.
const SupportedDevices = "https://muurk.github.io/rmlink/devices/"

// Bridge documents the WebSocket bridge message format.
const Bridge = "https://muurk.github.io/rmlink/bridge/"
