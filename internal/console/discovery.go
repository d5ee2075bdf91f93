package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/rmlink/internal/config"
	"github.com/muurk/rmlink/internal/discovery"
)

// Messages for async operations
type scanCompleteMsg struct {
	devices []*discovery.Device
	err     error
}
type connectedMsg struct {
	device     *discovery.Device
	controller Controller
	err        error
}

// discoveryKeyMap defines key bindings for the discovery screen
type discoveryKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Rescan key.Binding
	Quit   key.Binding
}

func (k discoveryKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Rescan, k.Quit}
}

func (k discoveryKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Rescan, k.Quit},
	}
}

// busyKeyMap is shown while scanning or connecting
type busyKeyMap struct {
	Quit key.Binding
}

func (k busyKeyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Quit} }
func (k busyKeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{{k.Quit}} }

// deviceItem wraps a Device for use with bubbles/list
type deviceItem struct {
	device   *discovery.Device
	nickname string
}

func (d deviceItem) FilterValue() string {
	return d.nickname + " " + d.device.MAC.String() + " " + d.device.IP + " " + d.device.Type.Model
}

func (d deviceItem) Title() string {
	if d.nickname != "" {
		return d.nickname
	}
	return d.device.Type.Model
}

func (d deviceItem) Description() string {
	return fmt.Sprintf("%s • %s • %s", d.device.Addr(), d.device.MAC, d.device.Type.Capability)
}

// deviceDelegate renders devices as cards
type deviceDelegate struct {
	width int
}

func (d deviceDelegate) Height() int                               { return 7 }
func (d deviceDelegate) Spacing() int                              { return 1 }
func (d deviceDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d deviceDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	di, ok := item.(deviceItem)
	if !ok {
		return
	}
	selected := index == m.Index()

	var content strings.Builder
	if selected {
		content.WriteString(SelectedItemStyle.Render("→ " + di.Title()))
	} else {
		content.WriteString("  " + di.Title())
	}
	content.WriteString("\n\n")
	content.WriteString(fmt.Sprintf("  MAC:      %s\n", di.device.MAC))
	content.WriteString(fmt.Sprintf("  Address:  %s\n", di.device.Addr()))
	content.WriteString(fmt.Sprintf("  Type:     0x%04x %s", di.device.Type.Code, di.device.Type.Capability))

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 2).
		MarginLeft(2).
		Width(cardWidth(d.width))
	if selected {
		style = style.BorderForeground(HighlightColor)
	}

	fmt.Fprint(w, style.Render(content.String()))
}

// DiscoveryModel lists the devices found on the network
type DiscoveryModel struct {
	cfg Config

	Scanning   bool
	Connecting bool
	DeviceList list.Model
	Err        error

	Width         int
	Height        int
	Spinner       spinner.Model
	ProgressBar   progress.Model
	ScanStartTime time.Time
	Help          help.Model
	Keys          discoveryKeyMap
	BusyKeys      busyKeyMap
}

// NewDiscoveryModel creates a new discovery screen model
func NewDiscoveryModel(cfg Config) DiscoveryModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	deviceList := list.New([]list.Item{}, deviceDelegate{width: DefaultWidth}, DefaultWidth-4, DefaultHeight-10)
	deviceList.Title = "RM Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(true)
	deviceList.DisableQuitKeybindings()
	deviceList.Styles.Title = TitleStyle

	m := DiscoveryModel{
		cfg:         cfg,
		DeviceList:  deviceList,
		Spinner:     s,
		ProgressBar: bar,
		Help:        help.New(),
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		Scanning:    true,
		Keys: discoveryKeyMap{
			Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
			Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
			Enter:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "connect")),
			Rescan: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
			Quit:   key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q", "quit")),
		},
		BusyKeys: busyKeyMap{
			Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		},
	}
	m.ScanStartTime = time.Now()
	return m
}

// Init starts the first scan
func (m DiscoveryModel) Init() tea.Cmd {
	return tea.Batch(scanDevices(m.cfg.Scan), m.Spinner.Tick)
}

// startScan clears the list and scans again
func (m DiscoveryModel) startScan() (DiscoveryModel, tea.Cmd) {
	m.Scanning = true
	m.ScanStartTime = time.Now()
	m.Err = nil
	cmd := m.DeviceList.SetItems([]list.Item{})
	return m, tea.Batch(cmd, scanDevices(m.cfg.Scan), m.Spinner.Tick)
}

// Update handles messages and updates the model
func (m DiscoveryModel) Update(msg tea.Msg) (DiscoveryModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Scanning || m.Connecting || m.DeviceList.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.Keys.Enter):
			item, ok := m.DeviceList.SelectedItem().(deviceItem)
			if !ok {
				return m, nil
			}
			m.Connecting = true
			m.Err = nil
			return m, tea.Batch(connectDevice(m.cfg, item.device), m.Spinner.Tick)

		case key.Matches(msg, m.Keys.Rescan):
			return m.startScan()
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.DeviceList.SetDelegate(deviceDelegate{width: msg.Width})
		m.DeviceList.SetWidth(msg.Width - 4)
		m.DeviceList.SetHeight(msg.Height - 10)

	case scanCompleteMsg:
		m.Scanning = false
		m.Err = msg.err
		items := make([]list.Item, len(msg.devices))
		for i, d := range msg.devices {
			items[i] = deviceItem{device: d, nickname: nicknameFor(m.cfg.Registry, d)}
		}
		return m, m.DeviceList.SetItems(items)

	case connectedMsg:
		m.Connecting = false
		m.Err = msg.err
		return m, nil

	case spinner.TickMsg:
		if !m.Scanning && !m.Connecting {
			return m, nil
		}
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	if !m.Scanning && !m.Connecting {
		m.DeviceList, cmd = m.DeviceList.Update(msg)
	}
	return m, cmd
}

// View renders the discovery screen
func (m DiscoveryModel) View() string {
	var content, helpText string
	switch {
	case m.Scanning:
		content = m.renderScanning()
		helpText = m.Help.View(m.BusyKeys)
	case m.Connecting:
		content = m.renderConnecting()
		helpText = m.Help.View(m.BusyKeys)
	default:
		content = m.renderDeviceResults()
		helpText = m.Help.View(m.Keys)
	}
	return RenderApplicationContainer(content, helpText, m.Width, m.Height)
}

func (m DiscoveryModel) renderScanning() string {
	elapsed := time.Since(m.ScanStartTime)
	fraction := 1.0
	if m.cfg.ScanWindow > 0 {
		fraction = min(1.0, float64(elapsed)/float64(m.cfg.ScanWindow))
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(m.Spinner.View()+" SEARCHING FOR DEVICES"),
		SubtitleStyle.Render("Broadcasting hello on every IPv4 interface..."),
		"",
		m.ProgressBar.ViewAs(fraction),
		"",
		SubtitleStyle.Render(fmt.Sprintf("Elapsed: %ds", int(elapsed.Seconds()))),
	)
	return lipgloss.Place(m.Width-4, 0, lipgloss.Center, lipgloss.Top, content)
}

func (m DiscoveryModel) renderConnecting() string {
	name := "device"
	if item, ok := m.DeviceList.SelectedItem().(deviceItem); ok {
		name = item.Title()
	}
	return "\n  " + SpinnerStyle.Render(m.Spinner.View()) + " Authenticating with " + name + "...\n"
}

func (m DiscoveryModel) renderDeviceResults() string {
	var b strings.Builder
	b.WriteString("\n")

	switch {
	case m.Err != nil && len(m.DeviceList.Items()) == 0:
		b.WriteString("  " + RenderError(fmt.Sprintf("Scan failed: %v", m.Err)))
		b.WriteString("\n\n")
		b.WriteString(troubleshooting)

	case len(m.DeviceList.Items()) == 0:
		b.WriteString("  " + WarningStyle.Render("⚠ No devices found on your network"))
		b.WriteString("\n\n")
		b.WriteString(troubleshooting)

	default:
		if m.Err != nil {
			b.WriteString("  " + RenderError(m.Err.Error()))
			b.WriteString("\n")
		}
		b.WriteString(m.DeviceList.View())
	}
	return b.String()
}

const troubleshooting = `  Troubleshooting:
    • Ensure the device is powered on and joined to this network
    • Broadcast discovery needs the device on the same subnet
    • Define it by hand with 'rmlink devices add' and rescan with 'r'
`

// SelectedDevice returns the highlighted device, if any
func (m DiscoveryModel) SelectedDevice() *discovery.Device {
	if item, ok := m.DeviceList.SelectedItem().(deviceItem); ok {
		return item.device
	}
	return nil
}

func nicknameFor(registry *config.Registry, d *discovery.Device) string {
	if registry == nil {
		return ""
	}
	if entry, ok := registry.Devices[d.Key()]; ok {
		return entry.Nickname
	}
	return ""
}

// scanDevices is a command that performs device discovery
func scanDevices(scan ScanFunc) tea.Cmd {
	return func() tea.Msg {
		devices, err := scan(context.Background())
		return scanCompleteMsg{devices: devices, err: err}
	}
}

// connectDevice is a command that authenticates with a device
func connectDevice(cfg Config, d *discovery.Device) tea.Cmd {
	return func() tea.Msg {
		ctrl, err := cfg.Connect(context.Background(), d)
		return connectedMsg{device: d, controller: ctrl, err: err}
	}
}
