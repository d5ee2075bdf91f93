package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/rmlink/internal/config"
	"github.com/muurk/rmlink/internal/discovery"
	"github.com/muurk/rmlink/internal/protocol"
)

// Messages for device operations
type sentMsg struct {
	name string
	rtt  time.Duration
	err  error
}
type readingMsg struct {
	reading *protocol.TemperatureEvent
	err     error
}

// remoteKeyMap defines key bindings for the remote screen
type remoteKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Send   key.Binding
	Sensor key.Binding
	Back   key.Binding
	Quit   key.Binding
}

func (k remoteKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Send, k.Sensor, k.Back, k.Quit}
}

func (k remoteKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Send},
		{k.Sensor, k.Back, k.Quit},
	}
}

// codeItem is a saved code in the remote list
type codeItem struct {
	name string
	code *config.Code
	own  bool // learned on the connected device
}

func (c codeItem) FilterValue() string { return c.name }
func (c codeItem) Title() string       { return c.name }

func (c codeItem) Description() string {
	desc := strings.ToUpper(c.code.Kind)
	if data, err := c.code.Bytes(); err == nil {
		desc += fmt.Sprintf(" • %d bytes", len(data))
	}
	if !c.own && c.code.Device != "" {
		desc += " • learned on another device"
	}
	return desc
}

// RemoteModel sends saved codes to a connected device
type RemoteModel struct {
	cfg        Config
	device     *discovery.Device
	controller Controller
	nickname   string

	Codes   list.Model
	Busy    bool
	Status  string
	Err     error
	Reading *protocol.TemperatureEvent
	Sent    int

	BackRequested bool

	Width   int
	Height  int
	Spinner spinner.Model
	Help    help.Model
	Keys    remoteKeyMap
}

// NewRemoteModel creates the remote screen for a connected device
func NewRemoteModel(cfg Config, d *discovery.Device, ctrl Controller) RemoteModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	codes := list.New(codeItems(cfg.Registry, d), delegate, DefaultWidth-4, DefaultHeight-12)
	codes.Title = "Saved Codes"
	codes.SetShowStatusBar(false)
	codes.SetShowHelp(false)
	codes.DisableQuitKeybindings()
	codes.Styles.Title = TitleStyle

	return RemoteModel{
		cfg:        cfg,
		device:     d,
		controller: ctrl,
		nickname:   nicknameFor(cfg.Registry, d),
		Codes:      codes,
		Width:      DefaultWidth,
		Height:     DefaultHeight,
		Spinner:    s,
		Help:       help.New(),
		Keys: remoteKeyMap{
			Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
			Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
			Send:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
			Sensor: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "temperature")),
			Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "devices")),
			Quit:   key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		},
	}
}

// codeItems lists the library with codes learned on d first
func codeItems(registry *config.Registry, d *discovery.Device) []list.Item {
	if registry == nil {
		return nil
	}
	var own, other []list.Item
	for _, name := range registry.CodeNames() {
		code := registry.Codes[name]
		item := codeItem{name: name, code: code}
		if mac, err := protocol.ParseMAC(code.Device); err == nil && mac == d.MAC {
			item.own = true
			own = append(own, item)
			continue
		}
		other = append(other, item)
	}
	return append(own, other...)
}

// Init is a no-op; the session is already authenticated
func (m RemoteModel) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model
func (m RemoteModel) Update(msg tea.Msg) (RemoteModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Codes.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.Keys.Back):
			if m.Codes.FilterState() == list.FilterApplied {
				break
			}
			m.BackRequested = true
			return m, nil

		case m.Busy:
			return m, nil

		case key.Matches(msg, m.Keys.Send):
			item, ok := m.Codes.SelectedItem().(codeItem)
			if !ok {
				return m, nil
			}
			data, err := item.code.Bytes()
			if err != nil {
				m.Err = fmt.Errorf("%s: %w", item.name, err)
				return m, nil
			}
			m.Busy, m.Err = true, nil
			m.Status = "Sending " + item.name + "..."
			return m, tea.Batch(sendCode(m.controller, item.name, data, m.cfg.RequestTimeout), m.Spinner.Tick)

		case key.Matches(msg, m.Keys.Sensor):
			m.Busy, m.Err = true, nil
			m.Status = "Reading sensor..."
			return m, tea.Batch(readTemperature(m.controller, m.cfg.RequestTimeout), m.Spinner.Tick)
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Codes.SetWidth(msg.Width - 4)
		m.Codes.SetHeight(msg.Height - 12)

	case sentMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = fmt.Errorf("send %s: %w", msg.name, msg.err)
			m.Status = ""
			return m, nil
		}
		m.Sent++
		m.Status = fmt.Sprintf("Sent %s (%s)", msg.name, msg.rtt.Round(time.Millisecond))
		return m, nil

	case readingMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = fmt.Errorf("sensor: %w", msg.err)
			m.Status = ""
			return m, nil
		}
		m.Reading = msg.reading
		m.Status = "Sensor updated"
		return m, nil

	case spinner.TickMsg:
		if !m.Busy {
			return m, nil
		}
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	m.Codes, cmd = m.Codes.Update(msg)
	return m, cmd
}

// View renders the remote screen
func (m RemoteModel) View() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(m.renderDevice())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")

	if len(m.Codes.Items()) == 0 {
		b.WriteString("\n  " + WarningStyle.Render("⚠ No saved codes"))
		b.WriteString("\n\n  Learn one with 'rmlink learn --save <name>'.\n")
	} else {
		b.WriteString(m.Codes.View())
	}

	return RenderApplicationContainer(b.String(), m.Help.View(m.Keys), m.Width, m.Height)
}

func (m RemoteModel) renderDevice() string {
	name := m.device.Type.Model
	if m.nickname != "" {
		name = m.nickname + " (" + m.device.Type.Model + ")"
	}
	lines := []string{
		SelectedItemStyle.Render(name),
		fmt.Sprintf("%s • %s • %s", m.device.Addr(), m.device.MAC, m.device.Type.Capability),
	}
	if m.Reading != nil {
		reading := fmt.Sprintf("Temperature %.1f °C", m.Reading.Celsius)
		if m.Reading.HasHumidity {
			reading += fmt.Sprintf(" • Humidity %.1f %%", m.Reading.Humidity)
		}
		lines = append(lines, reading)
	}
	return InfoBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m RemoteModel) renderStatus() string {
	switch {
	case m.Busy:
		return "  " + SpinnerStyle.Render(m.Spinner.View()) + " " + m.Status
	case m.Err != nil:
		return "  " + RenderError(m.Err.Error())
	case m.Status != "":
		return "  " + RenderSuccess(m.Status)
	}
	return ""
}

// Controller returns the controller of the connected device
func (m RemoteModel) Controller() Controller {
	return m.controller
}

// sendCode is a command that sends one code and reports the round trip
func sendCode(ctrl Controller, name string, data []byte, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout(timeout)
		defer cancel()
		rtt, err := ctrl.Send(ctx, data)
		return sentMsg{name: name, rtt: rtt, err: err}
	}
}

// readTemperature is a command that reads the sensor
func readTemperature(ctrl Controller, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout(timeout)
		defer cancel()
		reading, err := ctrl.Temperature(ctx)
		return readingMsg{reading: reading, err: err}
	}
}

// withTimeout leaves headroom over the session's own request timeout
func withTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout+time.Second)
}
