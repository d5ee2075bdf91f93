package console

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/muurk/rmlink/internal/logging"
)

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenDiscovery Screen = "discovery"
	ScreenRemote    Screen = "remote"
)

// AppModel is the top-level model that moves between the device list and
// the remote of the connected device. It owns the connected controller.
type AppModel struct {
	cfg Config

	CurrentScreen Screen
	Discovery     DiscoveryModel
	Remote        RemoteModel

	Width  int
	Height int
}

// NewAppModel creates the application model on the discovery screen
func NewAppModel(cfg Config) AppModel {
	return AppModel{
		cfg:           cfg,
		CurrentScreen: ScreenDiscovery,
		Discovery:     NewDiscoveryModel(cfg),
		Width:         DefaultWidth,
		Height:        DefaultHeight,
	}
}

// Init starts discovery
func (m AppModel) Init() tea.Cmd {
	return m.Discovery.Init()
}

// Update handles all messages and routes them to the current screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		var c1, c2 tea.Cmd
		m.Discovery, c1 = m.Discovery.Update(msg)
		if m.CurrentScreen == ScreenRemote {
			m.Remote, c2 = m.Remote.Update(msg)
		}
		return m, tea.Batch(c1, c2)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if msg.String() == "q" && !m.filtering() {
			return m.quit()
		}
		if msg.String() == "esc" && m.CurrentScreen == ScreenDiscovery && !m.filtering() && !m.Discovery.Scanning && !m.Discovery.Connecting {
			return m.quit()
		}

	case connectedMsg:
		var cmd tea.Cmd
		m.Discovery, cmd = m.Discovery.Update(msg)
		if msg.err != nil {
			logging.Warn("Console connect failed", zap.String("device", msg.device.String()), zap.Error(msg.err))
			return m, cmd
		}
		return m.openRemote(msg)
	}

	var cmd tea.Cmd
	switch m.CurrentScreen {
	case ScreenDiscovery:
		m.Discovery, cmd = m.Discovery.Update(msg)

	case ScreenRemote:
		m.Remote, cmd = m.Remote.Update(msg)
		if m.Remote.BackRequested {
			return m.closeRemote()
		}
	}
	return m, cmd
}

// filtering reports whether the current list is taking typed input
func (m AppModel) filtering() bool {
	switch m.CurrentScreen {
	case ScreenRemote:
		return m.Remote.Codes.FilterState() == list.Filtering
	default:
		return m.Discovery.DeviceList.FilterState() == list.Filtering
	}
}

func (m AppModel) openRemote(msg connectedMsg) (tea.Model, tea.Cmd) {
	m.Remote = NewRemoteModel(m.cfg, msg.device, msg.controller)
	var cmd tea.Cmd
	m.Remote, cmd = m.Remote.Update(tea.WindowSizeMsg{Width: m.Width, Height: m.Height})
	m.CurrentScreen = ScreenRemote
	logging.Info("Console connected", zap.String("device", msg.device.String()))
	return m, tea.Batch(cmd, m.Remote.Init())
}

func (m AppModel) closeRemote() (tea.Model, tea.Cmd) {
	m.closeController()
	m.Remote = RemoteModel{}
	m.CurrentScreen = ScreenDiscovery
	var cmd tea.Cmd
	m.Discovery, cmd = m.Discovery.startScan()
	return m, cmd
}

func (m AppModel) quit() (tea.Model, tea.Cmd) {
	m.closeController()
	m.Remote = RemoteModel{}
	return m, tea.Quit
}

func (m AppModel) closeController() {
	if ctrl := m.Remote.Controller(); ctrl != nil {
		if err := ctrl.Close(); err != nil {
			logging.Debug("Console session close", zap.Error(err))
		}
	}
}

// View renders the current screen
func (m AppModel) View() string {
	switch m.CurrentScreen {
	case ScreenRemote:
		return m.Remote.View()
	default:
		return m.Discovery.View()
	}
}

// Run shows the console until the user quits
func Run(cfg Config) error {
	_, err := tea.NewProgram(NewAppModel(cfg), tea.WithAltScreen()).Run()
	return err
}
