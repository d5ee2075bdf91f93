package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// LearnFunc runs a learning workflow, calling report as stages are reached
type LearnFunc func(ctx context.Context, report func(stage string)) ([]byte, error)

// LearnConfig describes one learning run
type LearnConfig struct {
	Title   string            // e.g., "IR Learning"
	Command string            // e.g., "rmlink learn"
	Params  map[string]string // Header parameters
	Label   string            // Instruction shown above the bar
	Steps   []Step            // Stages in the order they are reported
	Window  time.Duration     // Learn timeout, drives the bar
	Run     LearnFunc
	Output  io.Writer // Default os.Stdout
}

// Messages for the learning workflow
type stageMsg string
type learnDoneMsg struct {
	code []byte
	err  error
}

type learnKeyMap struct {
	Cancel key.Binding
}

func (k learnKeyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Cancel} }
func (k learnKeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{{k.Cancel}} }

// LearnModel is the Bubble Tea model shown while a device waits for a code
type LearnModel struct {
	cfg      LearnConfig
	ctx      context.Context
	cancel   context.CancelFunc
	msgs     chan tea.Msg
	started  time.Time
	spinner  spinner.Model
	progress *Progress
	help     help.Model
	keys     learnKeyMap

	Cancelled bool
	Code      []byte
	Err       error
	done      bool
}

// NewLearnModel creates the model. The workflow starts from Init.
func NewLearnModel(ctx context.Context, cfg LearnConfig) LearnModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	ctx, cancel := context.WithCancel(ctx)
	return LearnModel{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		msgs:     make(chan tea.Msg, 8),
		spinner:  s,
		progress: NewProgress(cfg.Label, append([]Step(nil), cfg.Steps...)),
		help:     help.New(),
		keys: learnKeyMap{
			Cancel: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "cancel"),
			),
		},
	}
}

// Init implements tea.Model
func (m LearnModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start)
}

// start runs the workflow in the background and feeds its progress into msgs
func (m LearnModel) start() tea.Msg {
	go func() {
		code, err := m.cfg.Run(m.ctx, func(stage string) {
			select {
			case m.msgs <- stageMsg(stage):
			case <-m.ctx.Done():
			}
		})
		m.msgs <- learnDoneMsg{code: code, err: err}
	}()
	return stageMsg("")
}

func (m LearnModel) wait() tea.Msg {
	return <-m.msgs
}

// Update implements tea.Model
func (m LearnModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Cancel) && !m.Cancelled {
			m.Cancelled = true
			m.cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.progress.SetWidth(msg.Width)
		return m, nil

	case stageMsg:
		if m.started.IsZero() {
			m.started = time.Now()
		}
		if msg != "" {
			m.progress.Advance(string(msg))
		}
		return m, m.wait

	case learnDoneMsg:
		m.done = true
		m.Code, m.Err = msg.code, msg.err
		if m.Err != nil {
			m.progress.Fail(m.Err.Error())
		} else {
			m.progress.Complete()
		}
		m.cancel()
		return m, tea.Quit

	case spinner.TickMsg:
		if m.cfg.Window > 0 && !m.started.IsZero() {
			m.progress.Percent = float64(time.Since(m.started)) / float64(m.cfg.Window)
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m LearnModel) View() string {
	remaining := ""
	if m.cfg.Window > 0 && !m.started.IsZero() {
		left := m.cfg.Window - time.Since(m.started)
		if left < 0 {
			left = 0
		}
		remaining = fmt.Sprintf("%2.0fs left", left.Seconds())
	}

	status := m.spinner.View() + " waiting for the device"
	switch {
	case m.done:
		status = ""
	case m.Cancelled:
		status = m.spinner.View() + " cancelling"
	}

	out := m.progress.Render(remaining) + "\n\n"
	if status != "" {
		out += "  " + status + "\n\n  " + m.help.View(m.keys) + "\n"
	}
	return out
}

// RunLearn shows the header, runs the workflow under the Bubble Tea model and
// returns the captured code. Without a terminal it prints plain stage lines.
func RunLearn(ctx context.Context, cfg LearnConfig) ([]byte, error) {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	p := NewPrinter(cfg.Output)
	p.PrintHeader(cfg.Title, cfg.Command, cfg.Params)

	f, isFile := cfg.Output.(*os.File)
	if !isFile || !term.IsTerminal(int(f.Fd())) {
		return cfg.Run(ctx, func(stage string) {
			for _, s := range cfg.Steps {
				if s.Key == stage {
					p.Println("  " + StepMarkerRunning + " " + s.Name)
				}
			}
		})
	}

	final, err := tea.NewProgram(NewLearnModel(ctx, cfg), tea.WithOutput(cfg.Output)).Run()
	if err != nil {
		return nil, fmt.Errorf("learn display failed: %w", err)
	}
	m := final.(LearnModel)
	if m.Err == nil && m.Cancelled {
		return nil, context.Canceled
	}
	return m.Code, m.Err
}
