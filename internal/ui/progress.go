package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending  StepStatus = iota // Not yet started
	StepRunning                    // Currently executing
	StepComplete                   // Successfully completed
	StepFailed                     // Failed
)

// Step represents a single stage of a learning workflow
type Step struct {
	Key     string     // Stage identifier reported by the session
	Name    string     // Display text
	Status  StepStatus // Current status
	Message string     // Optional note (e.g., "433.92 MHz band")
}

// Progress shows the learn window as a bar plus the list of stages
type Progress struct {
	Label   string
	Steps   []Step
	Percent float64 // Elapsed share of the learn window (0.0 - 1.0)
	Width   int
	bar     progress.Model
}

// NewProgress creates a progress display for the given stages
func NewProgress(label string, steps []Step) *Progress {
	p := &Progress{
		Label: label,
		Steps: steps,
	}
	p.SetWidth(GetTerminalWidth())
	return p
}

// SetWidth sets the terminal width for responsive rendering
func (p *Progress) SetWidth(width int) *Progress {
	p.Width = width
	barWidth := width - 20 // Leave room for the countdown
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
	)
	return p
}

// Advance marks key as running and every earlier stage as complete.
// Unknown keys are ignored.
func (p *Progress) Advance(key string) {
	idx := p.index(key)
	if idx < 0 {
		return
	}
	for i := range p.Steps {
		switch {
		case i < idx:
			p.Steps[i].Status = StepComplete
		case i == idx:
			p.Steps[i].Status = StepRunning
		}
	}
}

// Complete marks every stage as complete
func (p *Progress) Complete() {
	for i := range p.Steps {
		p.Steps[i].Status = StepComplete
	}
	p.Percent = 1
}

// Fail marks the running stage as failed
func (p *Progress) Fail(message string) {
	for i := range p.Steps {
		if p.Steps[i].Status == StepRunning {
			p.Steps[i].Status = StepFailed
			p.Steps[i].Message = message
			return
		}
	}
}

// Current returns the running stage, or nil
func (p *Progress) Current() *Step {
	for i := range p.Steps {
		if p.Steps[i].Status == StepRunning {
			return &p.Steps[i]
		}
	}
	return nil
}

func (p *Progress) index(key string) int {
	for i, s := range p.Steps {
		if s.Key == key {
			return i
		}
	}
	return -1
}

// Render returns the styled progress display as a string
func (p *Progress) Render(remaining string) string {
	var b strings.Builder

	if p.Label != "" {
		b.WriteString(ProgressLabelStyle.Render(p.Label))
		b.WriteString("\n\n")
	}

	pct := p.Percent
	if pct > 1 {
		pct = 1
	}
	b.WriteString(lipgloss.NewStyle().
		PaddingLeft(2).
		Render(fmt.Sprintf("%s  %s", p.bar.ViewAs(pct), remaining)))
	b.WriteString("\n\n")

	lines := make([]string, len(p.Steps))
	for i, step := range p.Steps {
		lines[i] = p.renderStepLine(i, step)
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// renderStepLine renders a single step line
func (p *Progress) renderStepLine(i int, step Step) string {
	var marker string
	var style lipgloss.Style

	switch step.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  [%d/%d] ", i+1, len(p.Steps)))
	b.WriteString(style.Render(step.Name))

	padding := 40 - lipgloss.Width(step.Name)
	if padding < 1 {
		padding = 1
	}
	b.WriteString(strings.Repeat(" ", padding))
	b.WriteString(style.Render(marker))

	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Message + ")"))
	}
	return b.String()
}
