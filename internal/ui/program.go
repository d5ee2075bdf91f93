package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Printer provides methods for printing UI components to a writer.
// This is the primary way commands should output styled content.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// SetWidth overrides the detected terminal width
func (p *Printer) SetWidth(width int) *Printer {
	p.width = width
	return p
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	p.Println(RenderHeader(title, command, params, p.width))
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	p.Println(NewSuccessResult(title, details).SetWidth(p.width).Render())
}

// PrintWarning prints a warning result box
func (p *Printer) PrintWarning(title string, details map[string]string) {
	p.Println(NewWarningResult(title, details).SetWidth(p.width).Render())
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Println(NewFailureResult(title, err, troubleshooting).SetWidth(p.width).Render())
}

// PrintDevices prints the device table, or a muted note when there are none
func (p *Printer) PrintDevices(rows []DeviceRow) {
	if len(rows) == 0 {
		p.Println(lipgloss.NewStyle().Foreground(MutedColor).Render("  No devices found."))
		return
	}
	p.Println(RenderDeviceTable(rows))
}

// PrintCodes prints the code library table
func (p *Printer) PrintCodes(rows []CodeRow) {
	if len(rows) == 0 {
		p.Println(lipgloss.NewStyle().Foreground(MutedColor).Render("  No codes saved."))
		return
	}
	p.Println(RenderCodeTable(rows))
}

// PrintEvent prints one streamed device event on a single line
func (p *Printer) PrintEvent(at time.Time, kind, source, text string) {
	p.Println(fmt.Sprintf("%s %s %s %s",
		lipgloss.NewStyle().Foreground(MutedColor).Render(at.Format("15:04:05")),
		EventTagStyle.Render(kind),
		lipgloss.NewStyle().Foreground(MutedColor).Render(source),
		text,
	))
}
