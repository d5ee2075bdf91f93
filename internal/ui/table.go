package ui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// DeviceRow is one line of the device table
type DeviceRow struct {
	MAC        string
	Address    string
	Model      string
	Type       string // e.g., "0x2787"
	Capability string
	Nickname   string
}

// CodeRow is one line of the code library table
type CodeRow struct {
	Name    string
	Kind    string
	Device  string
	Size    int
	Learned string
}

// RenderDeviceTable renders devices as a bordered table
func RenderDeviceTable(rows []DeviceRow) string {
	t := newTable("MAC", "ADDRESS", "MODEL", "TYPE", "CAPABILITY", "NAME")
	for _, r := range rows {
		t.Row(r.MAC, r.Address, r.Model, r.Type, r.Capability, r.Nickname)
	}
	return t.Render()
}

// RenderCodeTable renders the learned code library
func RenderCodeTable(rows []CodeRow) string {
	t := newTable("NAME", "KIND", "DEVICE", "BYTES", "LEARNED")
	for _, r := range rows {
		t.Row(r.Name, r.Kind, r.Device, strconv.Itoa(r.Size), r.Learned)
	}
	return t.Render()
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(PrimaryColor)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case col == 0:
				return TableCellStyle
			default:
				return TableMutedCellStyle
			}
		})
}
