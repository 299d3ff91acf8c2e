package style

import (
	catppuccin "github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"
)

var (
	chromaDefStyle = "dracula"

	LGDefBorder = lipgloss.HiddenBorder()

	flavour = catppuccin.Frappe

	catBase     = lipgloss.Color(flavour.Base().Hex)
	catBlue     = lipgloss.Color(flavour.Blue().Hex)
	catLavander = lipgloss.Color(flavour.Lavender().Hex)
	catPeach    = lipgloss.Color(flavour.Peach().Hex)
	catMauve    = lipgloss.Color(flavour.Mauve().Hex)
	catGreen    = lipgloss.Color(flavour.Green().Hex)
	catYellow   = lipgloss.Color(flavour.Yellow().Hex)
	catPink     = lipgloss.Color(flavour.Pink().Hex)
	catTeal     = lipgloss.Color(flavour.Teal().Hex)
	lgRed       = lipgloss.Color("#FF0000")

	Cmd = lipgloss.NewStyle().Foreground(catBase).Background(catBlue).
		Bold(true).PaddingLeft(1).PaddingRight(1)

	ItemKey = lipgloss.NewStyle().
		Foreground(catBlue).
		PaddingLeft(1).Bold(true)

	CertKeyP4 = lipgloss.NewStyle().
			Foreground(catLavander).
			PaddingLeft(4)

	CertValue = lipgloss.NewStyle().
			Foreground(catPeach)

	CertValueNotice = lipgloss.NewStyle().
			Foreground(catMauve)

	LeafLabel = lipgloss.NewStyle().
			Foreground(catGreen).Bold(true)

	IntermediateLabel = lipgloss.NewStyle().
				Foreground(catMauve).Bold(true)

	Error = lipgloss.NewStyle().
		Foreground(catPink).Italic(true)

	Trusted   = lipgloss.NewStyle().Foreground(catTeal).Bold(true)
	Untrusted = lipgloss.NewStyle().Foreground(lgRed).Bold(true)
	BoolTrue  = lipgloss.NewStyle().Foreground(catTeal)
	BoolFalse = lipgloss.NewStyle().Foreground(catYellow)
	Warn      = lipgloss.NewStyle().Foreground(catYellow)
	Crit      = lipgloss.NewStyle().Foreground(lgRed)
)
