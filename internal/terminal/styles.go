package terminal

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Style tags a run of output text.
type Style int

const (
	StyleStdout Style = iota
	StyleStderr
	StyleError
	StyleBanner
	StylePrompt
	StyleInput
)

// Segment is a run of text sharing one style. It never contains '\n'.
type Segment struct {
	Style Style
	Text  string
}

// Line is one terminal row.
type Line []Segment

// Plain returns the line text without styling.
func (l Line) Plain() string {
	var b strings.Builder
	for _, s := range l {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Styles maps output styles to lipgloss renderers.
type Styles struct {
	Stdout lipgloss.Style
	Stderr lipgloss.Style
	Error  lipgloss.Style
	Banner lipgloss.Style
	Prompt lipgloss.Style
	Input  lipgloss.Style

	ActiveTab   lipgloss.Style
	InactiveTab lipgloss.Style
	NewTab      lipgloss.Style
}

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	return Styles{
		Stdout: lipgloss.NewStyle(),
		Stderr: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Banner: lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true),
		Prompt: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Input:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),

		ActiveTab: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("63")),
		InactiveTab: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")),
		NewTab: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Bold(true),
	}
}

func (s Styles) forStyle(style Style) lipgloss.Style {
	switch style {
	case StyleStderr:
		return s.Stderr
	case StyleError:
		return s.Error
	case StyleBanner:
		return s.Banner
	case StylePrompt:
		return s.Prompt
	case StyleInput:
		return s.Input
	default:
		return s.Stdout
	}
}

// RenderLine renders one line with styles applied.
func (s Styles) RenderLine(l Line) string {
	var b strings.Builder
	for _, seg := range l {
		b.WriteString(s.forStyle(seg.Style).Render(seg.Text))
	}
	return b.String()
}
