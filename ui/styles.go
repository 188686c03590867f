package ui

import "github.com/charmbracelet/lipgloss"

// Palette using standard ANSI terminal colors (0-15).
// These adapt to the user's terminal theme for consistent appearance.
var (
	colorBorder  = lipgloss.ANSIColor(8)  // bright black (dark gray)
	colorTitle   = lipgloss.ANSIColor(12) // bright blue
	colorText    = lipgloss.ANSIColor(7)  // white (light gray)
	colorDim     = lipgloss.ANSIColor(8)  // bright black (dark gray)
	colorAccent  = lipgloss.ANSIColor(13) // bright magenta
	colorPlaying = lipgloss.ANSIColor(10) // bright green
	colorUser    = lipgloss.ANSIColor(14) // bright cyan

	// Bar gradient: blue -> magenta -> white
	spectrumLow  = lipgloss.ANSIColor(12)
	spectrumMid  = lipgloss.ANSIColor(13)
	spectrumHigh = lipgloss.ANSIColor(15)
)

// Lip Gloss styles
var (
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2).
			Width(66)

	orbStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorTitle).
			Padding(1, 3)

	titleStyle = lipgloss.NewStyle().
			Foreground(colorTitle).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorPlaying).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	questionStyle = lipgloss.NewStyle().
			Foreground(colorUser)

	answerStyle = lipgloss.NewStyle().
			Foreground(colorText)

	selectedStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	activeToggle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.ANSIColor(9)) // bright red

	// Thinking pulse shades, dim to bright.
	pulseDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(4))
	pulseMidStyle    = lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(12))
	pulseBrightStyle = lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(14))
	pulseTextStyle   = lipgloss.NewStyle().
				Foreground(lipgloss.ANSIColor(15)).
				Background(lipgloss.ANSIColor(12)).
				Bold(true)
)
