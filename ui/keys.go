package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"voiceorb/i18n"
)

// handleKey processes keyboard input. Keys the chat does not claim go to the
// input line.
func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.quitting = true
		return nil

	case "enter":
		return m.send()

	case " ":
		// Space types into a non-empty input line.
		if m.input.Value() == "" {
			return m.toggleSelected()
		}

	case "up":
		if _, ok := m.hist.Prev(); ok {
			m.adjustScroll()
		}
		return nil

	case "down":
		if _, ok := m.hist.Next(); ok {
			m.adjustScroll()
		}
		return nil

	case "ctrl+a":
		m.ctrl.SetAutoplay(!m.ctrl.Autoplay())
		return nil

	case "ctrl+v":
		m.voice = !m.voice
		return nil

	case "ctrl+l":
		lang := i18n.Next(m.ctrl.Locale())
		m.ctrl.SetLocale(lang)
		m.input.Placeholder = i18n.T(lang, i18n.TypeQuestion)
		return nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}
