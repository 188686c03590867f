package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"voiceorb/history"
	"voiceorb/i18n"
	"voiceorb/spectrum"
)

const panelWidth = 60 // usable inner width (66 frame - 2 border - 4 padding)

// View renders the full TUI frame.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.renderTitle(),
		"",
		m.renderOrb(),
		m.renderStatus(),
		"",
		m.renderHistory(),
		"",
		m.input.View(),
		"",
		m.renderHelp(),
	}

	if m.err != nil {
		sections = append(sections, errorStyle.Render(fmt.Sprintf("ERR: %s", m.err)))
	}

	return frameStyle.Render(strings.Join(sections, "\n"))
}

func (m Model) renderTitle() string {
	lang := m.ctrl.Locale()
	title := titleStyle.Render(i18n.T(lang, i18n.Title))
	sub := dimStyle.Render(i18n.T(lang, i18n.Subtitle))
	return title + "  " + sub
}

// renderOrb draws the pulse while thinking, live bars while playing and
// static bars otherwise.
func (m Model) renderOrb() string {
	var body string
	switch thinking, elapsed := m.ctrl.Thinking(); {
	case thinking:
		body = m.vis.RenderPulse(spectrum.PulseAt(elapsed), i18n.T(m.ctrl.Locale(), i18n.GoodQuestion))
	case m.ctrl.Playing() && m.snapshot != nil:
		body = m.vis.Render(m.snapshot)
	default:
		body = m.vis.RenderStatic()
	}
	return lipgloss.PlaceHorizontal(panelWidth, lipgloss.Center, orbStyle.Render(body))
}

// renderStatus shows the selected answer's status on the left and the
// toggles on the right.
func (m Model) renderStatus() string {
	lang := m.ctrl.Locale()
	left := dimStyle.Render(i18n.T(lang, i18n.Idle))
	if e, idx := m.hist.Current(); idx >= 0 && e.Reply != nil {
		left = statusStyle.Render(e.Reply.Session().StatusText())
	}

	autoplay := toggleLabel(m.ctrl.Autoplay(), i18n.T(lang, i18n.AutoplayOn), i18n.T(lang, i18n.AutoplayOff))
	voice := toggleLabel(m.voice, i18n.T(lang, i18n.VoiceOn), i18n.T(lang, i18n.VoiceOff))
	right := autoplay + " " + voice + " " + dimStyle.Render(i18n.T(lang, i18n.LanguageName))

	gap := panelWidth - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return left + "\n" + right
	}
	return left + strings.Repeat(" ", gap) + right
}

func toggleLabel(on bool, onText, offText string) string {
	if on {
		return activeToggle.Render("[" + onText + "]")
	}
	return dimStyle.Render("[" + offText + "]")
}

func (m Model) renderHistory() string {
	entries := m.hist.Entries()
	if len(entries) == 0 {
		return dimStyle.Render("  " + i18n.T(m.ctrl.Locale(), i18n.TypeQuestion))
	}

	visible := min(m.hVisible, len(entries))
	scroll := m.hScroll
	if scroll+visible > len(entries) {
		scroll = len(entries) - visible
	}
	scroll = max(0, scroll)

	selected := m.hist.Index()
	lines := make([]string, 0, 2*visible)
	for i := scroll; i < scroll+visible && i < len(entries); i++ {
		e := entries[i]
		prefix, qStyle := "  ", questionStyle
		if i == selected {
			prefix, qStyle = "▸ ", selectedStyle
		}
		lines = append(lines, qStyle.Render(prefix+e.Title(panelWidth-2)))
		lines = append(lines, m.renderAnswer(e))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderAnswer(e history.Exchange) string {
	switch {
	case e.Thinking:
		return dimStyle.Render("  " + e.Text)
	case e.Failed:
		return errorStyle.Render("  " + e.Text)
	case e.Voice():
		s := e.Reply.Session()
		label := "♪ " + i18n.T(m.ctrl.Locale(), i18n.VoiceResponse) + " · " + s.StatusText()
		return answerStyle.Render("  " + label)
	default:
		return answerStyle.Width(panelWidth).PaddingLeft(2).Render(e.Text)
	}
}

func (m Model) renderHelp() string {
	return helpStyle.Render(i18n.T(m.ctrl.Locale(), i18n.Help))
}
