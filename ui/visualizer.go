package ui

import (
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"voiceorb/spectrum"
)

const (
	barFloor   = 0.15 // no bar ever fully collapses
	barCeiling = 0.95 // and none clips the orb
	barWidth   = 3    // character width of each bar
	barGap     = 2
	orbRows    = 5
)

// Bar weights. The center pair reacts most; outer rings follow the center
// bar on their side, damped by distance.
const (
	centerWeight     = 1.00
	centerPairWeight = 0.85
	innerRingFactor  = 0.60
	outerRingFactor  = 0.30
)

// Unicode block elements for bar height (9 levels including space)
var barBlocks = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// Pre-built styles for bar colors to avoid per-frame allocation.
var (
	specLowStyle  = lipgloss.NewStyle().Foreground(spectrumLow)
	specMidStyle  = lipgloss.NewStyle().Foreground(spectrumMid)
	specHighStyle = lipgloss.NewStyle().Foreground(spectrumHigh)
	staticStyle   = lipgloss.NewStyle().Foreground(colorDim)
)

// Visualizer draws the orb: a few vertical bars driven by a spectrum
// snapshot, or a pulse while an answer is pending.
type Visualizer struct {
	bars int
	rows int
}

// NewVisualizer creates a Visualizer with the given bar count.
func NewVisualizer(bars int) *Visualizer {
	if bars < 1 {
		bars = spectrum.DefaultBands
	}
	return &Visualizer{bars: bars, rows: orbRows}
}

// Bars returns the bar count.
func (v *Visualizer) Bars() int { return v.bars }

// Width returns the rendered width in cells.
func (v *Visualizer) Width() int {
	return v.bars*barWidth + (v.bars-1)*barGap
}

// Heights maps a snapshot to bar heights in [barFloor, barCeiling]. The two
// strongest bands drive the center pair; every other bar is a fixed fraction
// of the center bar on its side.
func (v *Visualizer) Heights(s spectrum.Snapshot) []float64 {
	levels := append([]float64(nil), s...)
	sort.Sort(sort.Reverse(sort.Float64Slice(levels)))
	level := func(i int) float64 {
		if i < len(levels) {
			return max(0, min(1, levels[i]))
		}
		return 0
	}

	n := v.bars
	h := make([]float64, n)
	left, right := (n-1)/2, n/2
	h[left] = centerWeight * level(0)
	if right != left {
		h[right] = centerPairWeight * level(1)
	}

	rings := left
	for r := 1; r <= rings; r++ {
		f := innerRingFactor
		if rings > 1 {
			f = innerRingFactor - (innerRingFactor-outerRingFactor)*float64(r-1)/float64(rings-1)
		}
		h[left-r] = f * h[left]
		h[right+r] = f * h[right]
	}
	for i := range h {
		h[i] = max(barFloor, min(barCeiling, h[i]))
	}
	return h
}

// Render draws the bars for a snapshot, bottom aligned, one line per row.
func (v *Visualizer) Render(s spectrum.Snapshot) string {
	h := v.Heights(s)
	styles := make([]lipgloss.Style, len(h))
	for i, level := range h {
		// Color gradient: green -> yellow -> red based on level
		switch {
		case level > 0.75:
			styles[i] = specHighStyle
		case level > 0.45:
			styles[i] = specMidStyle
		default:
			styles[i] = specLowStyle
		}
	}
	return v.draw(h, styles)
}

// RenderStatic draws flat bars at the floor height.
func (v *Visualizer) RenderStatic() string {
	h := make([]float64, v.bars)
	styles := make([]lipgloss.Style, v.bars)
	for i := range h {
		h[i] = barFloor
		styles[i] = staticStyle
	}
	return v.draw(h, styles)
}

func (v *Visualizer) draw(h []float64, styles []lipgloss.Style) string {
	lines := make([]string, v.rows)
	for row := range v.rows {
		// Rows count from the top; fill counts from the bottom.
		base := float64(v.rows - 1 - row)
		var sb strings.Builder
		for i, level := range h {
			fill := level*float64(v.rows) - base
			idx := int(math.Round(max(0, min(1, fill)) * float64(len(barBlocks)-1)))
			sb.WriteString(styles[i].Render(strings.Repeat(barBlocks[idx], barWidth)))
			if i < len(h)-1 {
				sb.WriteString(strings.Repeat(" ", barGap))
			}
		}
		lines[row] = sb.String()
	}
	return strings.Join(lines, "\n")
}

// RenderPulse draws the thinking orb: a filled ellipse whose size follows
// the pulse scale and whose shade follows its opacity, with caption across
// the middle row.
func (v *Visualizer) RenderPulse(p spectrum.Pulse, caption string) string {
	width := v.Width()
	style := pulseStyle(p.Opacity)
	center := float64(v.rows-1) / 2
	lines := make([]string, v.rows)
	for row := range v.rows {
		dy := (float64(row) - center) / (center + 0.5)
		half := int(math.Round(float64(width) / 2 * p.Scale * math.Sqrt(max(0, 1-dy*dy))))
		pad := (width - 2*half) / 2
		if row == v.rows/2 {
			lines[row] = pulseCaption(width, half, pad, caption, style)
			continue
		}
		lines[row] = strings.Repeat(" ", pad) + style.Render(strings.Repeat("█", 2*half)) + strings.Repeat(" ", width-pad-2*half)
	}
	return strings.Join(lines, "\n")
}

func pulseCaption(width, half, pad int, caption string, style lipgloss.Style) string {
	runes := []rune(caption)
	if len(runes) > 2*half {
		runes = runes[:2*half]
	}
	side := 2*half - len(runes)
	l := side / 2
	return strings.Repeat(" ", pad) +
		style.Render(strings.Repeat("█", l)) +
		pulseTextStyle.Render(string(runes)) +
		style.Render(strings.Repeat("█", side-l)) +
		strings.Repeat(" ", width-pad-2*half)
}

func pulseStyle(opacity float64) lipgloss.Style {
	switch {
	case opacity > 0.87:
		return pulseBrightStyle
	case opacity > 0.73:
		return pulseMidStyle
	default:
		return pulseDimStyle
	}
}
