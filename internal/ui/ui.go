// Package ui renders CLI status output.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#0ea5e9"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	labelStyle  = lipgloss.NewStyle().Bold(true)
)

func init() {
	if termenv.EnvNoColor() {
		SetColor(false)
	}
}

// SetColor turns styled output on or off. With color off every Render
// function returns its input unchanged.
func SetColor(enabled bool) {
	if enabled {
		lipgloss.SetColorProfile(termenv.EnvColorProfile())
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}

// RenderPass styles a success marker.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn styles a warning marker.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail styles a failure marker.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderAccent styles a heading or highlighted value.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderMuted styles secondary text.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// Status returns the pass or fail marker for ok.
func Status(ok bool) string {
	if ok {
		return RenderPass("✓")
	}
	return RenderFail("✗")
}

// KeyValues renders aligned "label: value" rows, indented by three
// spaces like the rest of the CLI output.
func KeyValues(rows [][2]string) string {
	width := 0
	for _, row := range rows {
		if n := lipgloss.Width(row[0]); n > width {
			width = n
		}
	}
	var b strings.Builder
	for _, row := range rows {
		pad := strings.Repeat(" ", width-lipgloss.Width(row[0]))
		fmt.Fprintf(&b, "   %s:%s %s\n", labelStyle.Render(row[0]), pad, row[1])
	}
	return b.String()
}
