// Package ui renders command output for terminals.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#86D993"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#F2C14E"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF6B6B"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#7AB8FF"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#8A8A8A"}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	BoldStyle   = lipgloss.NewStyle().Bold(true)
)

// Setup picks the color profile for w. Colors are off when w is not a
// terminal or NO_COLOR is set.
func Setup(w io.Writer) {
	out := termenv.NewOutput(w)
	profile := out.EnvColorProfile()
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		profile = termenv.Ascii
	}
	lipgloss.SetColorProfile(profile)
	lipgloss.SetHasDarkBackground(out.HasDarkBackground())
}

// DisableColor turns styling off.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderBold(s string) string   { return BoldStyle.Render(s) }
