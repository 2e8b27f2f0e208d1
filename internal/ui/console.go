// Package ui prints CLI output: status lines, daemon progress and JSON.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/muesli/termenv"
)

// Console writes results to out and diagnostics to err. Colour is used only
// when the destination is a terminal.
type Console struct {
	out io.Writer
	err io.Writer

	errorStyle   lipgloss.Style
	warningStyle lipgloss.Style
	successStyle lipgloss.Style
	infoStyle    lipgloss.Style
}

func NewConsole() *Console {
	return NewConsoleWithWriters(os.Stdout, os.Stderr)
}

// NewConsoleWithWriters builds a console over arbitrary writers. Writers
// that are not terminals get plain text.
func NewConsoleWithWriters(out, err io.Writer) *Console {
	return newConsole(out, err, lipgloss.NewRenderer(out), lipgloss.NewRenderer(err))
}

func newConsole(out, err io.Writer, outRenderer, errRenderer *lipgloss.Renderer) *Console {
	base := func(r *lipgloss.Renderer, color string) lipgloss.Style {
		return r.NewStyle().Foreground(lipgloss.Color(color)).TabWidth(lipgloss.NoTabConversion)
	}
	return &Console{
		out:          out,
		err:          err,
		errorStyle:   base(errRenderer, "1").Bold(true),
		warningStyle: base(errRenderer, "3"),
		successStyle: base(outRenderer, "2"),
		infoStyle:    base(outRenderer, "4"),
	}
}

// withProfile forces a colour profile on both writers.
func withProfile(out, err io.Writer, profile termenv.Profile) *Console {
	outRenderer, errRenderer := lipgloss.NewRenderer(out), lipgloss.NewRenderer(err)
	outRenderer.SetColorProfile(profile)
	errRenderer.SetColorProfile(profile)
	return newConsole(out, err, outRenderer, errRenderer)
}

// render styles line by line; lipgloss would otherwise pad every line of a
// multi-line block to the widest one.
func render(style lipgloss.Style, message string) string {
	lines := strings.Split(message, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = style.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

func (c *Console) PrintError(message string) {
	fmt.Fprintln(c.err, render(c.errorStyle, "Error: "+message))
}

func (c *Console) PrintWarning(message string) {
	fmt.Fprintln(c.err, render(c.warningStyle, "Warning: "+message))
}

func (c *Console) PrintSuccess(message string) {
	fmt.Fprintln(c.out, render(c.successStyle, message))
}

func (c *Console) PrintInfo(message string) {
	fmt.Fprintln(c.out, render(c.infoStyle, message))
}

// PrintEvent renders one progress record from a build/pull/push stream.
func (c *Console) PrintEvent(ev *jsonmessage.JSONMessage) {
	if ev == nil {
		return
	}
	if ev.Stream != "" {
		fmt.Fprint(c.out, ev.Stream)
		return
	}

	var parts []string
	if ev.ID != "" {
		parts = append(parts, ev.ID+":")
	}
	if ev.Status != "" {
		parts = append(parts, ev.Status)
	}
	if ev.Progress != nil {
		if p := ev.Progress.String(); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return
	}
	fmt.Fprintln(c.out, strings.Join(parts, " "))
}

// PrintJSON writes v to stdout as indented JSON.
func (c *Console) PrintJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "%s\n", data)
	return err
}

// FormatErrorMessage lays out an error as its message followed by optional
// Cause and Suggestion lines.
func (c *Console) FormatErrorMessage(message, cause, suggestion string) string {
	lines := make([]string, 0, 3)
	if message != "" {
		lines = append(lines, message)
	}
	if cause != "" {
		lines = append(lines, "Cause: "+cause)
	}
	if suggestion != "" {
		lines = append(lines, "Suggestion: "+suggestion)
	}
	return strings.Join(lines, "\n")
}
