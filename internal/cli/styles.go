// ABOUTME: Terminal styles and printers for command output
// ABOUTME: Version banner, errors and informational lines
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#5A56E0") // Indigo
	accentColor  = lipgloss.Color("#04B575") // Green
	errorColor   = lipgloss.Color("#E0245E") // Red
	mutedColor   = lipgloss.Color("#888888") // Gray
	textColor    = lipgloss.Color("#FFFFFF") // White
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)
)

// PrintVersion prints version information
func PrintVersion(product, version string) {
	fmt.Println(TitleStyle.Render(product))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintSuccess prints a confirmation line
func PrintSuccess(message string) {
	fmt.Println(SuccessStyle.Render(message))
}

// PrintKeyValue prints a labelled value
func PrintKeyValue(w io.Writer, key, value string) {
	fmt.Fprintf(w, "%s %s\n", KeyStyle.Render(key+":"), ValueStyle.Render(value))
}
