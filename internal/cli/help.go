// ABOUTME: Styled kong help output
// ABOUTME: Renders usage, subcommands and flags with lipgloss
package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

var (
	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(primaryColor).
				MarginTop(1)

	helpNameStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Italic(true)
)

// StyledHelpPrinter returns a kong help printer titled with product
func StyledHelpPrinter(product, description string) kong.HelpPrinter {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		sb.WriteString(TitleStyle.Render(product))
		sb.WriteString("\n")
		if description != "" {
			sb.WriteString(KeyStyle.Render(description))
			sb.WriteString("\n")
		}

		node := ctx.Selected()
		if node == nil {
			node = ctx.Model.Node
		}

		sb.WriteString(helpSectionStyle.Render("Usage:"))
		sb.WriteString("\n  ")
		sb.WriteString(node.Summary())
		sb.WriteString("\n")

		if cmds := node.Leaves(true); len(cmds) > 0 && node == ctx.Model.Node {
			sb.WriteString(helpSectionStyle.Render("Commands:"))
			sb.WriteString("\n")
			for _, cmd := range cmds {
				writeHelpLine(&sb, cmd.Path(), cmd.Help, "")
			}
		}

		var flags []*kong.Flag
		for _, group := range node.AllFlags(true) {
			flags = append(flags, group...)
		}
		if len(flags) > 0 {
			sb.WriteString(helpSectionStyle.Render("Flags:"))
			sb.WriteString("\n")
			for _, f := range flags {
				writeHelpLine(&sb, flagName(f), f.Help, f.Default)
			}
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	}
}

func writeHelpLine(sb *strings.Builder, name, help, def string) {
	sb.WriteString("  ")
	sb.WriteString(helpNameStyle.Render(name))
	if help != "" {
		sb.WriteString("  ")
		sb.WriteString(help)
	}
	if def != "" {
		sb.WriteString(" ")
		sb.WriteString(helpDefaultStyle.Render("(default: " + def + ")"))
	}
	sb.WriteString("\n")
}

func flagName(f *kong.Flag) string {
	name := "--" + f.Name
	if f.Short != 0 {
		name = fmt.Sprintf("-%c, %s", f.Short, name)
	}
	if !f.IsBool() {
		name += "=" + strings.ToUpper(f.FormatPlaceHolder())
	}
	return name
}
