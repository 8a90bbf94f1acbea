package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	maxWidth = 72
	minWidth = 40
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sectionStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214"))
	nameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	flagStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func init() {
	if termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// getTerminalWidth returns the terminal width clamped to [minWidth, maxWidth].
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < minWidth {
		return maxWidth
	}
	if width > maxWidth {
		return maxWidth
	}
	return width
}

// wrapText wraps text to width, preserving existing line breaks.
func wrapText(text string, width int) string {
	var out []string
	for _, paragraph := range strings.Split(text, "\n") {
		if len(paragraph) <= width {
			out = append(out, paragraph)
			continue
		}
		var line string
		for _, word := range strings.Fields(paragraph) {
			switch {
			case line == "":
				line = word
			case len(line)+1+len(word) <= width:
				line += " " + word
			default:
				out = append(out, line)
				line = word
			}
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// SetStyledHelp applies the tracker help layout to cmd and, through cobra's
// inheritance, to its subcommands.
func SetStyledHelp(cmd *cobra.Command) {
	cmd.SetHelpFunc(styledHelpFunc)
}

// parseDescription splits Long into description and an Examples: block.
func parseDescription(long string) (description, examples string) {
	for _, marker := range []string{"\nExamples:\n", "\nExample:\n"} {
		if idx := strings.Index(long, marker); idx != -1 {
			return strings.TrimSpace(long[:idx]), strings.TrimSpace(long[idx+len(marker):])
		}
	}
	return long, ""
}

func styledHelpFunc(cmd *cobra.Command, _ []string) {
	w := cmd.OutOrStdout()
	width := getTerminalWidth() - 2

	fmt.Fprintln(w, " "+titleStyle.Render(strings.ToUpper(cmd.CommandPath())))

	description, examples := parseDescription(cmd.Long)
	if description == "" {
		description = cmd.Short
	}
	for _, line := range strings.Split(wrapText(description, width), "\n") {
		fmt.Fprintln(w, " "+line)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, " "+sectionStyle.Render("USAGE"))
	fmt.Fprintln(w, "  "+cmd.UseLine())

	if subs := availableCommands(cmd); len(subs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, " "+sectionStyle.Render("COMMANDS"))
		for _, sub := range subs {
			fmt.Fprintf(w, "  %s %s\n", nameStyle.Render(fmt.Sprintf("%-12s", sub.Name())), sub.Short)
		}
	}

	printFlags := func(title string, fs *pflag.FlagSet) {
		if !fs.HasAvailableFlags() {
			return
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, " "+sectionStyle.Render(title))
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Hidden {
				return
			}
			name := "--" + f.Name
			if f.Shorthand != "" {
				name = "-" + f.Shorthand + ", " + name
			}
			fmt.Fprintf(w, "  %s %s\n", flagStyle.Render(fmt.Sprintf("%-22s", name)), f.Usage)
		})
	}
	printFlags("FLAGS", cmd.LocalFlags())
	printFlags("GLOBAL FLAGS", cmd.InheritedFlags())

	if examples != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, " "+sectionStyle.Render("EXAMPLES"))
		for _, line := range strings.Split(examples, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "#") {
				fmt.Fprintln(w, "  "+mutedStyle.Render(trimmed))
			} else {
				fmt.Fprintln(w, "  "+trimmed)
			}
		}
	}
}

func availableCommands(cmd *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			out = append(out, sub)
		}
	}
	return out
}

// PrintError prints a styled error line with a help hint.
func PrintError(cmd *cobra.Command, err error) {
	red := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", red.Render("Error:"), err.Error())
	fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render(fmt.Sprintf("Run '%s --help' for usage.", cmd.CommandPath())))
}
