package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"golang.org/x/term"

	"hostproxy/internal/routes"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	listenStyle = lipgloss.NewStyle().Background(lipgloss.Color("39")).Foreground(lipgloss.Color("0"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

const fallbackWidth = 80

// terminalWidth is the column count of w when it is a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return fallbackWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallbackWidth
	}
	return width
}

// printRoutes lists both tables, upstreams first.
func printRoutes(w io.Writer, table *routes.Table) {
	fmt.Fprintln(w, headerStyle.Render("Web Proxies:"))
	if len(table.Upstreams) == 0 {
		fmt.Fprintln(w, dimStyle.Render("(none)"))
	}
	for i, e := range table.Upstreams {
		line := fmt.Sprintf("%d. From: %s, to %s.", i, e.Pattern, e.Upstream)
		if e.HealthPath != "" {
			line += dimStyle.Render(" health " + e.HealthPath)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Development Proxies:"))
	if len(table.Locals) == 0 {
		fmt.Fprintln(w, dimStyle.Render("(none)"))
	}
	for i, e := range table.Locals {
		fmt.Fprintf(w, "%d. From: %s, to %s.\n", i, e.Pattern, e.Handler)
	}
}

func printBanner(w io.Writer, table *routes.Table, listen, adminListen string) {
	printRoutes(w, table)
	fmt.Fprintln(w)
	fmt.Fprintln(w, listenStyle.Render(fmt.Sprintf("Listening on %s.", listen)))
	if adminListen != "" {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("Admin API on %s.", adminListen)))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Logs")
	fmt.Fprintln(w, strings.Repeat("-", terminalWidth(w)))
}
