// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the prover CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes styled output to w. In plain mode it writes tab-separated,
// unstyled lines meant for scripts.
type Printer struct {
	w     io.Writer
	plain bool
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, plain bool) *Printer {
	return &Printer{w: w, plain: plain}
}

// Plain reports whether the printer is in plain mode.
func (p *Printer) Plain() bool { return p.plain }

// Title prints a styled title. Omitted in plain mode.
func (p *Printer) Title(text string) {
	if p.plain {
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	if p.plain {
		fmt.Fprintf(p.w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Error prints an error message
func (p *Printer) Error(text string) {
	if p.plain {
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	if p.plain {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Row prints one record: tab separated in plain mode, otherwise a bullet
// with the first field highlighted.
func (p *Printer) Row(fields ...string) {
	if p.plain {
		fmt.Fprintln(p.w, strings.Join(fields, "\t"))
		return
	}
	if len(fields) == 0 {
		return
	}
	rest := ""
	if len(fields) > 1 {
		rest = " " + Styles.Muted.Render(strings.Join(fields[1:], "  "))
	}
	fmt.Fprintf(p.w, "%s %s%s\n", IconBullet.Render(), Styles.Highlight.Render(fields[0]), rest)
}

// Box prints content in a rounded box under title.
func (p *Printer) Box(title, content string) {
	if p.plain {
		fmt.Fprintf(p.w, "%s:\n%s\n", title, content)
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}

// ErrorBox prints content in an error-styled box.
func (p *Printer) ErrorBox(title, content string) {
	if p.plain {
		fmt.Fprintf(p.w, "ERROR %s:\n%s\n", title, content)
		return
	}
	fmt.Fprintln(p.w, Styles.ErrorBox.Render(Styles.Error.Bold(true).Render(title)+"\n"+content))
}

// Goal renders a goal string "hyps ⊢ target" with the turnstile and
// target emphasized.
func Goal(goal string) string {
	hyps, target, ok := strings.Cut(goal, "⊢")
	if !ok {
		return goal
	}
	return Styles.Muted.Render(hyps) + Styles.Highlight.Render("⊢") + Styles.Bold.Render(target)
}
