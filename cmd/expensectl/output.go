package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// printer styles output for the writer it wraps. A writer that is not a
// terminal gets plain text.
type printer struct {
	out io.Writer
	re  *lipgloss.Renderer

	title  lipgloss.Style
	label  lipgloss.Style
	muted  lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	danger lipgloss.Style
}

func newPrinter(out io.Writer) *printer {
	re := lipgloss.NewRenderer(out)
	return &printer{
		out:    out,
		re:     re,
		title:  re.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa")),
		label:  re.NewStyle().Foreground(lipgloss.Color("#7f849c")).Width(16),
		muted:  re.NewStyle().Foreground(lipgloss.Color("#7f849c")),
		ok:     re.NewStyle().Foreground(lipgloss.Color("#a6e3a1")),
		warn:   re.NewStyle().Foreground(lipgloss.Color("#f9e2af")),
		danger: re.NewStyle().Foreground(lipgloss.Color("#f38ba8")),
	}
}

func (p *printer) heading(s string) {
	fmt.Fprintln(p.out, p.title.Render(s))
}

func (p *printer) field(label, value string) {
	fmt.Fprintln(p.out, p.label.Render(label)+value)
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) note(s string) {
	fmt.Fprintln(p.out, p.muted.Render(s))
}

func (p *printer) success(s string) {
	fmt.Fprintln(p.out, p.ok.Render(s))
}

func (p *printer) alert(s string) {
	fmt.Fprintln(p.out, p.danger.Render(s))
}

// severity colors a notification or status word.
func (p *printer) severity(level, s string) string {
	switch level {
	case "danger":
		return p.danger.Render(s)
	case "warning":
		return p.warn.Render(s)
	case "success":
		return p.ok.Render(s)
	}
	return s
}

func (p *printer) table(headers []string, rows [][]string) {
	header := p.re.NewStyle().Bold(true).Padding(0, 1)
	cell := p.re.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.muted).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	fmt.Fprintln(p.out, t.Render())
}
