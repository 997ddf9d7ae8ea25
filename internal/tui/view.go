package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("237")).
			Bold(true)

	dirStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	title := fmt.Sprintf("mailfile browser %s — /%s", m.version, m.cwd)
	header := titleBarStyle.Width(m.width).Render(title)

	listWidth := m.width/2 - 2
	if listWidth < 10 {
		listWidth = 10
	}
	listPane := paneStyle.Width(listWidth).Height(m.height - 5).Render(m.renderList())
	previewPane := paneStyle.Width(m.width - listWidth - 4).Height(m.height - 5).Render(m.renderPreviewPane())

	body := lipgloss.JoinHorizontal(lipgloss.Top, listPane, previewPane)

	footer := footerStyle.Render(m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m Model) renderList() string {
	if m.err != nil {
		return errorStyle.Render("sync error: " + m.err.Error())
	}
	if len(m.nodes) == 0 {
		return metaStyle.Render("(empty)")
	}

	var b strings.Builder
	for i, n := range m.nodes {
		name := n.name
		if n.kind == kindDir {
			name += "/"
		}

		prefix := "  "
		if i == m.cursor {
			prefix = "▸ "
		}

		line := prefix + name
		switch {
		case i == m.cursor:
			line = cursorStyle.Render(line)
		case n.kind == kindDir:
			line = dirStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderPreviewPane() string {
	n, ok := m.currentNode()
	if !ok {
		return metaStyle.Render("select a file to preview")
	}
	if n.kind == kindDir {
		return metaStyle.Render("directory: " + n.path)
	}

	if m.previewPath != n.path {
		return metaStyle.Render("loading…")
	}

	lines := []string{metaStyle.Render(fmt.Sprintf("%s  %s", n.path, formatBytes(m.previewSize)))}
	for _, k := range sortedMetadataKeys(m.previewMeta) {
		lines = append(lines, metaStyle.Render(fmt.Sprintf("  %s: %v", k, m.previewMeta[k])))
	}
	lines = append(lines, "", m.preview.View())

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderFooter() string {
	if m.jumping {
		return "jump to: " + m.jump.View()
	}
	help := "↑/↓ move · →/enter open · ←/backspace up · r refresh · / jump · q quit"
	if m.statusMsg != "" {
		return m.statusMsg + "  " + help
	}
	return help
}
