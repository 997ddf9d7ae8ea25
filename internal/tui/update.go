package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bre/mailfile/internal/index"
)

// Update implements tea.Model. Key presses are routed to the jump-input
// handler when jumping is active, otherwise to the navigation handler,
// which also handles the global keys (q/ctrl-c, r, /).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.preview.Width = msg.Width/2 - 4
		m.preview.Height = msg.Height - 6
		return m, nil

	case refreshedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.nodes = msg.nodes
		if m.cursor >= len(m.nodes) {
			m.cursor = max(0, len(m.nodes)-1)
		}
		m.statusMsg = ""
		return m, nil

	case previewLoadedMsg:
		if msg.err != nil {
			m.preview.SetContent("error: " + msg.err.Error())
			return m, nil
		}
		m.previewPath = msg.path
		m.previewSize = msg.size
		m.previewMeta = msg.metadata
		m.preview.SetContent(msg.content)
		m.preview.GotoTop()
		return m, nil

	case tea.KeyMsg:
		if m.jumping {
			return m.handleJumpKey(msg)
		}
		return m.handleNavKey(msg)
	}

	return m, nil
}

func (m Model) handleJumpKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.jumping = false
		m.jump.Reset()
		return m, nil
	case "enter":
		target := index.NormalizePath(m.jump.Value())
		m.jumping = false
		m.jump.Reset()
		m.cwd = target
		m.cursor = 0
		return m, m.refreshCmd()
	}
	var cmd tea.Cmd
	m.jump, cmd = m.jump.Update(msg)
	return m, cmd
}

func (m Model) handleNavKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "r":
		m.statusMsg = "synchronizing…"
		return m, m.refreshCmd()

	case "/":
		m.jumping = true
		m.jump.SetValue(m.cwd)
		m.jump.Focus()
		return m, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, m.maybePreviewCmd()

	case "down", "j":
		if m.cursor < len(m.nodes)-1 {
			m.cursor++
		}
		return m, m.maybePreviewCmd()

	case "pgup", "ctrl+b":
		m.preview.HalfViewUp()
		return m, nil

	case "pgdown", "ctrl+f":
		m.preview.HalfViewDown()
		return m, nil

	case "left", "h", "backspace":
		if m.cwd == "" {
			return m, nil
		}
		m.cwd = parentOf(m.cwd)
		m.cursor = 0
		m.previewPath = ""
		m.preview.SetContent("")
		return m, m.refreshCmd()

	case "right", "l", "enter":
		n, ok := m.currentNode()
		if !ok {
			return m, nil
		}
		if n.kind == kindDir {
			m.cwd = n.path
			m.cursor = 0
			m.previewPath = ""
			m.preview.SetContent("")
			return m, m.refreshCmd()
		}
		return m, m.loadPreviewCmd(n.path)
	}

	return m, nil
}

// maybePreviewCmd loads the newly-selected file's preview, or clears
// the pane when the cursor sits on a directory.
func (m Model) maybePreviewCmd() tea.Cmd {
	n, ok := m.currentNode()
	if !ok || n.kind == kindDir {
		return nil
	}
	return m.loadPreviewCmd(n.path)
}

// parentOf strips the last path segment, the way "cd .." would.
func parentOf(cwd string) string {
	idx := strings.LastIndex(cwd, "/")
	if idx < 0 {
		return ""
	}
	return cwd[:idx]
}
