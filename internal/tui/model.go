// Package tui provides a read-only terminal file-tree browser over a
// vault.Scope: a directory-listing pane, a preview pane for small text
// files, and version/metadata display. It synchronizes once on entry
// and offers a manual refresh keybinding; it never writes to the vault.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bre/mailfile/internal/vault"
)

// previewLimit caps how many bytes of a file's content are read into
// the preview pane; larger files show a size-only placeholder instead.
const previewLimit = 64 * 1024

// nodeKind distinguishes a directory entry from a leaf file.
type nodeKind int

const (
	kindDir nodeKind = iota
	kindFile
)

// node is one row of the current directory listing.
type node struct {
	name string
	path string
	kind nodeKind
}

// Options configures a new Model.
type Options struct {
	Version string
}

// Model is the bubbletea model for the file-tree browser.
type Model struct {
	scope   *vault.Scope
	version string

	cwd      string
	nodes    []node
	cursor   int
	scrollTop int

	preview     viewport.Model
	previewPath string
	previewSize int
	previewMeta map[string]any
	jump        textinput.Model
	jumping     bool

	width, height int
	statusMsg     string
	err           error
	quitting      bool
}

// New builds a Model driving sc. sc must already have had Session.Enter
// called on it; the caller is responsible for Exit once the program
// returns.
func New(sc *vault.Scope, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "path prefix"
	ti.CharLimit = 256

	return Model{
		scope:   sc,
		version: opts.Version,
		preview: viewport.New(0, 0),
		jump:    ti,
	}
}

// Init synchronizes once against the backing store and loads the root
// directory listing.
func (m Model) Init() tea.Cmd {
	return m.refreshCmd()
}

type refreshedMsg struct {
	nodes []node
	err   error
}

// refreshCmd re-synchronizes and reloads the current directory's
// children. This is the only place Scope.List is called; the index is
// also re-synchronized whenever a preview opens a file (Scope.Open
// synchronizes first).
func (m Model) refreshCmd() tea.Cmd {
	cwd := m.cwd
	scope := m.scope
	return func() tea.Msg {
		paths, err := scope.List(cwd)
		if err != nil {
			return refreshedMsg{err: err}
		}
		return refreshedMsg{nodes: childrenOf(paths, cwd)}
	}
}

// childrenOf groups every live path under cwd into its immediate
// directory/file children, the way a filesystem tree view would, given
// that the Index stores flat opaque paths with no real directories.
func childrenOf(paths []string, cwd string) []node {
	base := cwd
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}

	seenDirs := make(map[string]bool)
	var nodes []node
	for _, p := range paths {
		if !strings.HasPrefix(p, base) {
			continue
		}
		rest := p[len(base):]
		if rest == "" {
			continue
		}
		parts := strings.SplitN(rest, "/", 2)
		name := parts[0]
		if len(parts) == 2 {
			if seenDirs[name] {
				continue
			}
			seenDirs[name] = true
			nodes = append(nodes, node{name: name, path: base + name, kind: kindDir})
		} else {
			nodes = append(nodes, node{name: name, path: p, kind: kindFile})
		}
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].kind != nodes[j].kind {
			return nodes[i].kind == kindDir
		}
		return nodes[i].name < nodes[j].name
	})
	return nodes
}

type previewLoadedMsg struct {
	path     string
	content  string
	size     int
	metadata map[string]any
	err      error
}

// loadPreviewCmd opens path read-only and decodes up to previewLimit
// bytes for display, never touching the write buffer.
func (m Model) loadPreviewCmd(path string) tea.Cmd {
	scope := m.scope
	return func() tea.Msg {
		h, err := scope.Open(path, "r")
		if err != nil {
			return previewLoadedMsg{path: path, err: err}
		}
		defer h.Close()

		data := h.GetValue()
		size := len(data)
		truncated := false
		if len(data) > previewLimit {
			data = data[:previewLimit]
			truncated = true
		}

		return previewLoadedMsg{
			path:     path,
			content:  renderPreview(data, size, truncated),
			size:     size,
			metadata: h.Metadata(),
		}
	}
}

// renderPreview decides between a text dump and a binary/size
// placeholder based on a cheap printable-byte heuristic.
func renderPreview(data []byte, fullSize int, truncated bool) string {
	if !looksLikeText(data) {
		return fmt.Sprintf("(binary content, %d bytes)", fullSize)
	}
	text := string(data)
	if truncated {
		text += "\n\n… truncated …"
	}
	return text
}

func looksLikeText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	nonPrintable := 0
	for _, b := range data {
		if b == 0 {
			return false
		}
		if b < 0x09 || (b > 0x0d && b < 0x20) {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(data)) < 0.05
}

// formatBytes renders a byte count the way the teacher's own TUI does,
// e.g. "1.5 KB".
func formatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for d := int64(n) / unit; d >= unit; d /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// sortedMetadataKeys returns meta's keys sorted for stable rendering.
func sortedMetadataKeys(meta map[string]any) []string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// currentNode returns the node under the cursor, if any.
func (m Model) currentNode() (node, bool) {
	if m.cursor < 0 || m.cursor >= len(m.nodes) {
		return node{}, false
	}
	return m.nodes[m.cursor], true
}
