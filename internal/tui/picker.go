package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/codefionn/runpad/internal/language"
	"github.com/codefionn/runpad/internal/workspace"
)

type fileItem struct {
	path  string
	lang  string
	local bool
}

func (i fileItem) Title() string { return i.path }

func (i fileItem) Description() string {
	if i.local {
		return i.lang + " · local"
	}
	return i.lang
}

func (i fileItem) FilterValue() string { return i.path }

// filePicker chooses the file to run. Dismissing it is a cancelled action and
// produces no output.
type filePicker struct {
	list list.Model
}

// pickedMsg carries the chosen path; an empty path means the picker was dismissed.
type pickedMsg struct {
	path string
}

func fileItems(root *workspace.FileNode) []list.Item {
	var items []list.Item
	var walk func(n *workspace.FileNode)
	walk = func(n *workspace.FileNode) {
		for _, child := range n.Children {
			if child.IsFolder() {
				walk(child)
				continue
			}
			items = append(items, fileItem{
				path:  child.Path,
				lang:  language.Detect(child.Path),
				local: child.Local,
			})
		}
	}
	if root != nil {
		walk(root)
	}
	return items
}

func newFilePicker(root *workspace.FileNode, width, height int) *filePicker {
	l := list.New(fileItems(root), list.NewDefaultDelegate(), pickerWidth(width), pickerHeight(height))
	l.Title = "Run file"
	l.Styles.Title = titleStyle
	l.SetShowStatusBar(false)
	l.DisableQuitKeybindings()
	l.KeyMap.Filter = key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	)
	return &filePicker{list: l}
}

func pickerWidth(width int) int {
	if width <= 0 {
		return 60
	}
	return width * 2 / 3
}

func pickerHeight(height int) int {
	if height <= 0 {
		return 20
	}
	return height * 2 / 3
}

func (p *filePicker) setSize(width, height int) {
	p.list.SetSize(pickerWidth(width), pickerHeight(height))
}

func (p *filePicker) Update(msg tea.Msg) (*filePicker, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && p.list.FilterState() != list.Filtering {
		switch keyMsg.String() {
		case "esc", "ctrl+c":
			return p, func() tea.Msg { return pickedMsg{} }
		case "enter":
			item, ok := p.list.SelectedItem().(fileItem)
			if !ok {
				return p, func() tea.Msg { return pickedMsg{} }
			}
			return p, func() tea.Msg { return pickedMsg{path: item.path} }
		}
	}
	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)
	return p, cmd
}

func (p *filePicker) View() string {
	return pickerStyle.Render(p.list.View())
}
