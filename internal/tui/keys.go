package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/codefionn/runpad/internal/terminal"
)

type keyMap struct {
	Quit       key.Binding
	EOF        key.Binding
	NewTab     key.Binding
	CloseTab   key.Binding
	NextTab    key.Binding
	RunFile    key.Binding
	Stop       key.Binding
	Clear      key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:       key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c ×2", "quit")),
		EOF:        key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "quit when idle")),
		NewTab:     key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "new tab")),
		CloseTab:   key.NewBinding(key.WithKeys("ctrl+w"), key.WithHelp("ctrl+w", "close tab")),
		NextTab:    key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "next tab")),
		RunFile:    key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "run file")),
		Stop:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop")),
		Clear:      key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear")),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdown", "scroll down")),
	}
}

// shortHelp is the footer hint.
func (k keyMap) shortHelp() []key.Binding {
	return []key.Binding{k.RunFile, k.Stop, k.NewTab, k.CloseTab, k.NextTab, k.Clear}
}

// tabDigit returns the zero-based tab index for alt+1 … alt+9.
func tabDigit(msg tea.KeyMsg) (int, bool) {
	if !msg.Alt || msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return 0, false
	}
	r := msg.Runes[0]
	if r < '1' || r > '9' {
		return 0, false
	}
	return int(r - '1'), true
}

// terminalKeys translates a key press into line-discipline keys. Pasted
// newlines submit the line typed so far.
func terminalKeys(msg tea.KeyMsg) []terminal.Key {
	switch msg.Type {
	case tea.KeyRunes:
		if msg.Alt {
			return nil
		}
		keys := make([]terminal.Key, 0, len(msg.Runes))
		for _, r := range msg.Runes {
			switch r {
			case '\r':
			case '\n':
				keys = append(keys, terminal.Key{Kind: terminal.KeyEnter})
			default:
				keys = append(keys, terminal.Key{Kind: terminal.KeyRune, Rune: r})
			}
		}
		return keys
	case tea.KeySpace:
		return []terminal.Key{{Kind: terminal.KeyRune, Rune: ' '}}
	case tea.KeyBackspace:
		return []terminal.Key{{Kind: terminal.KeyBackspace}}
	case tea.KeyEnter:
		return []terminal.Key{{Kind: terminal.KeyEnter}}
	}
	return nil
}
