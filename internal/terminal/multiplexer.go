// Package terminal multiplexes independent terminal tabs, each with a bounded
// scroll buffer and line-buffered input, and routes keystrokes to the active
// one.
package terminal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/codefionn/runpad/internal/logger"
	"github.com/codefionn/runpad/internal/metrics"
)

// DefaultCapacity is the scroll buffer size used when Options leaves it zero.
const DefaultCapacity = 1000

// Options configures a Multiplexer.
type Options struct {
	// Capacity is the per-tab scroll buffer size in lines.
	Capacity int
	// Prompt is the idle prompt text.
	Prompt string
	// OnChange is called, without locks held, after any tab's contents or
	// the tab set changes.
	OnChange func(TabID)
}

// Multiplexer owns the tab set and the active tab.
type Multiplexer struct {
	opts Options
	log  *logger.Logger

	mu     sync.Mutex
	tabs   []*Tab // creation order
	active *Tab
	nextID TabID
}

// NewMultiplexer creates an empty multiplexer.
func NewMultiplexer(opts Options) *Multiplexer {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	return &Multiplexer{
		opts: opts,
		log:  logger.Global().WithPrefix("terminal"),
	}
}

func (m *Multiplexer) changed(id TabID) {
	if m.opts.OnChange != nil {
		m.opts.OnChange(id)
	}
}

// CreateTab allocates a tab showing the idle prompt. It becomes active when
// no other tab is. An empty name yields "Terminal N".
func (m *Multiplexer) CreateTab(name string) TabID {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	if name == "" {
		name = fmt.Sprintf("Terminal %d", id)
	}
	tab := newTab(id, name, m.opts.Capacity, m.opts.Prompt, m.changed)
	tab.showPromptLocked() // not yet shared
	m.tabs = append(m.tabs, tab)
	if m.active == nil {
		m.active = tab
	}
	count := len(m.tabs)
	m.mu.Unlock()

	metrics.SetOpenTabs(count)
	m.log.Debug("Created tab %d (%s)", id, name)
	m.changed(id)
	return id
}

// SetActive switches keystroke routing and rendering to id. Other tabs'
// processes keep running.
func (m *Multiplexer) SetActive(id TabID) bool {
	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	m.active = m.tabs[idx]
	m.mu.Unlock()

	m.changed(id)
	return true
}

// CloseTab removes id. An attached process is closed before the tab's buffer
// is disposed, and the tab accepts no output once CloseTab returns. When the
// closed tab was active, the tab created just before it becomes active, else
// the first remaining tab, else none.
func (m *Multiplexer) CloseTab(id TabID) bool {
	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	tab := m.tabs[idx]
	m.tabs = append(m.tabs[:idx], m.tabs[idx+1:]...)

	if m.active == tab {
		switch {
		case idx > 0:
			m.active = m.tabs[idx-1]
		case len(m.tabs) > 0:
			m.active = m.tabs[0]
		default:
			m.active = nil
		}
	}
	count := len(m.tabs)
	m.mu.Unlock()

	tab.shutdown()

	metrics.SetOpenTabs(count)
	m.log.Debug("Closed tab %d", id)
	m.changed(id)
	return true
}

// Clear empties id's scroll buffer and redraws the prompt.
func (m *Multiplexer) Clear(id TabID) bool {
	tab := m.Tab(id)
	if tab == nil {
		return false
	}
	tab.Clear()
	return true
}

// HandleKey routes k to the active tab.
func (m *Multiplexer) HandleKey(k Key) error {
	tab := m.Active()
	if tab == nil {
		return nil
	}
	return tab.HandleKey(k)
}

// Active returns the active tab, or nil when there are no tabs.
func (m *Multiplexer) Active() *Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Tab returns the tab with id, or nil.
func (m *Multiplexer) Tab(id TabID) *Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx := m.indexLocked(id); idx >= 0 {
		return m.tabs[idx]
	}
	return nil
}

// Tabs returns all tabs in creation order.
func (m *Multiplexer) Tabs() []*Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Tab(nil), m.tabs...)
}

// Len returns the number of open tabs.
func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tabs)
}

func (m *Multiplexer) indexLocked(id TabID) int {
	for i, t := range m.tabs {
		if t.id == id {
			return i
		}
	}
	return -1
}

// RenderTabBar renders one label per tab, marking the active tab and tabs
// with an attached process.
func (m *Multiplexer) RenderTabBar(styles Styles) string {
	tabs := m.Tabs()
	active := m.Active()

	labels := make([]string, 0, len(tabs)+1)
	for _, t := range tabs {
		text := t.Name()
		if t.Process() != nil {
			text += " ●"
		}
		if t == active {
			labels = append(labels, fmt.Sprintf(" %s ", styles.ActiveTab.Render(text)))
		} else {
			labels = append(labels, fmt.Sprintf(" %s ", styles.InactiveTab.Render(text)))
		}
	}
	labels = append(labels, styles.NewTab.Render(" [+] "))

	return lipgloss.JoinHorizontal(lipgloss.Left, labels...)
}

// String is a compact debug description.
func (m *Multiplexer) String() string {
	tabs := m.Tabs()
	names := make([]string, len(tabs))
	for i, t := range tabs {
		names[i] = fmt.Sprintf("%d:%s", t.id, t.name)
	}
	return "terminal[" + strings.Join(names, " ") + "]"
}
