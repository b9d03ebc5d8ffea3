// Package toolbar is the terminal toolbar for a block document: toolbox and
// kernel selectors bound to a framework.Manager plus a live view of the
// filtered toolbox.
package toolbar

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/blockkernel/framework"
)

type pane int

const (
	paneToolbox pane = iota
	paneKernel
	paneDescription
)

// Run launches the toolbar until the user quits or ctx ends.
func Run(ctx context.Context, mgr *framework.Manager) error {
	m := newModel(ctx, mgr)
	defer m.cancel()
	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// Model is the Bubble Tea model for the toolbar.
type Model struct {
	ctx    context.Context
	mgr    manager
	events <-chan framework.ChangeEvent
	cancel func()

	focus        pane
	toolboxes    []framework.Option
	kernels      []framework.Option
	toolboxIndex int
	kernelIndex  int
	state        framework.ManagerState

	tree    viewport.Model
	input   textinput.Model
	editing bool

	width   int
	height  int
	message string
	err     error
}

func newModel(ctx context.Context, mgr manager) Model {
	events, cancel := subscribe(mgr)
	input := textinput.New()
	input.Placeholder = "Describe this document"
	input.CharLimit = 500
	input.Prompt = "› "
	input.Blur()

	m := Model{
		ctx:    ctx,
		mgr:    mgr,
		events: events,
		cancel: cancel,
		tree:   viewport.New(40, 12),
		input:  input,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return listenChanges(m.events)
}

// refresh re-reads options and state from the manager.
func (m *Model) refresh() {
	m.state = m.mgr.State()
	m.toolboxes = m.mgr.ListToolboxes()
	m.kernels = append([]framework.Option{{Label: framework.NoKernel, Value: ""}}, m.mgr.ListKernels()...)
	m.toolboxIndex = clampIndex(indexOf(m.toolboxes, m.state.Toolbox), len(m.toolboxes))
	m.kernelIndex = clampIndex(indexOf(m.kernels, m.state.Kernel.Name), len(m.kernels))
	if !m.editing {
		m.input.SetValue(m.state.Description)
	}
	m.tree.SetContent(RenderToolbox(m.mgr.ToolboxDefinition()))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.tree.Width = max(20, msg.Width-4)
		m.tree.Height = max(5, msg.Height-12)
		return m, nil
	case changeMsg:
		m.refresh()
		m.message = fmt.Sprintf("%s changed", msg.event.Reason)
		return m, listenChanges(m.events)
	case actionResultMsg:
		m.err = msg.err
		if msg.err == nil {
			m.message = msg.action + " requested"
		}
		return m, nil
	case tea.KeyMsg:
		cmd := m.handleKey(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.tree, cmd = m.tree.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.editing {
		switch msg.Type {
		case tea.KeyEnter:
			m.editing = false
			m.input.Blur()
			m.mgr.SetDescription(strings.TrimSpace(m.input.Value()))
			return nil
		case tea.KeyEsc:
			m.editing = false
			m.input.Blur()
			m.input.SetValue(m.state.Description)
			return nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	}
	switch msg.String() {
	case "ctrl+c", "q":
		m.cancel()
		return tea.Quit
	case "tab":
		m.focus = (m.focus + 1) % 3
	case "shift+tab":
		m.focus = (m.focus + 2) % 3
	case "up", "k":
		m.move(-1)
	case "down", "j":
		m.move(1)
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.tree, cmd = m.tree.Update(msg)
		return cmd
	case "r":
		m.refresh()
		m.message = "refreshed"
	case "enter":
		return m.apply()
	case "e":
		if m.focus == paneDescription {
			m.editing = true
			m.input.Focus()
			return textinput.Blink
		}
	}
	return nil
}

func (m *Model) move(delta int) {
	switch m.focus {
	case paneToolbox:
		m.toolboxIndex = clampIndex(m.toolboxIndex+delta, len(m.toolboxes))
	case paneKernel:
		m.kernelIndex = clampIndex(m.kernelIndex+delta, len(m.kernels))
	}
}

func (m *Model) apply() tea.Cmd {
	m.err = nil
	switch m.focus {
	case paneToolbox:
		if len(m.toolboxes) == 0 {
			return nil
		}
		return setToolboxCmd(m.mgr, m.toolboxes[m.toolboxIndex].Value)
	case paneKernel:
		if len(m.kernels) == 0 {
			return nil
		}
		return selectKernelCmd(m.ctx, m.mgr, m.kernels[m.kernelIndex].Value)
	case paneDescription:
		m.editing = true
		m.input.Focus()
		return textinput.Blink
	}
	return nil
}

func (m Model) View() string {
	selectors := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderSelector("Toolbox", m.toolboxes, m.toolboxIndex, m.state.Toolbox, m.focus == paneToolbox),
		m.renderSelector("Kernel", m.kernels, m.kernelIndex, m.state.Kernel.Name, m.focus == paneKernel),
	)
	descStyle := paneStyle
	if m.focus == paneDescription {
		descStyle = focusedPaneStyle
	}
	desc := descStyle.Render(sectionHeaderStyle.Render("Description") + "\n" + m.input.View())

	var status string
	switch {
	case m.err != nil:
		status = errorStyle.Render(m.err.Error())
	case m.message != "":
		status = m.message
	default:
		status = "tab: switch pane · ↑/↓: move · enter: apply · e: edit · r: refresh · q: quit"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		selectors,
		desc,
		m.tree.View(),
		statusStyle.Render(status),
	)
}

func (m Model) renderSelector(title string, opts []framework.Option, cursor int, active string, focused bool) string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render(title))
	for i, opt := range opts {
		b.WriteString("\n")
		prefix := "  "
		if i == cursor && focused {
			prefix = "› "
		}
		label := opt.Label
		switch {
		case opt.Value == active:
			label = activeStyle.Render(label + " ●")
		case i == cursor && focused:
			label = selectedStyle.Render(label)
		}
		b.WriteString(prefix + label)
	}
	if len(opts) == 0 {
		b.WriteString("\n" + dimStyle.Render("(none)"))
	}
	style := paneStyle
	if focused {
		style = focusedPaneStyle
	}
	return style.Render(b.String())
}

func indexOf(opts []framework.Option, value string) int {
	for i, opt := range opts {
		if opt.Value == value {
			return i
		}
	}
	return 0
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
