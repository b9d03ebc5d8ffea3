package toolbar

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexcodex/blockkernel/framework"
)

// manager is the slice of *framework.Manager the toolbar drives.
type manager interface {
	State() framework.ManagerState
	ToolboxDefinition() *framework.Toolbox
	ListToolboxes() []framework.Option
	ListKernels() []framework.Option
	SetToolbox(name string) error
	SelectKernel(ctx context.Context, name string) error
	SetDescription(text string)
	Subscribe(fn func(framework.ChangeEvent)) func()
}

type changeMsg struct{ event framework.ChangeEvent }

type actionResultMsg struct {
	action string
	err    error
}

// subscribe bridges manager callbacks onto a channel. Sends never block the
// manager; a dropped event is harmless because the model re-reads state.
// The returned cancel unsubscribes and closes the channel, releasing any
// pending listenChanges command. It is safe to call more than once.
func subscribe(m manager) (<-chan framework.ChangeEvent, func()) {
	ch := make(chan framework.ChangeEvent, 32)
	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)
	unsubscribe := m.Subscribe(func(ev framework.ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	})
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}

func listenChanges(ch <-chan framework.ChangeEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return changeMsg{event: ev}
	}
}

func setToolboxCmd(m manager, name string) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: "toolbox " + name, err: m.SetToolbox(name)}
	}
}

func selectKernelCmd(ctx context.Context, m manager, name string) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: "kernel " + name, err: m.SelectKernel(ctx, name)}
	}
}
