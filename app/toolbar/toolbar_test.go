package toolbar

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/blockkernel/framework"
	"github.com/lexcodex/blockkernel/session"
)

const toolboxJSON = `{
  "kind": "categoryToolbox",
  "contents": [
    {"kind": "category", "name": "Logic", "contents": [
      {"kind": "block", "type": "controls_if"},
      {"kind": "block", "type": "logic_compare"}
    ]},
    {"kind": "sep"},
    {"kind": "category", "name": "Text", "contents": [
      {"kind": "block", "type": "text_print"}
    ]},
    {"kind": "sep"},
    {"kind": "category", "name": "Variables", "custom": "VARIABLE"}
  ]
}`

func newTestManager(t *testing.T, opts ...framework.ManagerOption) (*framework.Manager, *session.LocalSession) {
	t.Helper()
	reg := framework.NewRegistry()
	tb, err := framework.ParseToolbox([]byte(toolboxJSON))
	require.NoError(t, err)
	reg.Register(framework.DefaultToolbox, tb)
	minimal, err := framework.ParseToolbox([]byte(`[{"kind":"block","type":"text_print"}]`))
	require.NoError(t, err)
	reg.Register("minimal", minimal)
	reg.RegisterGenerator("python", framework.GeneratorFunc{Lang: "python",
		Fn: func(json.RawMessage) (string, error) { return "", nil }})

	local := session.NewLocalSession(map[string]framework.KernelSpec{
		"python3": {DisplayName: "Python 3", Language: "python"},
	}, nil)
	mgr := framework.NewManager(reg, local, opts...)
	t.Cleanup(func() {
		mgr.Close()
		local.Close()
	})
	return mgr, local
}

func press(t *testing.T, m Model, key string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func TestRenderToolboxShowsFilteredTree(t *testing.T) {
	tb, err := framework.ParseToolbox([]byte(toolboxJSON))
	require.NoError(t, err)
	framework.FilterToolbox(tb, framework.NewAllowList("controls_if", "text_print"))

	out := RenderToolbox(tb)
	require.Contains(t, out, "Logic")
	require.Contains(t, out, "controls_if")
	require.Contains(t, out, "logic_compare ("+framework.BlockNotAllowedReason+")")
	require.Contains(t, out, "text_print")
	require.NotContains(t, out, "Variables")
	require.Contains(t, RenderToolbox(nil), "no toolbox")
}

func TestToolbarSelectsToolbox(t *testing.T) {
	mgr, _ := newTestManager(t)
	m := newModel(context.Background(), mgr)
	defer m.cancel()
	require.Equal(t, framework.DefaultToolbox, m.state.Toolbox)

	m, _ = press(t, m, "down")
	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	result := cmd()
	require.IsType(t, actionResultMsg{}, result)
	require.NoError(t, result.(actionResultMsg).err)
	require.Equal(t, "minimal", mgr.Toolbox())

	updated, _ := m.Update(listenChanges(m.events)())
	m = updated.(Model)
	require.Equal(t, "minimal", m.state.Toolbox)
	require.Contains(t, m.View(), "text_print")
}

func TestToolbarSelectsKernel(t *testing.T) {
	mgr, _ := newTestManager(t)
	m := newModel(context.Background(), mgr)
	defer m.cancel()
	require.Len(t, m.kernels, 2)
	require.Equal(t, framework.NoKernel, m.kernels[0].Label)

	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "down")
	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	require.NoError(t, cmd().(actionResultMsg).err)

	require.Eventually(t, func() bool { return mgr.Kernel().Name == "python3" },
		2*time.Second, 10*time.Millisecond)
	require.NotNil(t, mgr.Generator())
}

func TestToolbarEditsDescription(t *testing.T) {
	mgr, _ := newTestManager(t)
	m := newModel(context.Background(), mgr)
	defer m.cancel()

	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "e")
	require.True(t, m.editing)
	m, _ = press(t, m, "loops")
	m, _ = press(t, m, "enter")
	require.False(t, m.editing)
	require.Equal(t, "loops", mgr.Description())
}

func TestToolbarReportsActionErrors(t *testing.T) {
	mgr, _ := newTestManager(t)
	m := newModel(context.Background(), mgr)
	defer m.cancel()

	updated, _ := m.Update(actionResultMsg{action: "kernel julia", err: framework.ErrUnknownKernel})
	m = updated.(Model)
	require.ErrorIs(t, m.err, framework.ErrUnknownKernel)
	require.Contains(t, m.View(), framework.ErrUnknownKernel.Error())
}

func TestToolbarQuitCancelsSubscription(t *testing.T) {
	mgr, _ := newTestManager(t)
	m := newModel(context.Background(), mgr)

	_, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())

	mgr.SetDescription("after quit")
	ev, ok := <-m.events
	require.False(t, ok, "unexpected event after quit: %+v", ev)
	require.Nil(t, listenChanges(m.events)())
	m.cancel()
}

func TestToolbarCancelReleasesPendingListener(t *testing.T) {
	mgr, _ := newTestManager(t)
	m := newModel(context.Background(), mgr)

	done := make(chan tea.Msg, 1)
	go func() { done <- listenChanges(m.events)() }()
	m.cancel()
	select {
	case msg := <-done:
		require.Nil(t, msg)
	case <-time.After(time.Second):
		t.Fatal("listener still blocked after cancel")
	}
}

func TestToolbarRefreshKeepsDescriptionBeingEdited(t *testing.T) {
	mgr, _ := newTestManager(t)
	m := newModel(context.Background(), mgr)
	defer m.cancel()

	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "e")
	require.True(t, m.editing)
	m, _ = press(t, m, "draft")

	require.NoError(t, mgr.SetToolbox("minimal"))
	ev := <-m.events
	updated, _ := m.Update(changeMsg{event: ev})
	m = updated.(Model)
	require.Equal(t, "minimal", m.state.Toolbox)
	require.True(t, m.editing)
	require.Equal(t, "draft", m.input.Value())

	m, _ = press(t, m, "enter")
	require.Equal(t, "draft", mgr.Description())
}
