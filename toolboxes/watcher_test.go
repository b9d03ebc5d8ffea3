package toolboxes

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lexcodex/blockkernel/framework"
	"github.com/lexcodex/blockkernel/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type reloadLog struct {
	mu      sync.Mutex
	batches [][]string
}

func (l *reloadLog) record(changed []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = append(l.batches, append([]string(nil), changed...))
}

func (l *reloadLog) seen(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, batch := range l.batches {
		for _, n := range batch {
			if n == name {
				return true
			}
		}
	}
	return false
}

func startWatcher(t *testing.T, reg *framework.Registry, dir string, fn ReloadFunc) *Watcher {
	t.Helper()
	w, err := NewWatcher(reg, []string{dir}, WithDebounce(20*time.Millisecond), WithReloadFunc(fn))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		cancel()
		require.NoError(t, w.Stop())
	})
	return w
}

func TestWatcherInitialScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "printing.json", flyoutJSON)
	reg := framework.NewRegistry()

	startWatcher(t, reg, dir, nil)
	require.True(t, reg.HasToolbox("printing"))
}

func TestWatcherPicksUpCreateAndRemove(t *testing.T) {
	dir := t.TempDir()
	reg := framework.NewRegistry()
	log := &reloadLog{}
	startWatcher(t, reg, dir, log.record)

	path := writeFile(t, dir, "beginner.yaml", manifestYAML)
	require.Eventually(t, func() bool { return reg.HasToolbox("beginner") && log.seen("beginner") },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return !reg.HasToolbox("beginner") },
		2*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	reg := framework.NewRegistry()
	log := &reloadLog{}
	startWatcher(t, reg, dir, log.record)

	writeFile(t, dir, "readme.md", "# hi")
	writeFile(t, dir, "printing.json", flyoutJSON)
	require.Eventually(t, func() bool { return log.seen("printing") }, 2*time.Second, 10*time.Millisecond)
	require.False(t, log.seen("readme"))
}

func TestReloadManagerRefreshesActiveToolbox(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "default.json", flyoutJSON)
	reg := framework.NewRegistry()

	local := session.NewLocalSession(nil, nil)
	defer local.Close()
	var mgr *framework.Manager
	w, err := NewWatcher(reg, []string{dir}, WithDebounce(20*time.Millisecond),
		WithReloadFunc(func(changed []string) { ReloadManager(mgr)(changed) }))
	require.NoError(t, err)
	mgr = framework.NewManager(reg, local)
	defer mgr.Close()
	require.Equal(t, []string{"text_print"}, framework.VisibleBlockTypes(mgr.ToolboxDefinition()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	defer func() {
		cancel()
		require.NoError(t, w.Stop())
	}()

	require.NoError(t, os.WriteFile(path,
		[]byte(`[{"kind":"block","type":"math_number"},{"kind":"block","type":"text_print"}]`), 0o644))
	require.Eventually(t, func() bool {
		return len(framework.VisibleBlockTypes(mgr.ToolboxDefinition())) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherRevertsOverriddenBuiltin(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "minimal.json", flyoutJSON)
	reg := framework.NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	log := &reloadLog{}
	startWatcher(t, reg, dir, log.record)

	tb, _ := reg.Toolbox("minimal")
	require.Equal(t, []string{"text_print"}, framework.VisibleBlockTypes(tb))

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		tb, ok := reg.Toolbox("minimal")
		return ok && len(framework.VisibleBlockTypes(tb)) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherRenamedOverrideRestoresBuiltin(t *testing.T) {
	dir := t.TempDir()
	overrideDefault := strings.Replace(manifestYAML, "name: beginner", "name: default", 1)
	path := writeFile(t, dir, "custom.yaml", overrideDefault)
	reg := framework.NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	builtin, ok := builtinToolbox(framework.DefaultToolbox)
	require.True(t, ok)

	local := session.NewLocalSession(nil, nil)
	defer local.Close()
	var mgr *framework.Manager
	w, err := NewWatcher(reg, []string{dir}, WithDebounce(20*time.Millisecond),
		WithReloadFunc(func(changed []string) { ReloadManager(mgr)(changed) }))
	require.NoError(t, err)
	mgr = framework.NewManager(reg, local)
	defer mgr.Close()
	require.NotEqual(t, framework.VisibleBlockTypes(builtin), framework.VisibleBlockTypes(mgr.ToolboxDefinition()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	defer func() {
		cancel()
		require.NoError(t, w.Stop())
	}()

	require.NoError(t, os.WriteFile(path, []byte(manifestYAML), 0o644))
	require.Eventually(t, func() bool {
		_, ok := reg.Toolbox("beginner")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	tb, ok := reg.Toolbox(framework.DefaultToolbox)
	require.True(t, ok)
	require.Equal(t, framework.VisibleBlockTypes(builtin), framework.VisibleBlockTypes(tb))
	require.Eventually(t, func() bool {
		def := mgr.ToolboxDefinition()
		return def != nil && len(framework.VisibleBlockTypes(def)) == len(framework.VisibleBlockTypes(builtin))
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, framework.DefaultToolbox, mgr.Toolbox())
}

func TestWatcherRemovalHandsNameToOtherFile(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "a.yaml", manifestYAML)
	writeFile(t, dir, "b.yml", strings.Replace(manifestYAML, "first steps", "second copy", 1))
	reg := framework.NewRegistry()
	startWatcher(t, reg, dir, (&reloadLog{}).record)
	require.True(t, reg.HasToolbox("beginner"))

	require.NoError(t, os.Remove(first))
	require.Never(t, func() bool { return !reg.HasToolbox("beginner") }, 200*time.Millisecond, 10*time.Millisecond)
}
