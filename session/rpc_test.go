package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lexcodex/blockkernel/framework"
)

func newRPCPair(t *testing.T) (*LocalSession, *RPCSession) {
	t.Helper()
	local := NewLocalSession(testCatalog(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	serverSide, clientSide := net.Pipe()
	srv := NewRPCServer(local, nil)
	conn := srv.ServeConn(ctx, serverSide)

	client, err := NewRPCSession(ctx, clientSide, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		<-conn.DisconnectNotify()
		local.Close()
	})
	return local, client
}

func TestRPCSessionLoadsCatalog(t *testing.T) {
	_, client := newRPCPair(t)
	specs := client.KernelSpecs()
	require.Len(t, specs, 2)
	require.Equal(t, framework.KernelSpec{Name: "deno", DisplayName: "Deno", Language: "javascript"}, specs["deno"])
}

func TestRPCSessionForwardsKernelChanges(t *testing.T) {
	local, client := newRPCPair(t)
	log := &changeLog{}
	client.SubscribeKernelChanged(log.add)

	ctx := context.Background()
	require.NoError(t, client.ChangeKernel(ctx, framework.KernelRequest{Name: "deno", Seq: 7}))
	require.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, framework.KernelChange{Name: "deno", Seq: 7}, log.snapshot()[0])
	require.Equal(t, "deno", local.CurrentKernel())
}

func TestRPCSessionSurfacesServerErrors(t *testing.T) {
	_, client := newRPCPair(t)
	err := client.ChangeKernel(context.Background(), framework.KernelRequest{Name: "julia"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown kernel")
}

func TestRPCSessionRefresh(t *testing.T) {
	local, client := newRPCPair(t)
	local.AddKernelSpec(framework.KernelSpec{Name: "julia", Language: "julia"})
	require.NotContains(t, client.KernelSpecs(), "julia")
	require.NoError(t, client.Refresh(context.Background()))
	require.Contains(t, client.KernelSpecs(), "julia")
}

func TestRPCSessionListenerCanSelectKernel(t *testing.T) {
	_, client := newRPCPair(t)
	mgr := framework.NewManager(framework.NewRegistry(), client)
	defer mgr.Close()

	errs := make(chan error, 1)
	var once sync.Once
	mgr.Subscribe(func(ev framework.ChangeEvent) {
		if ev.Reason != framework.ChangeKernel || ev.State.Kernel.Name != "deno" {
			return
		}
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			errs <- mgr.SelectKernel(ctx, "python3")
		})
	})

	require.NoError(t, mgr.SelectKernel(context.Background(), "deno"))
	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("listener never finished selecting a kernel")
	}
	require.Eventually(t, func() bool { return mgr.Kernel().Name == "python3" }, time.Second, 5*time.Millisecond)
}

func TestRPCSessionDeliversChangesInOrder(t *testing.T) {
	_, client := newRPCPair(t)
	log := &changeLog{}
	client.SubscribeKernelChanged(log.add)

	ctx := context.Background()
	names := []string{"deno", "python3", "deno", ""}
	for i, name := range names {
		require.NoError(t, client.ChangeKernel(ctx, framework.KernelRequest{Name: name, Seq: uint64(i + 1)}))
	}
	require.Eventually(t, func() bool { return len(log.snapshot()) == len(names) }, time.Second, 5*time.Millisecond)
	for i, change := range log.snapshot() {
		require.Equal(t, framework.KernelChange{Name: names[i], Seq: uint64(i + 1)}, change)
	}
}
