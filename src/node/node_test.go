package node

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mosaicnetworks/runstate/src/net"
	"github.com/mosaicnetworks/runstate/src/peers"
	"github.com/mosaicnetworks/runstate/src/runstate"
	"github.com/mosaicnetworks/runstate/src/storage"
	"github.com/sirupsen/logrus/hooks/test"
)

func instantTimer(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

type testNode struct {
	*Node
	trans *net.InmemTransport
	store *storage.InmemStore
}

func newTestNode(t *testing.T, network *net.InmemNetwork, name string, conf *Config, bootstrap ...*testNode) *testNode {
	id := peers.PeerID(fmt.Sprintf("0X%s", name))
	_, trans := net.NewInmemTransport(id, "", network)
	store := storage.NewInmemStore()

	var bs []*peers.Peer
	for _, b := range bootstrap {
		bs = append(bs, peers.NewPeer(b.ID().String(), b.trans.LocalAddr(), ""))
	}

	conf.Moniker = name
	node := NewNode(conf, id, bs, store, trans)
	return &testNode{Node: node, trans: trans, store: store}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func waitState(t *testing.T, n *testNode, state string) {
	t.Helper()
	waitFor(t, fmt.Sprintf("%s to be %s", n.ID(), state), func() bool {
		return n.GetStats()["state"] == state
	})
}

// startPair runs a listening node a, then a node b that bootstraps from it.
func startPair(t *testing.T, confA, confB *Config) (*testNode, *testNode) {
	network := net.NewInmemNetwork()

	a := newTestNode(t, network, "A", confA)
	a.RunAsync(context.Background())
	waitState(t, a, "Started")

	b := newTestNode(t, network, "B", confB, a)
	b.RunAsync(context.Background())

	return a, b
}

func TestNodeGoesOnline(t *testing.T) {
	a, b := startPair(t, TestConfig(t), TestConfig(t))
	defer a.Shutdown()
	defer b.Shutdown()

	waitState(t, a, "Online")
	waitState(t, b, "Online")

	if p := a.GetPeers(); len(p) != 1 || p[0] != b.ID() {
		t.Fatalf("A should be connected to B, got %v", p)
	}
	if p := b.GetPeers(); len(p) != 1 || p[0] != a.ID() {
		t.Fatalf("B should be connected to A, got %v", p)
	}
}

func TestNodeStartupSync(t *testing.T) {
	confB := TestConfig(t)
	confB.RunState.Sync.OnStartup = true

	network := net.NewInmemNetwork()

	a := newTestNode(t, network, "A", TestConfig(t))
	a.store.PutRef(storage.Ref{URN: "rad:one", Head: "1"})
	a.store.PutRef(storage.Ref{URN: "rad:two", Head: "2"})
	a.RunAsync(context.Background())
	defer a.Shutdown()
	waitState(t, a, "Started")

	b := newTestNode(t, network, "B", confB, a)
	b.timerFactory = instantTimer
	b.RunAsync(context.Background())
	defer b.Shutdown()

	waitFor(t, "B to pull A's refs", func() bool {
		refs, _ := b.store.Refs()
		return len(refs) == 2
	})
	waitState(t, b, "Online")

	waitFor(t, "sync stats", func() bool {
		return b.GetStats()["sync_requests"] == "1"
	})
	if rate := b.GetStats()["sync_rate"]; rate != "1.00" {
		t.Fatalf("sync_rate should be 1.00, not %s", rate)
	}
}

func TestNodeSyncTimeout(t *testing.T) {
	confB := TestConfig(t)
	confB.RunState.Sync.OnStartup = true

	network := net.NewInmemNetwork()

	a := newTestNode(t, network, "A", TestConfig(t))
	a.RunAsync(context.Background())
	defer a.Shutdown()
	waitState(t, a, "Started")

	timerCh := make(chan time.Time)
	b := newTestNode(t, network, "B", confB, a)
	b.timerFactory = func(time.Duration) <-chan time.Time { return timerCh }
	b.RunAsync(context.Background())
	defer b.Shutdown()

	waitState(t, b, "Syncing")
	if syncs := b.GetStats()["syncs"]; syncs != "1" {
		t.Fatalf("B should have started 1 sync, not %s", syncs)
	}

	timerCh <- time.Now()

	waitState(t, b, "Online")
}

func TestNodeAnnounce(t *testing.T) {
	a, b := startPair(t, TestConfig(t), TestConfig(t))
	defer a.Shutdown()
	defer b.Shutdown()

	waitState(t, a, "Online")
	waitState(t, b, "Online")

	a.store.PutRef(storage.Ref{URN: "rad:one", Head: "1"})

	waitFor(t, "B to receive the announcement", func() bool {
		ref, err := b.store.GetRef("rad:one")
		return err == nil && ref.Head == "1"
	})
	waitFor(t, "announce stats", func() bool {
		return a.GetStats()["announced_refs"] == "1"
	})
}

func TestNodeDisconnectGoesOffline(t *testing.T) {
	a, b := startPair(t, TestConfig(t), TestConfig(t))
	defer a.Shutdown()

	waitState(t, a, "Online")
	waitState(t, b, "Online")

	b.Shutdown()

	waitState(t, a, "Offline")
	if p := a.GetPeers(); len(p) != 0 {
		t.Fatalf("A should have no peers left, got %v", p)
	}
}

func TestNodeRunCancel(t *testing.T) {
	network := net.NewInmemNetwork()
	a := newTestNode(t, network, "A", TestConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	waitState(t, a, "Started")
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run should return after cancel")
	}

	if err := a.trans.Connect("nowhere"); !errors.Is(err, net.ErrTransportShutdown) {
		t.Fatalf("transport should be closed, got %v", err)
	}

	// second shutdown is a no-op
	a.Shutdown()
}

func TestNodeBootstrapSkipsSelf(t *testing.T) {
	network := net.NewInmemNetwork()

	a := newTestNode(t, network, "A", TestConfig(t))
	a.RunAsync(context.Background())
	defer a.Shutdown()
	waitState(t, a, "Started")

	confB := TestConfig(t)
	hook := test.NewLocal(confB.Logger)

	b := newTestNode(t, network, "B", confB, a)
	self := peers.NewPeer(b.ID().String(), b.trans.LocalAddr(), "B")
	b.bootstrap = append([]*peers.Peer{self}, b.bootstrap...)
	b.RunAsync(context.Background())

	waitState(t, b, "Online")
	b.Shutdown()

	for _, e := range hook.AllEntries() {
		if e.Message == "Failed to dial bootstrap peer" {
			t.Fatalf("B should not dial itself: %v", e.Data)
		}
	}
	if p := b.GetPeers(); len(p) != 1 || p[0] != a.ID() {
		t.Fatalf("B should only be connected to A, got %v", p)
	}
}

func TestNodeRunRacingShutdown(t *testing.T) {
	for i := 0; i < 50; i++ {
		network := net.NewInmemNetwork()
		a := newTestNode(t, network, "A", TestConfig(t))

		done := make(chan struct{})
		go func() {
			a.Run(context.Background())
			close(done)
		}()
		a.Shutdown()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("round %d: Run should return after Shutdown", i)
		}

		if n := a.running(); n != 0 {
			t.Fatalf("round %d: %d routines still running", i, n)
		}
		if err := a.trans.Connect("nowhere"); !errors.Is(err, net.ErrTransportShutdown) {
			t.Fatalf("round %d: transport should be closed, got %v", i, err)
		}
	}
}

func TestNodeShutdownBeforeRun(t *testing.T) {
	network := net.NewInmemNetwork()
	a := newTestNode(t, network, "A", TestConfig(t))

	a.Shutdown()
	a.Shutdown()

	done := make(chan struct{})
	go func() {
		a.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately after Shutdown")
	}

	if _, ok := a.GetStatus().(runstate.Stopped); !ok {
		t.Fatalf("status should still be Stopped, not %v", a.GetStatus())
	}
}

func TestProcessRPC(t *testing.T) {
	network := net.NewInmemNetwork()
	a := newTestNode(t, network, "A", TestConfig(t))
	defer a.Shutdown()

	a.store.PutRef(storage.Ref{URN: "rad:one", Head: "1"})

	respCh := make(chan net.RPCResponse, 1)

	a.processRPC(net.RPC{Command: &net.SyncRequest{FromID: "0XB"}, RespChan: respCh})
	resp := <-respCh
	if resp.Error != nil {
		t.Fatalf("err: %v", resp.Error)
	}
	if refs := resp.Response.(*net.SyncResponse).Refs; len(refs) != 1 {
		t.Fatalf("SyncResponse should carry 1 ref, got %v", refs)
	}

	a.processRPC(net.RPC{
		Command: &net.AnnounceRequest{
			FromID: "0XB",
			Refs: []storage.Ref{
				{URN: "rad:one", Head: "1"},
				{URN: "rad:two", Head: "1"},
			},
		},
		RespChan: respCh,
	})
	resp = <-respCh
	if accepted := resp.Response.(*net.AnnounceResponse).Accepted; accepted != 1 {
		t.Fatalf("1 ref should be accepted, not %d", accepted)
	}

	a.processRPC(net.RPC{Command: "bogus", RespChan: respCh})
	if resp := <-respCh; resp.Error == nil {
		t.Fatal("unexpected command should return an error")
	}
}

func TestGoFuncLimit(t *testing.T) {
	var r routines
	block := make(chan struct{})

	for i := 0; i < WGLIMIT; i++ {
		if !r.goFunc(func() { <-block }) {
			t.Fatalf("routine %d should start", i)
		}
	}
	if r.goFunc(func() {}) {
		t.Fatal("routine over WGLIMIT should not start")
	}

	close(block)
	r.waitRoutines()

	if r.running() != 0 {
		t.Fatalf("no routine should be running, got %d", r.running())
	}
}
