package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/runstate/src/announce"
	"github.com/mosaicnetworks/runstate/src/common"
	"github.com/mosaicnetworks/runstate/src/net"
	"github.com/mosaicnetworks/runstate/src/peers"
	"github.com/mosaicnetworks/runstate/src/peersync"
	"github.com/mosaicnetworks/runstate/src/runstate"
	"github.com/mosaicnetworks/runstate/src/storage"
	"github.com/mosaicnetworks/runstate/src/telemetry"
	"github.com/sirupsen/logrus"
)

// ErrBusy is returned to remote peers when the node cannot start another
// routine to serve their request.
var ErrBusy = errors.New("node busy")

// Node hosts a RunState and executes the commands it emits.
type Node struct {
	routines

	conf   *Config
	logger *logrus.Entry

	id        peers.PeerID
	runState  *runstate.RunState
	bootstrap []*peers.Peer

	trans net.Transport
	netCh <-chan net.RPC
	store storage.Store

	announcer *announce.Announcer
	syncer    peersync.Syncer

	timerFactory  timerFactory
	tickerFactory tickerFactory

	ctx          context.Context
	cancel       context.CancelFunc
	feedbackCh   chan runstate.Event
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	loop         sync.WaitGroup
	loopLock     sync.Mutex

	statsLock sync.RWMutex
	stats     stats
}

type stats struct {
	start          time.Time
	status         runstate.Status
	connected      []peers.PeerID
	events         int
	commands       int
	syncRequests   int
	syncErrors     int
	announcements  int
	announceErrors int
	announcedRefs  int
	syncDurations  common.DurationWindow
}

// syncWindow is the number of sync durations kept for the median.
const syncWindow = 32

// NewNode is a factory method that returns a Node instance. The bootstrap
// peers are dialed once the transport is listening.
func NewNode(conf *Config,
	id peers.PeerID,
	bootstrap []*peers.Peer,
	store storage.Store,
	trans net.Transport,
) *Node {
	logger := conf.Logger.WithField("this_id", id.Short())

	ctx, cancel := context.WithCancel(context.Background())

	rs := runstate.New(conf.RunState, logger)

	node := Node{
		conf:          conf,
		logger:        logger,
		id:            id,
		runState:      rs,
		bootstrap:     bootstrap,
		trans:         trans,
		netCh:         trans.Consumer(),
		store:         store,
		announcer:     announce.NewAnnouncer(store, trans, logger),
		syncer:        peersync.NewTransportSyncer(id, trans, store, logger),
		timerFactory:  defaultTimerFactory,
		tickerFactory: defaultTickerFactory,
		ctx:           ctx,
		cancel:        cancel,
		feedbackCh:    make(chan runstate.Event, 64),
		shutdownCh:    make(chan struct{}),
		stats: stats{
			start:         time.Now(),
			status:        rs.Status(),
			syncDurations: common.DurationWindow{Size: syncWindow},
		},
	}

	return &node
}

// ID returns the PeerID of the node.
func (n *Node) ID() peers.PeerID {
	return n.id
}

// RunAsync calls Run in a separate goroutine.
func (n *Node) RunAsync(ctx context.Context) {
	go n.Run(ctx)
}

// Run starts the transport and processes events until ctx is cancelled or the
// node is shut down. Cancelling ctx shuts the node down.
func (n *Node) Run(ctx context.Context) {
	if n.runLoop(ctx) {
		n.Shutdown()
	}
}

func (n *Node) runLoop(ctx context.Context) bool {
	// Shutdown closes shutdownCh under loopLock, so loop.Add never races with
	// loop.Wait.
	n.loopLock.Lock()
	select {
	case <-n.shutdownCh:
		n.loopLock.Unlock()
		return false
	default:
	}
	n.loop.Add(2)
	n.loopLock.Unlock()

	defer n.loop.Done()

	go n.doBackgroundWork()
	go n.trans.Listen()

	tickCh, stopTicker := n.tickerFactory(n.conf.RunState.Announce.Interval)
	defer stopTicker()

	events := n.trans.Events()

	for {
		select {
		case pe := <-events:
			if ev, ok := peerEvent(pe); ok {
				n.step(ev)
			}
		case ev := <-n.feedbackCh:
			n.step(ev)
		case <-tickCh:
			n.step(runstate.AnnounceTick{})
		case <-ctx.Done():
			return true
		case <-n.shutdownCh:
			return false
		}
	}
}

// peerEvent translates a transport presence change into a state machine
// event.
func peerEvent(pe net.PeerEvent) (runstate.Event, bool) {
	switch pe.Type {
	case net.Listening:
		return runstate.Listening{Addr: pe.Addr}, true
	case net.Connected:
		return runstate.Connected{Peer: pe.Peer}, true
	case net.Disconnecting:
		return runstate.Disconnecting{Peer: pe.Peer}, true
	default:
		return nil, false
	}
}

// step feeds one event to the state machine and dispatches the resulting
// commands. It is only called from the Run loop.
func (n *Node) step(ev runstate.Event) {
	from := n.runState.Status()
	cmds := n.runState.Transition(ev)
	to := n.runState.Status()
	connected := n.runState.ConnectedPeers()

	telemetry.ObserveTransition(from, to, ev, cmds, len(connected))
	n.record(ev, to, connected, len(cmds))

	if _, ok := ev.(runstate.Listening); ok {
		n.dialBootstrap()
	}

	for _, c := range cmds {
		n.dispatch(c)
	}
}

func (n *Node) record(ev runstate.Event, status runstate.Status, connected []peers.PeerID, commands int) {
	n.statsLock.Lock()
	defer n.statsLock.Unlock()

	n.stats.status = status
	n.stats.connected = connected
	n.stats.events++
	n.stats.commands += commands

	switch e := ev.(type) {
	case runstate.SyncSucceeded:
		n.stats.syncRequests++
	case runstate.SyncFailed:
		n.stats.syncRequests++
		n.stats.syncErrors++
		n.logger.WithError(e.Err).WithField("peer", e.Peer.Short()).Error("Sync failed")
	case runstate.AnnounceSucceeded:
		n.stats.announcements++
		n.stats.announcedRefs += len(e.Updates)
	case runstate.AnnounceFailed:
		n.stats.announceErrors++
		n.logger.WithError(e.Err).Error("Announce failed")
	}
}

func (n *Node) dispatch(cmd runstate.Command) {
	switch c := cmd.(type) {
	case runstate.Announce:
		if !n.goFunc(n.announce) {
			n.logger.WithField("command", c).Warn("Too many routines, dropping command")
		}
	case runstate.SyncPeer:
		if !n.goFunc(func() { n.syncPeer(c.Peer) }) {
			n.logger.WithField("command", c).Warn("Too many routines, dropping command")
		}
	case runstate.StartSyncTimeout:
		// not subject to WGLIMIT
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.syncTimeout(c.Period)
		}()
	default:
		n.logger.WithField("command", fmt.Sprintf("%T", cmd)).Error("Unexpected command")
	}
}

func (n *Node) announce() {
	start := time.Now()
	updates, err := n.announcer.Run(n.ctx)
	n.logger.WithField("duration", time.Since(start).Nanoseconds()).Debug("announce()")

	if err != nil {
		n.feed(runstate.AnnounceFailed{Err: err})
		return
	}
	n.feed(runstate.AnnounceSucceeded{Updates: updates})
}

func (n *Node) syncPeer(peer peers.PeerID) {
	n.feed(runstate.SyncStarted{Peer: peer})

	start := time.Now()
	changed, err := n.syncer.Sync(n.ctx, peer)
	elapsed := time.Since(start)
	n.logger.WithFields(logrus.Fields{
		"peer":     peer.Short(),
		"changed":  changed,
		"duration": elapsed.Nanoseconds(),
	}).Debug("sync()")

	n.statsLock.Lock()
	n.stats.syncDurations.Add(elapsed)
	n.statsLock.Unlock()

	if err != nil {
		n.feed(runstate.SyncFailed{Peer: peer, Err: err})
		return
	}
	n.feed(runstate.SyncSucceeded{Peer: peer})
}

func (n *Node) syncTimeout(d time.Duration) {
	select {
	case <-n.timerFactory(d):
		n.feed(runstate.SyncPeriodElapsed{})
	case <-n.shutdownCh:
	}
}

// feed hands an event back to the Run loop.
func (n *Node) feed(ev runstate.Event) {
	select {
	case n.feedbackCh <- ev:
	case <-n.shutdownCh:
	}
}

func (n *Node) dialBootstrap() {
	_, others := peers.ExcludePeer(n.bootstrap, n.id)

	for _, p := range others {
		addr := p.NetAddr
		n.goFunc(func() {
			if err := n.trans.Connect(addr); err != nil {
				n.logger.WithError(err).WithField("addr", addr).Warn("Failed to dial bootstrap peer")
			}
		})
	}
}

func (n *Node) doBackgroundWork() {
	defer n.loop.Done()

	for {
		select {
		case rpc := <-n.netCh:
			if !n.goFunc(func() { n.processRPC(rpc) }) {
				rpc.Respond(nil, ErrBusy)
			}
		case <-n.shutdownCh:
			return
		}
	}
}

// Connect opens a link to the peer listening on addr.
func (n *Node) Connect(addr string) error {
	return n.trans.Connect(addr)
}

// Shutdown stops the Run loop, waits for running routines, then closes the
// transport and the store. It is safe to call more than once.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		n.loopLock.Lock()
		close(n.shutdownCh)
		n.loopLock.Unlock()
		n.cancel()

		n.loop.Wait()
		n.waitRoutines()

		// transport and store are only closed once all concurrent operations
		// are finished
		if err := n.trans.Close(); err != nil {
			n.logger.WithError(err).Error("Closing transport")
		}
		if err := n.store.Close(); err != nil {
			n.logger.WithError(err).Error("Closing store")
		}
	})
}

// GetStatus returns the status the machine had after the last processed
// event.
func (n *Node) GetStatus() runstate.Status {
	n.statsLock.RLock()
	defer n.statsLock.RUnlock()
	return n.stats.status
}

// GetPeers returns the connected peer set after the last processed event.
func (n *Node) GetPeers() []peers.PeerID {
	n.statsLock.RLock()
	defer n.statsLock.RUnlock()

	res := make([]peers.PeerID, len(n.stats.connected))
	copy(res, n.stats.connected)
	return res
}

// GetRefs returns the local refs.
func (n *Node) GetRefs() ([]storage.Ref, error) {
	return n.store.Refs()
}

// PutRef records a local ref. Changes go out with the next announcement and
// are served to peers that sync with this node.
func (n *Node) PutRef(ref storage.Ref) (bool, error) {
	changed, err := n.store.PutRef(ref)
	if err != nil {
		return false, err
	}

	n.logger.WithFields(logrus.Fields{
		"urn":     ref.URN,
		"head":    ref.Head,
		"changed": changed,
	}).Debug("PutRef")

	return changed, nil
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	n.statsLock.RLock()
	defer n.statsLock.RUnlock()

	syncs := 0
	if s, ok := n.stats.status.(runstate.Syncing); ok {
		syncs = s.Syncs
	}

	return map[string]string{
		"id":              n.id.String(),
		"moniker":         n.conf.Moniker,
		"state":           runstate.StatusName(n.stats.status),
		"since":           n.stats.status.Since().Format(time.RFC3339Nano),
		"syncs":           strconv.Itoa(syncs),
		"num_peers":       strconv.Itoa(len(n.stats.connected)),
		"events":          strconv.Itoa(n.stats.events),
		"commands":        strconv.Itoa(n.stats.commands),
		"sync_requests":   strconv.Itoa(n.stats.syncRequests),
		"sync_errors":     strconv.Itoa(n.stats.syncErrors),
		"sync_rate":       strconv.FormatFloat(n.syncRate(), 'f', 2, 64),
		"sync_median":     n.stats.syncDurations.Median().String(),
		"announcements":   strconv.Itoa(n.stats.announcements),
		"announce_errors": strconv.Itoa(n.stats.announceErrors),
		"announced_refs":  strconv.Itoa(n.stats.announcedRefs),
		"routines":        strconv.Itoa(n.running()),
		"uptime":          time.Since(n.stats.start).Round(time.Second).String(),
	}
}

// syncRate must be called with statsLock held.
func (n *Node) syncRate() float64 {
	var syncErrorRate float64

	if n.stats.syncRequests != 0 {
		syncErrorRate = float64(n.stats.syncErrors) / float64(n.stats.syncRequests)
	}

	return 1 - syncErrorRate
}
