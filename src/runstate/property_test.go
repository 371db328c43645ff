package runstate

import (
	"errors"
	"fmt"
	"io/ioutil"
	"testing"
	"time"

	"github.com/mosaicnetworks/runstate/src/peers"
	"github.com/sirupsen/logrus"
	"pgregory.net/rapid"
)

func quietEntry() *logrus.Entry {
	logger := logrus.New()
	logger.Out = ioutil.Discard
	return logrus.NewEntry(logger)
}

func drawEvent(t *rapid.T) Event {
	p := peerID(rapid.IntRange(0, 5).Draw(t, "peer"))

	switch rapid.IntRange(0, 9).Draw(t, "kind") {
	case 0:
		return Listening{Addr: "127.0.0.1:1337"}
	case 1:
		return Connected{Peer: p}
	case 2:
		return Disconnecting{Peer: p}
	case 3:
		return AnnounceTick{}
	case 4:
		return AnnounceSucceeded{}
	case 5:
		return AnnounceFailed{Err: errors.New("boom")}
	case 6:
		return SyncStarted{Peer: p}
	case 7:
		return SyncSucceeded{Peer: p}
	case 8:
		return SyncFailed{Peer: p, Err: errors.New("boom")}
	default:
		return SyncPeriodElapsed{}
	}
}

// TestTransitionProperties folds random event sequences and checks the
// invariants that must hold after every step.
func TestTransitionProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		conf := syncConfig(
			rapid.IntRange(1, 4).Draw(t, "maxPeers"),
			rapid.Bool().Draw(t, "onStartup"),
			10*time.Second,
		)

		clock := time.Now()
		r := New(conf, quietEntry())
		r.now = func() time.Time {
			clock = clock.Add(time.Millisecond)
			return clock
		}

		model := map[peers.PeerID]struct{}{}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			ev := drawEvent(t)
			prev := r.Status()

			cmds := r.Transition(ev)
			next := r.Status()

			// the peer set only changes through Connected and Disconnecting
			switch e := ev.(type) {
			case Connected:
				switch s := prev.(type) {
				case Started:
					model[e.Peer] = struct{}{}
				case Syncing:
					if s.Syncs < conf.Sync.MaxPeers {
						model[e.Peer] = struct{}{}
					}
				}
			case Disconnecting:
				delete(model, e.Peer)
			}
			if got := r.ConnectedPeers(); len(got) != len(model) {
				t.Fatalf("peer set %v does not match model %v after %s", got, model, ev.Kind())
			}

			// Stopped never holds peers
			if _, ok := next.(Stopped); ok && len(model) != 0 {
				t.Fatalf("Stopped should not hold peers")
			}

			// the sync counter stays within the quota
			if s, ok := next.(Syncing); ok && (s.Syncs < 1 || s.Syncs > conf.Sync.MaxPeers) {
				t.Fatalf("Syncs out of range: %d (max %d)", s.Syncs, conf.Sync.MaxPeers)
			}

			// ticks announce exactly while there is, or may be, an audience
			if _, ok := ev.(AnnounceTick); ok {
				audience := false
				switch prev.(type) {
				case Online, Started, Syncing:
					audience = true
				}
				if audience != (len(cmds) == 1 && cmds[0] == Command(Announce{})) {
					t.Fatalf("tick in %s returned %v", prev, cmds)
				}
			}

			// outcome events never move the machine
			switch ev.(type) {
			case SyncStarted, SyncSucceeded, SyncFailed, AnnounceSucceeded, AnnounceFailed:
				if len(cmds) != 0 || fmt.Sprintf("%T", prev) != fmt.Sprintf("%T", next) {
					t.Fatalf("%s should be a no-op in %s", ev.Kind(), prev)
				}
			}

			// every SyncPeer targets the peer that just connected
			for _, c := range cmds {
				if sp, ok := c.(SyncPeer); ok {
					if e, ok := ev.(Connected); !ok || e.Peer != sp.Peer {
						t.Fatalf("SyncPeer(%s) without a matching Connected", sp.Peer)
					}
				}
			}

			// an emptied peer set always lands in Offline
			if _, ok := ev.(Disconnecting); ok && len(model) == 0 {
				if _, offline := next.(Offline); !offline {
					t.Fatalf("empty peer set should be Offline, got %s", next)
				}
			}

			if next.Since().Before(prev.Since()) {
				t.Fatalf("since went backwards: %s -> %s", prev, next)
			}
		}
	})
}
