package runstate

import (
	"time"

	"github.com/mosaicnetworks/runstate/src/peers"
	"github.com/sirupsen/logrus"
)

// RunState is the state kept for a running local peer.
type RunState struct {
	config         Config
	connectedPeers map[peers.PeerID]struct{}
	status         Status

	now    func() time.Time
	logger *logrus.Entry
}

// New returns a RunState in the Stopped status with no connected peers. A nil
// logger is replaced by a default one.
func New(config Config, logger *logrus.Entry) *RunState {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	r := &RunState{
		config:         config,
		connectedPeers: make(map[peers.PeerID]struct{}),
		now:            time.Now,
		logger:         logger.WithField("prefix", "run_state"),
	}
	r.status = Stopped{At: r.now()}
	return r
}

// Status returns the current status.
func (r *RunState) Status() Status {
	return r.status
}

// Config returns the configuration the RunState was built with.
func (r *RunState) Config() Config {
	return r.config
}

// ConnectedPeers returns a sorted copy of the connected-peer set.
func (r *RunState) ConnectedPeers() []peers.PeerID {
	res := make([]peers.PeerID, 0, len(r.connectedPeers))
	for p := range r.connectedPeers {
		res = append(res, p)
	}
	return peers.SortIDs(res)
}

// Transition applies the event and, based on the current status, moves to the
// next status and returns the commands to execute, in the order they must be
// issued. Pairs the table does not name leave everything unchanged and return
// no commands.
func (r *RunState) Transition(event Event) []Command {
	prev := r.status

	cmds := r.transition(event)

	r.logger.WithFields(logrus.Fields{
		"status":   prev.String(),
		"event":    event.Kind(),
		"next":     r.status.String(),
		"commands": len(cmds),
	}).Debug("Transition")

	return cmds
}

func (r *RunState) transition(event Event) []Command {
	switch ev := event.(type) {

	// Go from Stopped to Started once we are listening.
	case Listening:
		switch r.status.(type) {
		case Stopped:
			r.status = Started{At: r.now()}
		}

	case Connected:
		switch s := r.status.(type) {

		// Sync with the first incoming peer, or go online straight away if
		// syncing on startup is disabled.
		case Started:
			r.connectedPeers[ev.Peer] = struct{}{}

			if !r.config.Sync.OnStartup {
				r.status = Online{At: r.now()}
				return nil
			}

			r.status = Syncing{At: r.now(), Syncs: 1}

			return []Command{
				SyncPeer{Peer: ev.Peer},
				StartSyncTimeout{Period: r.config.Sync.Period},
			}

		// Sync until the configured maximum of peers is reached. Connections
		// arriving once the quota is reached are ignored.
		case Syncing:
			if s.Syncs >= r.config.Sync.MaxPeers {
				return nil
			}

			r.connectedPeers[ev.Peer] = struct{}{}

			if s.Syncs+1 == r.config.Sync.MaxPeers {
				r.status = Online{At: r.now()}
			} else {
				r.status = Syncing{At: s.At, Syncs: s.Syncs + 1}
			}

			return []Command{SyncPeer{Peer: ev.Peer}}
		}

	// Go online once the sync period is exceeded.
	case SyncPeriodElapsed:
		switch r.status.(type) {
		case Syncing:
			r.status = Online{At: r.now()}
		}

	// Forget the peer whatever the status, and go offline when none is left.
	case Disconnecting:
		delete(r.connectedPeers, ev.Peer)

		if len(r.connectedPeers) == 0 {
			r.status = Offline{At: r.now()}
		}

	// Announce while the peer has, or may get, an audience.
	case AnnounceTick:
		switch r.status.(type) {
		case Online, Started, Syncing:
			return []Command{Announce{}}
		}

	// Sync and announce outcomes carry no transition.
	case SyncStarted, SyncSucceeded, SyncFailed, AnnounceSucceeded, AnnounceFailed:

	default:
	}

	return nil
}
