package runstate

import (
	"fmt"
	"time"

	"github.com/mosaicnetworks/runstate/src/peers"
)

// Command is an instruction to issue a side-effect, produced by a transition.
// The state machine never learns whether a command ran; outcomes come back as
// later events. Command values are comparable.
type Command interface {
	Kind() string
	isCommand()
}

// Announce starts the announcement subroutine.
type Announce struct{}

// SyncPeer initiates a full sync with Peer.
type SyncPeer struct {
	Peer peers.PeerID
}

// StartSyncTimeout arms a one-shot timer which must deliver a
// SyncPeriodElapsed event after Period.
type StartSyncTimeout struct {
	Period time.Duration
}

// Kind implements Command.
func (Announce) Kind() string { return "announce" }

// Kind implements Command.
func (SyncPeer) Kind() string { return "sync_peer" }

// Kind implements Command.
func (StartSyncTimeout) Kind() string { return "start_sync_timeout" }

func (Announce) String() string { return "Announce" }
func (c SyncPeer) String() string {
	return fmt.Sprintf("SyncPeer(%s)", c.Peer.Short())
}
func (c StartSyncTimeout) String() string {
	return fmt.Sprintf("StartSyncTimeout(%s)", c.Period)
}

func (Announce) isCommand()         {}
func (SyncPeer) isCommand()         {}
func (StartSyncTimeout) isCommand() {}
