package runstate

import (
	"github.com/mosaicnetworks/runstate/src/announce"
	"github.com/mosaicnetworks/runstate/src/peers"
)

// Event is something that happened outside the state machine. The set of
// variants is closed; Kind groups them by origin for logs and metrics.
type Event interface {
	Kind() string
	isEvent()
}

// Protocol events, emitted by the transport.

// Listening is emitted once the transport listens on Addr.
type Listening struct {
	Addr string
}

// Connected is emitted when a remote peer connected.
type Connected struct {
	Peer peers.PeerID
}

// Disconnecting is emitted when a remote peer's connection is going away.
type Disconnecting struct {
	Peer peers.PeerID
}

// Announcement subroutine events.

// AnnounceTick signals that the announce interval elapsed.
type AnnounceTick struct{}

// AnnounceSucceeded carries the updates an announcement emitted.
type AnnounceSucceeded struct {
	Updates announce.Updates
}

// AnnounceFailed signals that an announcement did not go out.
type AnnounceFailed struct {
	Err error
}

// Sync subroutine events.

// SyncStarted signals that a sync with Peer was initiated.
type SyncStarted struct {
	Peer peers.PeerID
}

// SyncSucceeded signals that a sync with Peer completed.
type SyncSucceeded struct {
	Peer peers.PeerID
}

// SyncFailed signals that a sync with Peer failed.
type SyncFailed struct {
	Peer peers.PeerID
	Err  error
}

// Scheduled timeouts.

// SyncPeriodElapsed means the grace period is over and the peer should go
// online no matter how many syncs succeeded.
type SyncPeriodElapsed struct{}

// Kind implements Event.
func (Listening) Kind() string { return "protocol.listening" }

// Kind implements Event.
func (Connected) Kind() string { return "protocol.connected" }

// Kind implements Event.
func (Disconnecting) Kind() string { return "protocol.disconnecting" }

// Kind implements Event.
func (AnnounceTick) Kind() string { return "announce.tick" }

// Kind implements Event.
func (AnnounceSucceeded) Kind() string { return "announce.succeeded" }

// Kind implements Event.
func (AnnounceFailed) Kind() string { return "announce.failed" }

// Kind implements Event.
func (SyncStarted) Kind() string { return "sync.started" }

// Kind implements Event.
func (SyncSucceeded) Kind() string { return "sync.succeeded" }

// Kind implements Event.
func (SyncFailed) Kind() string { return "sync.failed" }

// Kind implements Event.
func (SyncPeriodElapsed) Kind() string { return "timeout.sync_period" }

func (Listening) isEvent()         {}
func (Connected) isEvent()         {}
func (Disconnecting) isEvent()     {}
func (AnnounceTick) isEvent()      {}
func (AnnounceSucceeded) isEvent() {}
func (AnnounceFailed) isEvent()    {}
func (SyncStarted) isEvent()       {}
func (SyncSucceeded) isEvent()     {}
func (SyncFailed) isEvent()        {}
func (SyncPeriodElapsed) isEvent() {}
