package runstate

import (
	"fmt"
	"time"
)

// Status is the current status of the local peer and its relation to the
// network. The set of variants is closed.
type Status interface {
	// Since returns the instant the status was entered.
	Since() time.Time
	String() string
	isStatus()
}

// Stopped is the initial status: not even a socket to listen on.
type Stopped struct {
	At time.Time
}

// Started means the local peer listens on a socket but has no connected peer
// yet.
type Started struct {
	At time.Time
}

// Offline means the local peer lost its connections to all its peers.
type Offline struct {
	At time.Time
}

// Syncing is the phase where the local peer tries to get up-to-date. Syncs
// counts the peers a sync was issued to.
type Syncing struct {
	At    time.Time
	Syncs int
}

// Online means the local peer is operational and may announce.
type Online struct {
	At time.Time
}

// Since implements Status.
func (s Stopped) Since() time.Time { return s.At }

// Since implements Status.
func (s Started) Since() time.Time { return s.At }

// Since implements Status.
func (s Offline) Since() time.Time { return s.At }

// Since implements Status.
func (s Syncing) Since() time.Time { return s.At }

// Since implements Status.
func (s Online) Since() time.Time { return s.At }

func (Stopped) String() string { return "Stopped" }
func (Started) String() string { return "Started" }
func (Offline) String() string { return "Offline" }
func (s Syncing) String() string {
	return fmt.Sprintf("Syncing(%d)", s.Syncs)
}
func (Online) String() string { return "Online" }

func (Stopped) isStatus() {}
func (Started) isStatus() {}
func (Offline) isStatus() {}
func (Syncing) isStatus() {}
func (Online) isStatus()  {}

// StatusName returns the variant name without payload, e.g. "Syncing". It is
// meant for metric labels.
func StatusName(s Status) string {
	switch s.(type) {
	case Stopped:
		return "Stopped"
	case Started:
		return "Started"
	case Offline:
		return "Offline"
	case Syncing:
		return "Syncing"
	case Online:
		return "Online"
	default:
		return "Unknown"
	}
}

// StatusNames lists every variant name, in lifecycle order.
var StatusNames = []string{"Stopped", "Started", "Offline", "Syncing", "Online"}
