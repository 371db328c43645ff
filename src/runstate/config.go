package runstate

import "time"

// Default knobs.
const (
	// DefaultAnnounceInterval is the time to wait between announcement runs.
	DefaultAnnounceInterval = 60 * time.Second

	// DefaultSyncMaxPeers is the number of peers a full sync is attempted
	// with upon startup.
	DefaultSyncMaxPeers = 5

	// DefaultSyncOnStartup leaves the syncing phase disabled.
	DefaultSyncOnStartup = false

	// DefaultSyncPeriod is the duration until the local peer goes online
	// regardless of whether and how many syncs succeeded.
	DefaultSyncPeriod = 5 * time.Second
)

// Config alters how events are interpreted. It does not change after the
// RunState is built.
type Config struct {
	Announce AnnounceConfig
	Sync     SyncConfig
}

// AnnounceConfig ...
type AnnounceConfig struct {
	// Interval is how often the runtime should emit AnnounceTick. It is
	// advisory; the state machine does not enforce it.
	Interval time.Duration
}

// SyncConfig ...
type SyncConfig struct {
	// MaxPeers is the number of peers a full sync is attempted with upon
	// startup before going online.
	MaxPeers int
	// OnStartup enables the syncing stage when coming online.
	OnStartup bool
	// Period is the duration until the local peer goes online regardless of
	// sync progress.
	Period time.Duration
}

// DefaultConfig returns a Config with every knob at its default.
func DefaultConfig() Config {
	return Config{
		Announce: AnnounceConfig{
			Interval: DefaultAnnounceInterval,
		},
		Sync: SyncConfig{
			MaxPeers:  DefaultSyncMaxPeers,
			OnStartup: DefaultSyncOnStartup,
			Period:    DefaultSyncPeriod,
		},
	}
}
