// Package node hosts a run-state machine and wires it to the outside world.
//
// A Node owns exactly one runstate.RunState and is the only goroutine that
// calls Transition on it. Every input is funnelled into the Run loop:
//
//	transport.Events()  -> Listening / Connected / Disconnecting
//	announce ticker     -> AnnounceTick
//	subroutine feedback -> AnnounceSucceeded / AnnounceFailed,
//	                       SyncStarted / SyncSucceeded / SyncFailed
//	sync timer          -> SyncPeriodElapsed
//
// Commands returned by the machine are dispatched to bounded goroutines:
// Announce runs the announcer, SyncPeer runs the syncer against one peer, and
// StartSyncTimeout arms a one-shot timer. Their results come back as events
// on the same loop, so the machine itself never needs a lock.
//
// Incoming RPCs (sync and announce requests from remote peers) are served by a
// separate background routine that only touches the store.
package node
