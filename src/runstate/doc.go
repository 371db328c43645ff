// Package runstate implements the state machine that governs the lifecycle of
// the local peer.
//
// RunState folds one Event at a time into a new Status and returns the
// Commands the surrounding runtime must execute next. It performs no I/O, owns
// no timer and never fails: every (Status, Event) pair which the transition
// table does not name is a silent no-op, because events from the transport,
// the timers and the subroutines race each other and may arrive stale.
//
// Lifecycle
//
//	Stopped --Listening--> Started --Connected--> Syncing --Connected x max--> Online
//	                          |                      |
//	                          |                      +--SyncPeriodElapsed--> Online
//	                          +--Connected (sync on startup disabled)--> Online
//
// Any status goes Offline when the last connected peer disconnects. An
// AnnounceTick produces an Announce command in Started, Syncing and Online.
//
// RunState is not safe for concurrent use. A single goroutine, such as the
// node's run loop, must own it and call Transition sequentially.
package runstate
