// Package announce implements the announcement subroutine: it works out which
// refs changed since the previous announcement and broadcasts them.
package announce

import (
	"context"
	"sort"

	"github.com/mosaicnetworks/runstate/src/storage"
	"github.com/sirupsen/logrus"
)

// Updates is the list of refs emitted by one announcement.
type Updates []storage.Ref

// Broadcaster sends updates to every connected peer.
type Broadcaster interface {
	Broadcast(refs []storage.Ref) error
}

// Diff returns the refs of next which are absent from prev or point at a
// different head, sorted by URN.
func Diff(prev, next []storage.Ref) Updates {
	known := make(map[string]string, len(prev))
	for _, r := range prev {
		known[r.URN] = r.Head
	}

	updates := Updates{}
	for _, r := range next {
		if head, ok := known[r.URN]; ok && head == r.Head {
			continue
		}
		updates = append(updates, r)
	}

	sort.Slice(updates, func(i, j int) bool { return updates[i].URN < updates[j].URN })

	return updates
}

// Announcer runs one announcement cycle at a time against a Store.
type Announcer struct {
	store       storage.Store
	broadcaster Broadcaster
	logger      *logrus.Entry
}

// NewAnnouncer ...
func NewAnnouncer(store storage.Store, broadcaster Broadcaster, logger *logrus.Entry) *Announcer {
	return &Announcer{
		store:       store,
		broadcaster: broadcaster,
		logger:      logger.WithField("prefix", "announce"),
	}
}

// Run builds the current list of refs, diffs it with the stored list from the
// previous run, broadcasts the difference and saves the current list. The
// stored list is only replaced once the broadcast went out.
func (a *Announcer) Run(ctx context.Context) (Updates, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := a.store.Refs()
	if err != nil {
		return nil, err
	}

	prev, err := a.store.Announced()
	if err != nil {
		return nil, err
	}

	updates := Diff(prev, current)

	a.logger.WithFields(logrus.Fields{
		"refs":    len(current),
		"updates": len(updates),
	}).Debug("Announce")

	if len(updates) > 0 {
		if err := a.broadcaster.Broadcast(updates); err != nil {
			return nil, err
		}
	}

	if err := a.store.SetAnnounced(current); err != nil {
		return nil, err
	}

	return updates, nil
}
