package node

import (
	"fmt"

	"github.com/mosaicnetworks/runstate/src/net"
	"github.com/mosaicnetworks/runstate/src/peersync"
	"github.com/sirupsen/logrus"
)

func (n *Node) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.SyncRequest:
		n.processSyncRequest(rpc, cmd)
	case *net.AnnounceRequest:
		n.processAnnounceRequest(rpc, cmd)
	default:
		n.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
	}
}

func (n *Node) processSyncRequest(rpc net.RPC, cmd *net.SyncRequest) {
	n.logger.WithField("from_id", cmd.FromID.Short()).Debug("process SyncRequest")

	refs, err := n.store.Refs()
	if err != nil {
		n.logger.WithError(err).Error("Reading refs")
	}

	rpc.Respond(&net.SyncResponse{
		FromID: n.id,
		Refs:   refs,
	}, err)
}

func (n *Node) processAnnounceRequest(rpc net.RPC, cmd *net.AnnounceRequest) {
	accepted, err := peersync.Merge(n.store, cmd.Refs)

	n.logger.WithFields(logrus.Fields{
		"from_id":  cmd.FromID.Short(),
		"refs":     len(cmd.Refs),
		"accepted": accepted,
	}).Debug("process AnnounceRequest")

	if err != nil {
		n.logger.WithError(err).Error("Merging announced refs")
	}

	rpc.Respond(&net.AnnounceResponse{
		FromID:   n.id,
		Accepted: accepted,
	}, err)
}
