// Package engine assembles a runnable node from a config.Config: key, peers,
// store, transport, node and HTTP service.
package engine

import (
	"context"
	"crypto/ecdsa"
	"os"
	"time"

	"github.com/mosaicnetworks/runstate/src/config"
	"github.com/mosaicnetworks/runstate/src/crypto/keys"
	"github.com/mosaicnetworks/runstate/src/net"
	"github.com/mosaicnetworks/runstate/src/node"
	"github.com/mosaicnetworks/runstate/src/peers"
	"github.com/mosaicnetworks/runstate/src/service"
	"github.com/mosaicnetworks/runstate/src/storage"
	"github.com/mosaicnetworks/runstate/src/telemetry"
	"github.com/mosaicnetworks/runstate/src/version"
	"github.com/sirupsen/logrus"
)

// Engine ...
type Engine struct {
	Config    *config.Config
	Key       *ecdsa.PrivateKey
	Node      *node.Node
	Transport *net.NetworkTransport
	Store     storage.Store
	Peers     []*peers.Peer
	Service   *service.Service

	logger *logrus.Entry
}

// NewEngine ...
func NewEngine(config *config.Config) *Engine {
	engine := &Engine{
		Config: config,
		logger: config.Logger(),
	}

	return engine
}

func (e *Engine) initKey() error {
	if e.Key != nil {
		return nil
	}

	key, created, err := keys.NewSimpleKeyfile(e.Config.Keyfile()).ReadOrCreateKey()
	if err != nil {
		e.logger.WithError(err).Error("Cannot read private key")
		return err
	}

	if created {
		e.logger.WithField("keyfile", e.Config.Keyfile()).Info("Created a new key")
	}

	e.Key = key

	return nil
}

func (e *Engine) initPeers() error {
	participants, err := peers.NewJSONPeers(e.Config.DataDir).Peers()
	if err != nil {
		return err
	}

	e.Peers = participants

	return nil
}

func (e *Engine) initStore() error {
	if e.Config.Store != storage.InmemBackend {
		if err := os.MkdirAll(e.Config.DatabaseDir, 0700); err != nil {
			return err
		}
	}

	e.logger.WithFields(logrus.Fields{
		"store": e.Config.Store,
		"path":  e.Config.DatabasePath(),
	}).Debug("Opening store")

	store, err := storage.NewStore(e.Config.Store, e.Config.DatabasePath())
	if err != nil {
		return err
	}

	e.Store = store

	return nil
}

func (e *Engine) initTransport() error {
	transport, err := net.NewTCPTransport(
		keys.PeerID(e.Key),
		e.Config.BindAddr,
		e.Config.AdvertiseAddr,
		e.Config.MaxPool,
		e.Config.TCPTimeout,
		e.logger,
	)
	if err != nil {
		return err
	}

	e.Transport = transport

	return nil
}

func (e *Engine) initNode() error {
	id := keys.PeerID(e.Key)

	e.logger.WithFields(logrus.Fields{
		"bootstrap": len(e.Peers),
		"id":        id.Short(),
	}).Debug("PARTICIPANTS")

	e.Node = node.NewNode(
		node.NewConfig(e.Config.RunStateConfig(), e.Config.Moniker, e.Config.BaseLogger()),
		id,
		e.Peers,
		e.Store,
		e.Transport,
	)

	return nil
}

func (e *Engine) initService() error {
	if !e.Config.NoService {
		e.Service = service.NewService(e.Config.ServiceAddr, e.Node, e.logger.WithField("prefix", "service"))
	}
	return nil
}

// Init validates the configuration and builds every component. Components
// built before a failure are released.
func (e *Engine) Init() error {
	if err := e.Config.Validate(); err != nil {
		return err
	}

	if err := e.initKey(); err != nil {
		return err
	}

	if err := e.initPeers(); err != nil {
		return err
	}

	if err := e.initStore(); err != nil {
		return err
	}

	if err := e.initTransport(); err != nil {
		e.Store.Close()
		return err
	}

	if err := e.initNode(); err != nil {
		e.Transport.Close()
		e.Store.Close()
		return err
	}

	if err := e.initService(); err != nil {
		e.Node.Shutdown()
		return err
	}

	telemetry.SetBuildInfo(version.Version)

	return nil
}

// Run serves the HTTP API, if enabled, and runs the node until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	if e.Service != nil {
		go e.Service.Serve()

		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.Service.Shutdown(sctx); err != nil {
				e.logger.WithError(err).Error("Stopping service")
			}
		}()
	}

	e.logger.WithFields(logrus.Fields{
		"id":   e.Node.ID().Short(),
		"addr": e.Transport.AdvertiseAddr(),
	}).Info("Running")

	e.Node.Run(ctx)
}
