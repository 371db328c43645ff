// Package service exposes an HTTP API over a running node: stats, peers,
// metrics, and the refs the node replicates.
package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/mosaicnetworks/runstate/src/peers"
	"github.com/mosaicnetworks/runstate/src/storage"
	"github.com/mosaicnetworks/runstate/src/telemetry"
	"github.com/sirupsen/logrus"
)

// Node is the part of node.Node the service uses.
type Node interface {
	GetStats() map[string]string
	GetPeers() []peers.PeerID
	GetRefs() ([]storage.Ref, error)
	PutRef(ref storage.Ref) (bool, error)
}

// PutRefResponse is the body returned by PUT /refs.
type PutRefResponse struct {
	Changed bool `json:"changed"`
}

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	node        Node
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:    bindAddress,
		Handler: service.mux,
	}

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.mux.Handle("/stats", telemetry.Instrument("stats", s.makeHandler(s.GetStats, http.MethodGet)))
	s.mux.Handle("/peers", telemetry.Instrument("peers", s.makeHandler(s.GetPeers, http.MethodGet)))
	s.mux.Handle("/refs", telemetry.Instrument("refs", s.makeHandler(s.Refs, http.MethodGet, http.MethodPut)))
	s.mux.Handle("/metrics", telemetry.MetricsHandler())
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request), methods ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowed(r.Method, methods) {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

func allowed(method string, methods []string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

// Handler returns the service's request multiplexer.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.node.GetPeers())
}

// Refs lists the node's refs on GET and records one on PUT. The PUT body is a
// JSON encoded storage.Ref.
func (s *Service) Refs(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		s.putRef(w, r)
		return
	}

	refs, err := s.node.GetRefs()
	if err != nil {
		s.logger.WithError(err).Error("Reading refs")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(refs)
}

func (s *Service) putRef(w http.ResponseWriter, r *http.Request) {
	var ref storage.Ref
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ref.URN == "" || ref.Head == "" {
		http.Error(w, "urn and head are required", http.StatusBadRequest)
		return
	}

	changed, err := s.node.PutRef(ref)
	if err != nil {
		s.logger.WithError(err).WithField("urn", ref.URN).Error("Writing ref")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(PutRefResponse{Changed: changed})
}
