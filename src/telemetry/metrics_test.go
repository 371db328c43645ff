package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/runstate/src/runstate"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTransition(t *testing.T) {
	connected := runstate.Connected{Peer: "0XA"}
	before := testutil.ToFloat64(EventsTotal.WithLabelValues(connected.Kind()))
	beforeSync := testutil.ToFloat64(CommandsTotal.WithLabelValues(runstate.SyncPeer{}.Kind()))
	beforeEdge := testutil.ToFloat64(TransitionsTotal.WithLabelValues("Started", "Syncing"))

	ObserveTransition(
		runstate.Started{At: time.Now()},
		runstate.Syncing{At: time.Now(), Syncs: 1},
		connected,
		[]runstate.Command{
			runstate.SyncPeer{Peer: "0XA"},
			runstate.StartSyncTimeout{Period: time.Second},
		},
		1,
	)

	if got := testutil.ToFloat64(EventsTotal.WithLabelValues(connected.Kind())); got != before+1 {
		t.Fatalf("events_total should be %v, not %v", before+1, got)
	}
	if got := testutil.ToFloat64(CommandsTotal.WithLabelValues(runstate.SyncPeer{}.Kind())); got != beforeSync+1 {
		t.Fatalf("commands_total should be %v, not %v", beforeSync+1, got)
	}
	if got := testutil.ToFloat64(TransitionsTotal.WithLabelValues("Started", "Syncing")); got != beforeEdge+1 {
		t.Fatalf("transitions_total should be %v, not %v", beforeEdge+1, got)
	}
	if got := testutil.ToFloat64(ConnectedPeers); got != 1 {
		t.Fatalf("connected_peers should be 1, not %v", got)
	}

	for _, name := range runstate.StatusNames {
		want := 0.0
		if name == "Syncing" {
			want = 1
		}
		if got := testutil.ToFloat64(Status.WithLabelValues(name)); got != want {
			t.Fatalf("status{%s} should be %v, not %v", name, want, got)
		}
	}
}

func TestSelfLoopDoesNotCountTransition(t *testing.T) {
	before := testutil.ToFloat64(TransitionsTotal.WithLabelValues("Online", "Online"))

	ObserveTransition(
		runstate.Online{At: time.Now()},
		runstate.Online{At: time.Now()},
		runstate.AnnounceTick{},
		[]runstate.Command{runstate.Announce{}},
		2,
	)

	if got := testutil.ToFloat64(TransitionsTotal.WithLabelValues("Online", "Online")); got != before {
		t.Fatalf("self loop should not be counted, got %v", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	SetBuildInfo("test")

	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	mux.Handle("/ping", Instrument("ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/ping", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("ping should return 204, not %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, name := range []string{
		"runstate_build_info",
		"runstate_status",
		"runstate_http_requests_total",
		"runstate_uptime_seconds",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("/metrics should expose %s", name)
		}
	}
}
