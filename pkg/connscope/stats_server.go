package connscope

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"

	proxyproto "github.com/armon/go-proxyproto"

	"github.com/connscope/connscope/pkg/connscope/feed"
	"github.com/connscope/connscope/pkg/connscope/reconcile"
)

// StatsServer exposes the reconciled connection view and a feed
// healthcheck as JSON, on a unix socket (StatsSocketDir) or a TCP
// listener (StatsAddr).
type StatsServer struct {
	config     *Config
	monitor    *Monitor
	ln         net.Listener
	mux        *http.ServeMux
	socketPath string
}

type statsPayload struct {
	UploadTotal   int64                 `json:"uploadTotal"`
	DownloadTotal int64                 `json:"downloadTotal"`
	Ordering      string                `json:"ordering"`
	FilterError   string                `json:"filterError,omitempty"`
	Connections   []reconcile.Displayed `json:"connections"`
}

type healthPayload struct {
	State string            `json:"state"`
	Feed  *feed.HealthStats `json:"feed,omitempty"`
}

func newServer(config *Config, monitor *Monitor) (s *StatsServer) {
	s = &StatsServer{
		config:  config,
		monitor: monitor,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("/", s.stats)
	s.mux.HandleFunc("/healthcheck", s.healthcheck)
	return
}

func (s *StatsServer) Serve() {
	var ln net.Listener
	var err error

	if s.config.StatsAddr != "" {
		ln, err = net.Listen("tcp", s.config.StatsAddr)
		if err == nil && s.config.SupportProxyProtocol {
			ln = &proxyproto.Listener{Listener: ln}
		}
	} else {
		pid := os.Getpid()
		s.socketPath = fmt.Sprintf("%s/connscope-%d.sock", s.config.StatsSocketDir, pid)
		ln, err = net.Listen("unix", s.socketPath)
		if err == nil {
			os.Chmod(s.socketPath, s.config.StatsSocketFileMode)
		}
	}
	if err != nil {
		s.config.Log.Fatal("Could not start the stats server.", err)
	}

	s.ln = ln
	http.Serve(s.ln, s.mux)
}

func (s *StatsServer) Shutdown() {
	if s.ln != nil {
		s.ln.Close()
	}
	if s.socketPath != "" {
		os.Remove(s.socketPath)
	}
}

func (s *StatsServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.mux.ServeHTTP(w, req)
}

func (s *StatsServer) stats(rw http.ResponseWriter, req *http.Request) {
	upload, download := s.monitor.Totals()
	payload := statsPayload{
		UploadTotal:   upload,
		DownloadTotal: download,
		Ordering:      s.monitor.Ordering().String(),
		Connections:   s.monitor.View(),
	}
	// A broken search pattern is part of the payload: the view is
	// empty and the caller needs to know why.
	if err := s.monitor.FilterErr(); err != nil {
		payload.FilterError = err.Error()
	}
	if payload.Connections == nil {
		payload.Connections = []reconcile.Displayed{}
	}

	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(payload); err != nil {
		s.config.Log.Error(err)
	}
}

func (s *StatsServer) healthcheck(rw http.ResponseWriter, req *http.Request) {
	payload := healthPayload{State: "ok"}

	if s.config.Health != nil {
		stats := s.config.Health.Stats()
		payload.Feed = &stats
		if stats.TotalAttempts > 0 && stats.Availability == 0 {
			payload.State = "unavailable"
			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(rw).Encode(payload)
			return
		}
	}
	if sd, ok := s.config.ShuttingDown.Load().(bool); ok && sd {
		payload.State = "shutting down"
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(payload)
}

// StartStatsServer starts serving in the background and returns the
// server for later shutdown.
func StartStatsServer(config *Config, monitor *Monitor) *StatsServer {
	server := newServer(config, monitor)
	go server.Serve()
	return server
}
