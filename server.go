package main

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Server struct {
	config      *Config
	broadcaster *Broadcaster
	registry    *Registry
	gatherer    prometheus.Gatherer
	log         *logrus.Entry
	upgrader    websocket.Upgrader

	accessLog io.WriteCloser
	quit      chan struct{}
	quitOnce  sync.Once
}

func newServer(config *Config, broadcaster *Broadcaster, registry *Registry, gatherer prometheus.Gatherer, log *logrus.Entry) *Server {
	return &Server{
		config:      config,
		broadcaster: broadcaster,
		registry:    registry,
		gatherer:    gatherer,
		log:         log,
		quit:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(s.config.StaticDir))))
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)

	if s.accessLog == nil {
		s.accessLog = s.log.WriterLevel(logrus.DebugLevel)
	}
	return handlers.RecoveryHandler(handlers.RecoveryLogger(s.log))(handlers.CombinedLoggingHandler(s.accessLog, r))
}

// Close releases subscription handlers still waiting on their clients.
// Hijacked connections are not tracked by http.Server.Shutdown.
func (s *Server) Close() {
	s.quitOnce.Do(func() {
		close(s.quit)
		if s.accessLog != nil {
			_ = s.accessLog.Close()
		}
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	_, payload := s.broadcaster.Latest()
	if payload == nil {
		http.Error(w, "metrics not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"subscribers": s.registry.Len(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.config.StaticDir, "index.html"))
}

// handleWebSocket registers the connection after the warm-up and keeps it
// registered until the client goes away or the server closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugf("ws upgrade: %v", err)
		return
	}

	sub := newWSSubscriber(conn, s.config.WriteTimeout)
	defer sub.Close()
	log := s.log.WithField("subscriber", sub.ID())

	go sub.readPump()

	if s.config.WarmUp > 0 {
		warmUp := time.NewTimer(s.config.WarmUp)
		select {
		case <-warmUp.C:
		case <-sub.Gone():
			warmUp.Stop()
			log.Debugf("client left during warm-up")
			return
		case <-s.quit:
			warmUp.Stop()
			return
		}
	}

	s.registry.Add(sub)
	defer s.registry.Remove(sub)
	log.WithField("remote", r.RemoteAddr).Infof("subscriber connected")

	select {
	case <-sub.Gone():
	case <-s.quit:
	}
	log.Infof("subscriber disconnected")
}
