// Package server exposes the modem over HTTP: WAV rendering, link
// simulation and a websocket feed of station events.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP server for the web interface.
type Server struct {
	mux       *http.ServeMux
	handler   *Handlers
	addr      string
	staticDir string
}

// NewServer creates a server. An empty staticDir serves the API only.
func NewServer(addr string, handler *Handlers, staticDir string) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		handler:   handler,
		addr:      addr,
		staticDir: staticDir,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/transmit", s.handler.HandleTransmit)
	s.mux.HandleFunc("/api/simulate", s.handler.HandleSimulate)
	s.mux.HandleFunc("/api/status", s.handler.HandleStatus)
	s.mux.HandleFunc("/api/devices", s.handler.HandleDevices)

	s.mux.HandleFunc("/ws", s.handler.HandleWebSocket)

	if s.staticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.mux.ServeHTTP(w, r)
		if isAPI(r.URL.Path) {
			log.WithFields(log.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"time":   time.Since(start),
			}).Debug("Request")
		}
	})
}

// Start serves until ctx is cancelled. Station events are forwarded to
// websocket clients, and when listen is set the station also captures audio
// for the lifetime of the server.
func (s *Server) Start(ctx context.Context, listen bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.handler.hub.Forward(ctx, s.handler.station.Events())

	if listen {
		go func() {
			s.handler.listening.Store(true)
			defer s.handler.listening.Store(false)
			s.handler.hub.BroadcastStatus("listening", "Capturing audio")
			if err := s.handler.station.Listen(ctx); err != nil {
				log.WithError(err).Error("Listening stopped")
				s.handler.hub.BroadcastStatus("error", err.Error())
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", s.addr).Info("Starting server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
