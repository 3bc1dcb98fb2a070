package websocket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/janus/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server streams processed games to websocket subscribers
type Server struct {
	port   string
	server *http.Server
	hub    *Hub
	mux    *http.ServeMux
	log    *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new WebSocket server. Hub is the sink to hand to the
// pipeline so results reach subscribers.
func NewServer(port string, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	entry := logger.WithComponent(log, "websocket")
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		port:   port,
		hub:    NewHub(entry),
		log:    entry,
		ctx:    ctx,
		cancel: cancel,
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/ws/games/processed", s.handleProcessedGames)
	s.mux.HandleFunc("/ws/health", s.handleHealth)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub returns the broadcast hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the hub without listening, for embedding the handler elsewhere
func (s *Server) Run() {
	go s.hub.Run(s.ctx)
}

// Start runs the hub and listens on the configured port
func (s *Server) Start() error {
	s.Run()

	s.log.WithField("port", s.port).Info("websocket server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("websocket server: %w", err)
	}
	return nil
}

func (s *Server) handleProcessedGames(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("failed to upgrade connection")
		return
	}

	client := newClient(uuid.NewString(), conn, s.hub, s.log)
	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump(s.ctx)
	go client.ReadPump(s.ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "healthy", "clients": %d}`, s.hub.ClientCount())
}

// Shutdown stops the hub and the listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
