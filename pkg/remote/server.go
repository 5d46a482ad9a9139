package remote

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/protocol"
)

// Config configures a remote server. App is the only required field.
type Config struct {
	// App builds the element tree a new session mounts.
	App func() *element.Element

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Store persists detached-session snapshots. Defaults to MemoryStore.
	Store SnapshotStore

	// Registry receives the Prometheus collectors. Defaults to the global
	// registry.
	Registry prometheus.Registerer

	// AllowedOrigins restricts websocket upgrades. Empty allows same-origin
	// only (the gorilla default).
	AllowedOrigins []string

	MaxSessions        int           // cap on live+detached sessions (default 1000)
	MaxRetainedBatches int           // unacked batches kept per session (default 256)
	ResumeWindow       time.Duration // how long detached sessions stay resumable (default 2m)
	ReapInterval       time.Duration // detached-session sweep period (default 30s)
	ReadTimeout        time.Duration // websocket read deadline (default 60s)
	WriteTimeout       time.Duration // websocket write deadline (default 10s)
	PingInterval       time.Duration // keepalive period, must be < ReadTimeout (default 25s)
	FlushInterval      time.Duration // poll period for batches committed off the event path (default 50ms)
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Store == nil {
		c.Store = NewMemoryStore()
	}
	if c.Registry == nil {
		c.Registry = prometheus.DefaultRegisterer
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = 1000
	}
	if c.MaxRetainedBatches <= 0 {
		c.MaxRetainedBatches = 256
	}
	if c.ResumeWindow <= 0 {
		c.ResumeWindow = 2 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 50 * time.Millisecond
	}
}

// Server hosts remote sessions over a chi router.
type Server struct {
	cfg      *Config
	logger   *slog.Logger
	sessions *SessionManager
	upgrader websocket.Upgrader
	tracer   trace.Tracer
	gatherer prometheus.Gatherer
}

// NewServer builds a server from cfg, filling in defaults.
func NewServer(cfg Config) *Server {
	cfg.applyDefaults()
	metrics := NewMetrics(cfg.Registry)
	tracer := otel.Tracer("loom/remote")

	s := &Server{
		cfg:    &cfg,
		logger: cfg.Logger,
		tracer: tracer,
	}
	s.sessions = newSessionManager(&cfg, cfg.Store, cfg.Logger, metrics, tracer)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(cfg.AllowedOrigins) > 0 {
		allowed := make(map[string]bool, len(cfg.AllowedOrigins))
		for _, o := range cfg.AllowedOrigins {
			allowed[o] = true
		}
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return allowed[r.Header.Get("Origin")]
		}
	}
	if g, ok := cfg.Registry.(prometheus.Gatherer); ok {
		s.gatherer = g
	} else {
		s.gatherer = prometheus.DefaultGatherer
	}
	return s
}

// Router returns the HTTP surface: the live websocket endpoint, metrics,
// and a health probe.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/loom/live", s.handleLive)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

// Sessions exposes the manager, mainly for tests and admin handlers.
func (s *Server) Sessions() *SessionManager { return s.sessions }

// Shutdown closes all sessions and the snapshot store.
func (s *Server) Shutdown() {
	s.sessions.Shutdown()
	if err := s.cfg.Store.Close(); err != nil {
		s.logger.Warn("snapshot store close failed", "error", err)
	}
}

// handleLive upgrades the connection and runs the session until it drops.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}

	hello, err := s.readHello(conn)
	if err != nil {
		s.logger.Warn("handshake failed", "error", err)
		conn.Close()
		return
	}

	var session *Session
	resumed := false
	if hello.SessionID != "" {
		if session, err = s.sessions.Resume(hello.SessionID); err == nil {
			resumed = true
		}
	}
	if session == nil {
		session, err = s.sessions.Create()
		if err != nil {
			s.rejectConn(conn, err)
			return
		}
	}

	welcome := &protocol.Welcome{
		Version:   protocol.Version,
		SessionID: session.ID,
		Resumed:   resumed,
	}
	data, err := welcome.Frame().Encode()
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		err = conn.WriteMessage(websocket.BinaryMessage, data)
	}
	if err != nil {
		s.logger.Warn("welcome write failed", "error", err)
		conn.Close()
		return
	}

	session.attach(conn, hello.AckedSeq, resumed)
}

func (s *Server) readHello(conn *websocket.Conn) (*protocol.Hello, error) {
	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	frame, err := protocol.DecodeFrame(msg)
	if err != nil {
		return nil, err
	}
	if frame.Type != protocol.FrameHello {
		return nil, protocol.ErrUnknownFrameType
	}
	return protocol.DecodeHello(frame.Payload)
}

func (s *Server) rejectConn(conn *websocket.Conn, reason error) {
	we := &protocol.WireError{Message: reason.Error()}
	if data, err := we.Frame().Encode(); err == nil {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		conn.WriteMessage(websocket.BinaryMessage, data)
	}
	conn.Close()
}
