package server

import (
	"crypto/tls"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/guseggert/webcli/internal/metrics"
	"github.com/guseggert/webcli/session"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//go:embed public
var publicFS embed.FS

// Server serves the terminal transport and the browser client bundle.
// Every WebSocket connection on /ws gets its own CLI process.
type Server struct {
	logger *zap.SugaredLogger

	certPEM []byte
	keyPEM  []byte

	cliPath     string
	idleTimeout time.Duration
	killGrace   time.Duration
	listenAddr  string

	registry   *prometheus.Registry
	sessions   *session.Server
	httpServer *http.Server
}

type Option func(s *Server)

func WithListenAddr(addr string) Option {
	return func(s *Server) {
		s.listenAddr = addr
	}
}

func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

func WithKillGrace(d time.Duration) Option {
	return func(s *Server) {
		s.killGrace = d
	}
}

// WithTLS serves HTTPS using the given PEM-encoded certificate and key.
func WithTLS(certPEM, keyPEM []byte) Option {
	return func(s *Server) {
		s.certPEM = certPEM
		s.keyPEM = keyPEM
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l.Named("webcli").Sugar()
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(s *Server) {
		s.logger = s.logger.WithOptions(zap.IncreaseLevel(l))
	}
}

// New constructs a server that spawns the executable at cliPath for each client.
func New(cliPath string, opts ...Option) (*Server, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	s := &Server{
		logger:     logger.Named("webcli").Sugar(),
		cliPath:    cliPath,
		killGrace:  5 * time.Second,
		listenAddr: "0.0.0.0:3000",
		registry:   prometheus.NewRegistry(),
	}
	for _, o := range opts {
		o(s)
	}

	s.sessions = &session.Server{
		Log:         s.logger.Named("session_server"),
		Path:        cliPath,
		IdleTimeout: s.idleTimeout,
		KillGrace:   s.killGrace,
		Observer:    metrics.New(s.registry),
	}

	router, err := s.router()
	if err != nil {
		return nil, err
	}
	s.httpServer = &http.Server{Handler: router}
	return s, nil
}

func (s *Server) router() (*httprouter.Router, error) {
	static, err := fs.Sub(publicFS, "public")
	if err != nil {
		return nil, fmt.Errorf("loading client bundle: %w", err)
	}

	router := httprouter.New()
	router.GET("/", s.index)
	router.GET("/ws", s.terminalWS)
	router.GET("/healthz", s.health)
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	router.ServeFiles("/static/*filepath", http.FS(static))
	return router, nil
}

// Run runs the server and returns once it has stopped.
func (s *Server) Run() error {
	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}

	if s.certPEM != nil {
		tlsConfig, err := ServerTLSConfig(s.certPEM, s.keyPEM)
		if err != nil {
			listener.Close()
			return fmt.Errorf("building server TLS config: %w", err)
		}
		listener = tls.NewListener(listener, tlsConfig)
	}

	s.logger.Infow("listening", "Addr", listener.Addr().String(), "CLI", s.cliPath, "TLS", s.certPEM != nil)
	err = s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop terminates every session and closes the listener.
func (s *Server) Stop() error {
	s.sessions.Close()
	return s.httpServer.Close()
}

func (s *Server) index(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	b, err := publicFS.ReadFile("public/index.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Add("Content-Type", "text/html; charset=utf-8")
	w.Write(b)
}

func (s *Server) terminalWS(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.sessions.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status   string
	Sessions int
}

func (s *Server) health(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	b, err := json.Marshal(HealthResponse{Status: "ok", Sessions: s.sessions.Len()})
	if err != nil {
		s.logger.Debugf("error marshaling health response: %s", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Add("Content-Type", "application/json")
	w.Write(b)
}
