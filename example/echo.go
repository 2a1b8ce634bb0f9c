package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Zereker/framesock"
)

// Server echoes every framed message back to its sender.
type Server struct {
	logger      framesock.Logger
	connections *xsync.MapOf[uuid.UUID, *framesock.Conn]
}

func newHandler(logger framesock.Logger) *Server {
	return &Server{
		logger:      logger,
		connections: xsync.NewMapOf[uuid.UUID, *framesock.Conn](),
	}
}

func (s *Server) Handle(conn *framesock.Conn) {
	s.addConn(conn)
	defer s.deleteConn(conn.ID())

	// Echo
	for msg, err := range conn.Messages() {
		if err != nil {
			s.logger.Warn("connection error", "conn_id", conn.ID(), "error", err)
			return
		}
		if err = conn.Send(msg); err != nil {
			s.logger.Warn("echo failed", "conn_id", conn.ID(), "error", err)
			return
		}
	}
	s.logger.Info("conn closed by peer", "conn_id", conn.ID())
}

func (s *Server) addConn(conn *framesock.Conn) {
	s.logger.Info("add new conn", "conn_id", conn.ID(), "addr", conn.Addr())
	s.connections.Store(conn.ID(), conn)
}

func (s *Server) deleteConn(id uuid.UUID) {
	if conn, ok := s.connections.LoadAndDelete(id); ok {
		_ = conn.Close()
	}
}

func (s *Server) closeAll() {
	s.connections.Range(func(id uuid.UUID, conn *framesock.Conn) bool {
		_ = conn.Close()
		return true
	})
}

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			fatal(err)
		}
	}

	logger, flush, err := newLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fatal(err)
	}
	defer flush()

	reg := prometheus.NewRegistry()
	metrics := framesock.NewMetrics("echo")
	if err = metrics.Register(reg); err != nil {
		fatal(err)
	}

	server, err := framesock.New(cfg.Server,
		framesock.ServerLoggerOption(logger),
		framesock.ServerMetricsOption(metrics),
	)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down server...")
		cancel()
	}()

	handler := newHandler(logger)
	logger.Info("server start", "addr", server.Addr().String())
	if err := server.Serve(ctx, handler); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
	}

	disposeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Dispose(disposeCtx); err != nil {
		logger.Warn("dispose did not finish", "error", err)
	}
	handler.closeAll()
}
