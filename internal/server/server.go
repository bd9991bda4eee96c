package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/loqalabs/loqa-stt/internal/asr"
	"github.com/loqalabs/loqa-stt/internal/bus"
	"github.com/loqalabs/loqa-stt/internal/config"
	"github.com/loqalabs/loqa-stt/internal/engine"
	"github.com/loqalabs/loqa-stt/internal/vad"
)

// Server accepts streaming connections on a single port and speaks raw TCP or
// WebSocket depending on what the client sends first.
type Server struct {
	cfg      config.Config
	rec      asr.Recognizer
	pool     *engine.Pool
	bus      *bus.Client
	metrics  *Metrics
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// New wires a server. busClient and metrics may be nil.
func New(cfg config.Config, rec asr.Recognizer, busClient *bus.Client, metrics *Metrics, log *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		rec:     rec,
		pool:    engine.NewPool(),
		bus:     busClient,
		metrics: metrics,
		log:     log.With(slog.String("component", "server")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Listen binds the streaming port. A bind failure is fatal for the process.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info("listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr reports the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is canceled, then waits for open
// sessions to drain.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.ln
		s.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	br := bufio.NewReaderSize(conn, sniffLimit)

	isHTTP, err := sniffHTTP(br)
	if err != nil {
		s.log.Warn("protocol detection failed", slog.String("remote", remote), slog.String("error", err.Error()))
		conn.Close()
		return
	}

	var tr transport
	if isHTTP {
		wsConn, err := upgradeWebSocket(&s.upgrader, conn, br)
		if err != nil {
			// the upgrader already answered a malformed request over HTTP
			s.log.Warn("websocket handshake rejected", slog.String("remote", remote), slog.String("error", err.Error()))
			conn.Close()
			return
		}
		tr = newWSTransport(wsConn)
	} else {
		tr = newLineTransport(conn, br)
	}

	var gate vad.Gate
	if s.cfg.VAD.Enabled {
		gate = vad.NewEnergyGate(s.cfg.VAD)
	}
	eng := engine.New(s.rec, gate, s.pool, s.cfg.Engine, s.cfg.VAD, s.cfg.ASR.Language, s.log)

	sess := newSession(uuid.NewString(), tr, eng, s.bus, s.metrics,
		s.cfg.Engine.MinChunkSec, s.cfg.Engine.MaxWaitSec, s.log)

	s.log.Info("session started",
		slog.String("session_id", sess.id),
		slog.String("remote", remote),
		slog.String("transport", tr.Name()))

	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("session ended with error",
			slog.String("session_id", sess.id),
			slog.String("error", err.Error()))
	}
}
