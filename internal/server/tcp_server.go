// Package server accepts decoder connections and feeds their NDJSON lines to the ingestor.
package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"aiscam-svr/internal/observability"
)

const maxLine = 64 * 1024

// Sink receives one report line at a time.
type Sink interface {
	Submit(ctx context.Context, line []byte) error
}

type TcpServer struct {
	addr   string
	sink   Sink
	logger *slog.Logger

	ln    net.Listener
	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func New(addr string, sink Sink, logger *slog.Logger) *TcpServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TcpServer{
		addr:   addr,
		sink:   sink,
		logger: logger.With("component", "tcp"),
		conns:  make(map[net.Conn]struct{}),
	}
}

func (srv *TcpServer) Listen() error {
	ln, err := net.Listen("tcp", srv.addr)
	if err != nil {
		return fmt.Errorf("error starting TCP server: %w", err)
	}
	srv.ln = ln
	srv.logger.Info("TCP server listening", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address, valid after Listen.
func (srv *TcpServer) Addr() net.Addr {
	return srv.ln.Addr()
}

// Serve accepts connections until ctx is done, then closes every connection
// and waits for the handlers.
func (srv *TcpServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = srv.ln.Close()
		srv.mu.Lock()
		for c := range srv.conns {
			_ = c.Close()
		}
		srv.mu.Unlock()
	}()

	for {
		conn, err := srv.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				srv.wg.Wait()
				return nil
			}
			srv.logger.Error("accept error", "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		observability.TCPConnections.Inc()

		srv.track(conn, true)
		if ctx.Err() != nil {
			// raced with shutdown
			_ = conn.Close()
		}
		srv.wg.Add(1)
		go func(c net.Conn) {
			defer srv.wg.Done()
			defer srv.track(c, false)
			srv.HandleConnection(ctx, c)
		}(conn)
	}
}

func (srv *TcpServer) track(c net.Conn, add bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if add {
		srv.conns[c] = struct{}{}
	} else {
		delete(srv.conns, c)
	}
}

// Start listens on addr and serves until ctx is done.
func Start(ctx context.Context, addr string, sink Sink, logger *slog.Logger) error {
	srv := New(addr, sink, logger)
	if err := srv.Listen(); err != nil {
		return err
	}
	return srv.Serve(ctx)
}

func (srv *TcpServer) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	srv.logger.Info("decoder connected", "remote", remote)

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(60 * time.Second)
	}

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 4096), maxLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := srv.sink.Submit(ctx, line); err != nil {
			srv.logger.Info("decoder dropped", "remote", remote, "error", err)
			return
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		srv.logger.Warn("read error", "remote", remote, "error", err)
	}
	srv.logger.Info("decoder disconnected", "remote", remote)
}
