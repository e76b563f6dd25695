// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Server wires configuration, the transport/ALPN selector, and the dispatcher together
// behind net/http, and owns the per-listener structured task group (§5): connection
// counting is the gate's job, exactly as in the teacher's Gate_/ReachLimit/DecConns, but
// the accept loop itself and the H1-vs-H2 sub-stream fan-out are delegated to
// net/http.Server.Serve and golang.org/x/net/http2, which is where this specification
// places wire-level framing.

package htcore

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"
)

// gate wraps a net.Listener with the connection-count limiting the teacher's Gate_
// mixin performed via ReachLimit/DecConns, so a Server bounds concurrent connections
// per listener without needing to hand-roll its own accept loop.
type gate struct {
	net.Listener
	maxConns int32
	numConns atomic.Int32
}

func newGate(ln net.Listener, maxConns int32) *gate {
	if maxConns <= 0 {
		maxConns = 100000
	}
	return &gate{Listener: ln, maxConns: maxConns}
}

func (g *gate) Accept() (net.Conn, error) {
	for {
		conn, err := g.Listener.Accept()
		if err != nil {
			return nil, err
		}
		if g.numConns.Add(1) > g.maxConns {
			g.numConns.Add(-1)
			conn.Close()
			continue
		}
		return &countedConn{Conn: conn, gate: g}, nil
	}
}

// countedConn decrements the gate's connection count exactly once, however Close is
// invoked (net/http may call it more than once during shutdown).
type countedConn struct {
	net.Conn
	gate      *gate
	closeOnce sync.Once
}

func (c *countedConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.Conn.Close()
		c.gate.numConns.Add(-1)
	})
	return err
}

// DefaultMaxConnsPerGate is 100000 connections, mirroring the teacher's default.
const DefaultMaxConnsPerGate = 100000

// Server runs one listener, dispatching every accepted HTTP/1.1 connection or HTTP/2
// stream to handler through Dispatch. Construct with New; run with Serve.
type Server struct {
	config          *Config
	handler         Handler
	logger          *slog.Logger
	maxConnsPerGate int32

	httpSrv  *http.Server
	reloader *certReloader
	verified *verifiedChainStore

	addr   atomic.Pointer[net.TCPAddr]
	closed atomic.Bool
}

// connKey is the http.Server.ConnContext key holding the net.Conn a request arrived on
// (the raw connection beneath TLS, when TLS is in use), so newRequestContext can look up
// any chain verifiedChainStore captured for it.
type connKey struct{}

// New validates config and builds a Server around handler. It performs no I/O: no
// socket is opened until Serve is called.
func New(config *Config, handler Handler, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	config.Transport.clamp()
	return &Server{
		config:          config,
		handler:         handler,
		logger:          logger,
		maxConnsPerGate: DefaultMaxConnsPerGate,
	}, nil
}

// Addr returns the actual bound socket address. Before Serve has bound a listener, or
// after it has returned, this yields ErrServerClosed.
func (s *Server) Addr() (*net.TCPAddr, error) {
	if s.closed.Load() {
		return nil, ErrServerClosed
	}
	addr := s.addr.Load()
	if addr == nil {
		return nil, ErrServerClosed
	}
	return addr, nil
}

// Serve binds the listener, applies the transport/ALPN selector, and runs the server
// until ctx is canceled or an unrecoverable error occurs. Serve owns the per-listener
// structured task group described in §5: the accept-and-serve task and the shutdown task
// are children of one errgroup, so canceling ctx tears both down together, and a
// certificate reloader (for the Reloading* modes) is a third child of the same group.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.BindAddress())
	if err != nil {
		return err
	}
	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		ln.Close()
		return errors.New("htcore: listener did not yield a TCP address")
	}

	gated := newGate(ln, s.maxConnsPerGate)

	var listener net.Listener = gated
	if s.config.Transport.Security.usesTLS() {
		s.verified = newVerifiedChainStore()
		tlsConfig, reloader, err := buildTLSConfig(&s.config.Transport, s.verified)
		if err != nil {
			ln.Close()
			return err
		}
		s.reloader = reloader
		listener = tls.NewListener(gated, tlsConfig)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		reqCtx := s.newRequestContext(r)
		Dispatch(w, r, reqCtx, s.handler, s.logger)
	})

	s.httpSrv = &http.Server{
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
		ConnContext: func(connCtx context.Context, c net.Conn) context.Context {
			// verifiedChainStore is keyed by tls.ClientHelloInfo.Conn, the raw connection
			// beneath the *tls.Conn that net/http hands over here.
			if tc, ok := c.(*tls.Conn); ok {
				c = tc.NetConn()
			}
			return context.WithValue(connCtx, connKey{}, c)
		},
	}
	if s.verified != nil {
		s.httpSrv.ConnState = func(c net.Conn, state http.ConnState) {
			if state == http.StateClosed || state == http.StateHijacked {
				if tc, ok := c.(*tls.Conn); ok {
					c = tc.NetConn()
				}
				s.verified.delete(c)
			}
		}
	}
	if s.config.Transport.Security.usesTLS() {
		http2Server := &http2.Server{
			MaxReadFrameSize:         s.config.Transport.MaxFrameSize,
			MaxConcurrentStreams:     s.config.Transport.MaxConcurrentStreams,
			MaxUploadBufferPerStream: int32(s.config.Transport.TargetWindowSize),
		}
		if err := http2.ConfigureServer(s.httpSrv, http2Server); err != nil {
			listener.Close()
			return err
		}
	}

	s.addr.Store(tcpAddr)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		err := s.httpSrv.Serve(listener)
		if err != nil && errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if s.reloader != nil {
		shutCh := make(chan struct{})
		group.Go(func() error {
			<-groupCtx.Done()
			close(shutCh)
			return nil
		})
		group.Go(func() error {
			s.reloader.run(shutCh, func(err error) {
				s.logger.Debug("htcore: certificate reload failed", slog.Any("error", err))
			})
			return nil
		})
	}

	err = group.Wait()
	s.closed.Store(true)
	return err
}

func (s *Server) newRequestContext(r *http.Request) *RequestContext {
	ctx := &RequestContext{
		ConnID:     int64(uuid.New().ID()),
		StartTime:  time.Now(),
		RemoteAddr: addrOf(r.RemoteAddr),
		Protocol:   r.Proto,
	}
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		ctx.PeerChain = r.TLS.PeerCertificates
	}
	if s.verified != nil {
		if conn, ok := r.Context().Value(connKey{}).(net.Conn); ok {
			if chain := s.verified.load(conn); chain != nil {
				ctx.PeerChain = chain
			}
		}
	}
	return ctx
}

// addrOf wraps a string remote address so RequestContext.RemoteAddr satisfies net.Addr
// without pulling in a net.Conn reference the handler could retain past its scope.
type stringAddr string

func (a stringAddr) Network() string { return "tcp" }
func (a stringAddr) String() string  { return string(a) }

func addrOf(s string) net.Addr { return stringAddr(s) }
