// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Transport / ALPN selector: plaintext / TLS / mTLS; HTTP/1.1 vs HTTP/2 negotiation is
// delegated entirely to net/http and golang.org/x/net/http2, which dispatch on the
// negotiated ALPN protocol the same way this package's *tls.Config.NextProtos does.

package htcore

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// SecurityMode selects the transport-security posture of a Server.
type SecurityMode int8

const (
	SecurityPlaintext SecurityMode = iota
	SecurityTLS
	SecurityReloadingTLS
	SecurityMTLS
	SecurityReloadingMTLS
)

func (m SecurityMode) usesTLS() bool { return m != SecurityPlaintext }
func (m SecurityMode) usesMTLS() bool {
	return m == SecurityMTLS || m == SecurityReloadingMTLS
}
func (m SecurityMode) reloads() bool {
	return m == SecurityReloadingTLS || m == SecurityReloadingMTLS
}

// VerificationMode controls how a client certificate's chain is validated under mTLS.
type VerificationMode int8

const (
	VerificationRequired         VerificationMode = iota // require and verify against TrustRoots
	VerificationOptional                                 // verify if presented, allow if absent
	VerificationNoHostnameCheck                          // verify chain but skip hostname/SAN matching
)

// PeerVerified is returned by a custom VerifyCallback on success.
type PeerVerified struct{ Chain []*x509.Certificate }

// VerificationFailed is returned by a custom VerifyCallback on failure.
type VerificationFailed struct{ Reason string }

// VerifyCallback receives the peer's certificate chain under mTLS and decides whether it
// is acceptable, independent of (or in addition to) TrustRoots-based validation.
type VerifyCallback func(chain []*x509.Certificate) (*PeerVerified, *VerificationFailed)

// TransportConfig is component H's configuration: bind target is held separately by
// Config (component I); this covers security mode, TLS material, mTLS verification, and
// the HTTP/2 tunables that the ALPN selector applies once a connection negotiates h2.
type TransportConfig struct {
	Security SecurityMode

	// Static TLS material. Either the PEM strings or the paths must be set; paths are
	// required (and re-read periodically) for the Reloading* modes.
	CertificateChainPEM  []byte
	PrivateKeyPEM        []byte
	CertificateChainPath string
	PrivateKeyPath       string
	RefreshInterval      time.Duration // default 30s

	// mTLS extras.
	TrustRoots       *x509.CertPool // system roots if nil
	VerificationMode VerificationMode
	VerifyPeer       VerifyCallback

	MaxFrameSize         uint32 // clamped to [2^14, 2^24-1]; wired to http2.Server.MaxReadFrameSize
	TargetWindowSize     uint32 // clamped to [0, 2^31-1]; wired to http2.Server.MaxUploadBufferPerStream
	MaxConcurrentStreams uint32 // 0 means unset (collaborator default); wired to http2.Server.MaxConcurrentStreams
}

// clamp applies the §3 invariant 8 bounds in place.
func (c *TransportConfig) clamp() {
	const minFrame, maxFrame = 1 << 14, 1<<24 - 1
	if c.MaxFrameSize < minFrame {
		c.MaxFrameSize = minFrame
	} else if c.MaxFrameSize > maxFrame {
		c.MaxFrameSize = maxFrame
	}
	const maxWindow = 1<<31 - 1
	if c.TargetWindowSize > maxWindow {
		c.TargetWindowSize = maxWindow
	}
}

// Validate enforces the configuration-error taxonomy entry for this component: a custom
// verification callback outside mTLS modes.
func (c *TransportConfig) Validate() error {
	if c.VerifyPeer != nil && !c.Security.usesMTLS() {
		return ErrCustomVerificationCallbackWithoutMTLS
	}
	return nil
}

// certReloader periodically re-reads a certificate/key pair from disk, grounding the
// spec's "certificate reloader collaborator" as a small internal one rather than an
// external interface, since the spec leaves its shape unspecified.
type certReloader struct {
	certPath, keyPath string
	interval          time.Duration
	current           atomic.Pointer[tls.Certificate]
}

func newCertReloader(certPath, keyPath string, interval time.Duration) (*certReloader, error) {
	r := &certReloader{certPath: certPath, keyPath: keyPath, interval: interval}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *certReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(r.certPath, r.keyPath)
	if err != nil {
		return err
	}
	r.current.Store(&cert)
	return nil
}

func (r *certReloader) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.current.Load(), nil
}

// run refreshes the certificate on interval until shutCh is closed. Reload failures are
// wire/transport-class (taxonomy 2): the stale certificate keeps serving.
func (r *certReloader) run(shutCh <-chan struct{}, onReloadError func(error)) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-shutCh:
			return
		case <-ticker.C:
			if err := r.reload(); err != nil && onReloadError != nil {
				onReloadError(err)
			}
		}
	}
}

// verifiedChainStore correlates a VerifyCallback's returned PeerVerified.Chain, captured
// at handshake time, with the *http.Request that is dispatched on that connection later.
// crypto/tls gives VerifyPeerCertificate no connection argument, so the correlation runs
// through tls.ClientHelloInfo.Conn, the raw connection beneath the *tls.Conn that net/http
// later hands to http.Server.ConnContext; Server unwraps that *tls.Conn with NetConn before
// using it as a key.
type verifiedChainStore struct {
	mu     sync.Mutex
	chains map[net.Conn][]*x509.Certificate
}

func newVerifiedChainStore() *verifiedChainStore {
	return &verifiedChainStore{chains: make(map[net.Conn][]*x509.Certificate)}
}

func (s *verifiedChainStore) store(conn net.Conn, chain []*x509.Certificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[conn] = chain
}

func (s *verifiedChainStore) load(conn net.Conn) []*x509.Certificate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chains[conn]
}

func (s *verifiedChainStore) delete(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chains, conn)
}

// wireVerifiedChainCapture installs GetConfigForClient so that build's onVerified callback,
// invoked with the specific chain a VerifyCallback returns, is recorded against the
// connection performing this handshake rather than discarded once VerifyPeerCertificate
// returns.
func wireVerifiedChainCapture(tlsConfig *tls.Config, store *verifiedChainStore, build func(onVerified func([]*x509.Certificate)) func([][]byte, [][]*x509.Certificate) error) {
	base := tlsConfig.Clone()
	tlsConfig.GetConfigForClient = func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
		connCfg := base.Clone()
		conn := hello.Conn
		connCfg.VerifyPeerCertificate = build(func(chain []*x509.Certificate) {
			if store != nil && conn != nil {
				store.store(conn, chain)
			}
		})
		return connCfg, nil
	}
}

// buildTLSConfig turns a validated TransportConfig into a *tls.Config offering ALPN
// [h2, http/1.1], plus an optional certReloader for the Reloading* modes. Once wrapped
// around a net.Listener via tls.NewListener, negotiation itself — and the resulting
// dispatch to an H1 pipeline or the H2 multiplexer — is handled by net/http and
// golang.org/x/net/http2, exactly as ConnectionState().NegotiatedProtocol steered the
// choice in the teacher's own httpxGate.serveTLS. verified receives the chain a
// VerifyCallback returns, keyed by connection, for Server.newRequestContext to consult; it
// may be nil when no caller cares to observe verified chains.
func buildTLSConfig(cfg *TransportConfig, verified *verifiedChainStore) (*tls.Config, *certReloader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	cfg.clamp()

	tlsConfig := &tls.Config{
		NextProtos: []string{"h2", "http/1.1"},
		MinVersion: tls.VersionTLS12,
	}

	var reloader *certReloader
	if cfg.Security.reloads() {
		r, err := newCertReloader(cfg.CertificateChainPath, cfg.PrivateKeyPath, refreshOrDefault(cfg.RefreshInterval))
		if err != nil {
			return nil, nil, err
		}
		tlsConfig.GetCertificate = r.getCertificate
		reloader = r
	} else if cfg.CertificateChainPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertificateChainPath, cfg.PrivateKeyPath)
		if err != nil {
			return nil, nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	} else {
		cert, err := tls.X509KeyPair(cfg.CertificateChainPEM, cfg.PrivateKeyPEM)
		if err != nil {
			return nil, nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.Security.usesMTLS() {
		if cfg.TrustRoots != nil {
			tlsConfig.ClientCAs = cfg.TrustRoots
		}
		switch cfg.VerificationMode {
		case VerificationOptional:
			tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
			if cfg.VerifyPeer != nil {
				wireVerifiedChainCapture(tlsConfig, verified, func(onVerified func([]*x509.Certificate)) func([][]byte, [][]*x509.Certificate) error {
					return verifyCallbackAdapter(cfg.VerifyPeer, onVerified)
				})
			}
		case VerificationNoHostnameCheck:
			// crypto/tls never matches a hostname/SAN against a client certificate to
			// begin with (DNSName is only set on the client's side of a handshake, when
			// verifying the server), so there is no automatic hostname check to disable
			// here. What this mode gives up instead is Go's automatic ClientCAs chain
			// verification: it sets RequireAnyClientCert and performs the chain
			// verification itself below, explicitly leaving x509.VerifyOptions.DNSName
			// empty, so the "skip hostname/SAN matching" semantics are represented in
			// code rather than merely being an accident of the default path.
			tlsConfig.ClientAuth = tls.RequireAnyClientCert
			if cfg.VerifyPeer != nil {
				wireVerifiedChainCapture(tlsConfig, verified, func(onVerified func([]*x509.Certificate)) func([][]byte, [][]*x509.Certificate) error {
					return chainVerifierWithoutHostname(cfg.TrustRoots, cfg.VerifyPeer, onVerified)
				})
			} else {
				tlsConfig.VerifyPeerCertificate = chainVerifierWithoutHostname(cfg.TrustRoots, nil, nil)
			}
		default: // VerificationRequired
			tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
			if cfg.VerifyPeer != nil {
				wireVerifiedChainCapture(tlsConfig, verified, func(onVerified func([]*x509.Certificate)) func([][]byte, [][]*x509.Certificate) error {
					return verifyCallbackAdapter(cfg.VerifyPeer, onVerified)
				})
			}
		}
	}

	return tlsConfig, reloader, nil
}

// verifyCallbackAdapter wraps a VerifyCallback as a crypto/tls VerifyPeerCertificate
// hook, run after crypto/tls's own automatic chain verification. When extra returns a
// PeerVerified with a non-nil Chain, onVerified (if given) is called with it, so the
// caller-supplied chain — which may differ from the raw presented chain — is not lost.
func verifyCallbackAdapter(extra VerifyCallback, onVerified func([]*x509.Certificate)) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return nil
		}
		chain, err := parseChain(rawCerts)
		if err != nil {
			return err
		}
		verified, failed := extra(chain)
		if failed != nil {
			return &verificationError{reason: failed.Reason}
		}
		if onVerified != nil && verified != nil && verified.Chain != nil {
			onVerified(verified.Chain)
		}
		return nil
	}
}

// chainVerifierWithoutHostname performs the chain verification crypto/tls would
// otherwise do automatically under RequireAndVerifyClientCert, against roots, with no
// DNSName set, then applies extra if given. See verifyCallbackAdapter for onVerified.
func chainVerifierWithoutHostname(roots *x509.CertPool, extra VerifyCallback, onVerified func([]*x509.Certificate)) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("htcore: no client certificate presented")
		}
		chain, err := parseChain(rawCerts)
		if err != nil {
			return err
		}
		intermediates := x509.NewCertPool()
		for _, cert := range chain[1:] {
			intermediates.AddCert(cert)
		}
		opts := x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		}
		if _, err := chain[0].Verify(opts); err != nil {
			return err
		}
		if extra != nil {
			verified, failed := extra(chain)
			if failed != nil {
				return &verificationError{reason: failed.Reason}
			}
			if onVerified != nil && verified != nil && verified.Chain != nil {
				onVerified(verified.Chain)
			}
		}
		return nil
	}
}

func parseChain(rawCerts [][]byte) ([]*x509.Certificate, error) {
	chain := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return nil, err
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

func refreshOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

type verificationError struct{ reason string }

func (e *verificationError) Error() string { return "htcore: peer verification failed: " + e.reason }
