// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// The abstract part stream: RequestPart/ResponsePart and the request/response heads.
// These are produced and consumed by external wire-parsing collaborators (net/http and
// golang.org/x/net/http2 in this implementation); this package never parses bytes off
// the wire itself.

package htcore

import (
	"crypto/x509"
	"net"
	"net/http"
	"time"
)

// Trailers is the header-field set carried by an End part.
type Trailers = http.Header

// RequestHead is the method/scheme/authority/path/header quadruple-plus of a request.
type RequestHead struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
	Header    http.Header
}

// ResponseHead is a status code plus header fields, used for both informational and
// final responses.
type ResponseHead struct {
	StatusCode int
	Header     http.Header
}

// IsInformational reports whether this head carries a 1xx status.
func (h ResponseHead) IsInformational() bool {
	return h.StatusCode >= 100 && h.StatusCode < 200
}

// RequestPart is the tagged union produced by the wire parser: Head, Body, or End.
type RequestPart interface{ isRequestPart() }

type RequestHeadPart struct{ Head RequestHead }
type RequestBodyPart struct{ Bytes []byte }
type RequestEndPart struct{ Trailers Trailers }

func (RequestHeadPart) isRequestPart() {}
func (RequestBodyPart) isRequestPart() {}
func (RequestEndPart) isRequestPart()  {}

// ResponsePart is the tagged union emitted by the server: Head, Body, or End. At most
// one final Head is ever written, zero or more Body parts, and exactly one End.
type ResponsePart interface{ isResponsePart() }

type ResponseHeadPart struct{ Head ResponseHead }
type ResponseBodyPart struct{ Bytes []byte }
type ResponseEndPart struct{ Trailers Trailers }

func (ResponseHeadPart) isResponsePart() {}
func (ResponseBodyPart) isResponsePart() {}
func (ResponseEndPart) isResponsePart()  {}

// RequestContext is immutable per-request metadata: peer TLS chain (if any) and
// connection info. It is created at request intake and discarded after the handler
// returns; no stage of the middleware chain may retain a reference past that point.
type RequestContext struct {
	ConnID     int64
	StartTime  time.Time
	LocalAddr  net.Addr
	RemoteAddr net.Addr
	// PeerChain is the verified client certificate chain under mTLS, nil otherwise. When a
	// VerifyCallback is configured and returns a PeerVerified.Chain, that chain is used;
	// otherwise this is the raw chain crypto/tls presented.
	PeerChain []*x509.Certificate
	// Protocol is the request's protocol as net/http reports it in Request.Proto:
	// "HTTP/1.1" (or "HTTP/1.0") or "HTTP/2.0", as negotiated by the transport selector.
	Protocol string
}
