// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Per-connection dispatcher: bridges one accepted HTTP/1.1 connection or HTTP/2
// sub-stream (both delegated to net/http and golang.org/x/net/http2) into the core's
// per-request pipeline. net/http already gives us one goroutine per H1 connection and
// one per H2 stream, each a child of the http.Server's own accept loop, which is the
// external collaborator's version of the per-listener structured task group in §5.

package htcore

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// httpRequestParts adapts an *http.Request into a RequestPartReader. The trailer set is
// only meaningful to net/http once the body has been fully drained, so it is read at the
// moment body.Read reports io.EOF, matching the wire's own End-after-Body ordering.
type httpRequestParts struct {
	head      RequestHead
	body      io.ReadCloser
	trailer   *http.Header // points at the request's Trailer field, which net/http fills at EOF
	headTaken bool
	bodyDone  bool
}

func (p *httpRequestParts) NextPart() (RequestPart, error) {
	if !p.headTaken {
		p.headTaken = true
		return RequestHeadPart{Head: p.head}, nil
	}
	if p.bodyDone {
		return RequestEndPart{Trailers: *p.trailer}, nil
	}
	buf := make([]byte, 32*1024)
	for {
		n, err := p.body.Read(buf)
		if n > 0 {
			return RequestBodyPart{Bytes: buf[:n]}, nil
		}
		if errors.Is(err, io.EOF) {
			p.bodyDone = true
			return RequestEndPart{Trailers: *p.trailer}, nil
		}
		if err != nil {
			return nil, err
		}
		// n == 0, err == nil: io.Reader permits a transient no-progress read without
		// EOF; retry instead of treating it as end of body.
	}
}

// httpResponseParts adapts an http.ResponseWriter into a ResponsePartWriter. Trailers
// reach net/http through the http.TrailerPrefix convention in the ResponseEndPart case,
// which needs no pre-declaration; a handler that names its trailers in advance via the
// "Trailer" response header additionally gets them pre-registered through declareTrailers.
type httpResponseParts struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (p *httpResponseParts) WritePart(part ResponsePart) error {
	switch v := part.(type) {
	case ResponseHeadPart:
		header := p.w.Header()
		for k, vv := range v.Head.Header {
			if k == "Trailer" {
				continue
			}
			header[k] = vv
		}
		if names := v.Head.Header.Values("Trailer"); len(names) > 0 {
			declareTrailers(p.w, names)
		}
		p.w.WriteHeader(v.Head.StatusCode)
		return nil
	case ResponseBodyPart:
		if len(v.Bytes) == 0 {
			return nil
		}
		if _, err := p.w.Write(v.Bytes); err != nil {
			return err
		}
		if p.flusher != nil {
			p.flusher.Flush()
		}
		return nil
	case ResponseEndPart:
		trailer := p.w.Header()
		for k, vv := range v.Trailers {
			for _, val := range vv {
				trailer.Add(http.TrailerPrefix+k, val)
			}
		}
		return nil
	default:
		BugExitln("htcore: unrecognized response part")
		return nil
	}
}

// declareTrailers pre-registers, via the standard "Trailer" response header, the trailer
// field names a handler set on ResponseHead.Header before WriteHeader. Handlers may still
// rely solely on the http.TrailerPrefix convention used in the ResponseEndPart case above,
// which needs no pre-declaration; this covers the handlers that name their trailers up
// front instead.
func declareTrailers(w http.ResponseWriter, names []string) {
	header := w.Header()
	for _, name := range names {
		header.Add("Trailer", name)
	}
}

func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// Dispatch runs one request through handler, bridging it to w/r. It implements §4.G:
// on a normal handler return the response part stream must already be complete (the
// handler's own ProduceAndConclude scope guarantees this); on a handler error, Dispatch
// logs the reader/writer state and aborts the underlying connection or stream so a
// partial response is never mistaken for a complete one.
//
// Resetting only the failed H2 stream (rather than the whole connection) and closing an
// H1 connection outright are both net/http behaviors triggered by panicking with
// http.ErrAbortHandler: the H1 server closes the connection without logging a stack
// trace, and the HTTP/2 server (golang.org/x/net/http2) recognizes the same sentinel and
// sends RST_STREAM for just that stream. That is the closest match this collaborator
// offers to the spec's NO_ERROR/INTERNAL_ERROR split (see DESIGN.md).
func Dispatch(w http.ResponseWriter, r *http.Request, ctx *RequestContext, handler Handler, logger *slog.Logger) {
	head := RequestHead{
		Method:    r.Method,
		Scheme:    schemeOf(r),
		Authority: r.Host,
		Path:      r.URL.RequestURI(),
		Header:    r.Header,
	}
	// The head has already been taken off the part stream here (net/http parsed it into
	// r); the body reader only ever sees the Body and End parts that follow it.
	reqParts := &httpRequestParts{head: head, body: r.Body, trailer: &r.Trailer, headTaken: true}
	respParts := &httpResponseParts{w: w}
	if f, ok := w.(http.Flusher); ok {
		respParts.flusher = f
	}

	reader := newRequestConcludingReader(reqParts)
	sender := newResponseSender(respParts)

	err := handler(head, ctx, reader, sender)
	if err == nil {
		return
	}

	finishedReading := reader.finishedReading()
	finishedWriting := sender.machine.state == writerEnded
	logger.Debug("htcore: handler returned error",
		slog.String("path", head.Path),
		slog.Any("error", err),
		slog.Bool("finishedReading", finishedReading),
		slog.Bool("finishedWriting", finishedWriting),
	)
	panic(http.ErrAbortHandler)
}
