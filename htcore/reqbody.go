// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Request body reader state machine: maps a RequestPart stream into the bounded byte
// reads of an AsyncReader[byte], capturing trailers for the ConcludingReader.

package htcore

import (
	"errors"
	"io"
)

// RequestPartReader is the abstract wire-parsing collaborator that yields the parts of
// one request, one at a time, in order.
type RequestPartReader interface {
	NextPart() (RequestPart, error)
}

// bodyState is the request body reader's state. The Excess(remaining) buffering the
// specification describes is inherited from AsyncReader[byte]'s own stash (component A);
// this machine only tracks the protocol-level transitions layered on top of it.
type bodyState int8

const (
	bodyReading bodyState = iota
	bodyFinished
)

// requestBodyMachine drives an AsyncReader[byte] from a RequestPart stream, enforcing:
// no second Head mid-body (fatal), and no stream close without an End (fatal).
type requestBodyMachine struct {
	parts    RequestPartReader
	state    bodyState
	trailers Trailers
}

func newRequestBodyMachine(parts RequestPartReader) *requestBodyMachine {
	return &requestBodyMachine{parts: parts}
}

// pull is the ChunkSource[byte] fed to the underlying AsyncReader.
func (m *requestBodyMachine) pull() ([]byte, error) {
	if m.state == bodyFinished {
		return nil, nil
	}
	part, err := m.parts.NextPart()
	if err != nil {
		if errors.Is(err, io.EOF) {
			BugExitln("htcore: request part stream closed without End")
		}
		return nil, err
	}
	switch p := part.(type) {
	case RequestBodyPart:
		return p.Bytes, nil
	case RequestEndPart:
		m.trailers = p.Trailers
		m.state = bodyFinished
		return nil, nil
	case RequestHeadPart:
		BugExitln("htcore: unexpected second request Head mid-body")
		return nil, nil
	default:
		BugExitln("htcore: unrecognized request part")
		return nil, nil
	}
}

// RequestConcludingReader is the single-shot handle a handler uses to read the request
// body and, on completion, obtain the trailers that arrived in the terminating End part.
type RequestConcludingReader struct {
	*ConcludingAsyncReader[Trailers]
	machine *requestBodyMachine
}

func newRequestConcludingReader(parts RequestPartReader) *RequestConcludingReader {
	machine := newRequestBodyMachine(parts)
	inner := NewAsyncReader[byte](machine.pull)
	final := func() Trailers { return machine.trailers }
	return &RequestConcludingReader{
		ConcludingAsyncReader: NewConcludingAsyncReader[Trailers](inner, final),
		machine:               machine,
	}
}

// finishedReading reports whether the End part has been observed, used by the
// dispatcher to decide how to tear a stream down after a handler error.
func (r *RequestConcludingReader) finishedReading() bool {
	return r.machine.state == bodyFinished
}
