// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Response writer state machine: orders head / body chunks / trailers, and enforces an
// exactly-once terminal End.

package htcore

// ResponsePartWriter is the abstract wire-parsing collaborator that accepts the parts of
// one response, one at a time, in order.
type ResponsePartWriter interface {
	WritePart(part ResponsePart) error
}

// writerState is NotStarted -> HeadSent -> Ending -> Ended. Heads written through the
// sender advance NotStarted -> HeadSent; body writes are valid only in HeadSent; writing
// the terminating End advances Ending -> Ended. Any write after Ended is a program error.
type writerState int8

const (
	writerNotStarted writerState = iota
	writerHeadSent
	writerEnding
	writerEnded
)

// responseWriterMachine enforces the response part ordering. sendInformational writes
// bypass state transitions entirely: 1xx heads may be written any number of times before
// the final head, and never advance NotStarted itself.
type responseWriterMachine struct {
	parts ResponsePartWriter
	state writerState
}

func (m *responseWriterMachine) writeInformational(head ResponseHead) error {
	if !head.IsInformational() {
		BugExitln("htcore: sendInformational requires a 1xx status")
	}
	if m.state != writerNotStarted {
		BugExitln("htcore: sendInformational called after the final head was sent")
	}
	return m.parts.WritePart(ResponseHeadPart{Head: head})
}

func (m *responseWriterMachine) writeHead(head ResponseHead) error {
	if head.IsInformational() {
		BugExitln("htcore: final response head must not carry a 1xx status")
	}
	if m.state != writerNotStarted {
		BugExitln("htcore: final response head written twice")
	}
	if err := m.parts.WritePart(ResponseHeadPart{Head: head}); err != nil {
		return err
	}
	m.state = writerHeadSent
	return nil
}

func (m *responseWriterMachine) writeBody(chunk []byte) error {
	if m.state != writerHeadSent {
		BugExitln("htcore: response body written outside the HeadSent state")
	}
	if len(chunk) == 0 {
		return nil
	}
	return m.parts.WritePart(ResponseBodyPart{Bytes: chunk})
}

// writeEnd is the ConcludingAsyncWriter's conclude callback: it always fires exactly
// once, on normal return of the handler's produce scope, per §4.D.
func (m *responseWriterMachine) writeEnd(trailers Trailers) error {
	if m.state != writerHeadSent {
		BugExitln("htcore: End written outside the HeadSent state")
	}
	m.state = writerEnding
	err := m.parts.WritePart(ResponseEndPart{Trailers: trailers})
	m.state = writerEnded
	return err
}

// ResponseBodyWriter is the single-owner sink for response body bytes, wrapped inside a
// ResponseConcludingWriter and never exposed on its own.
type ResponseBodyWriter = AsyncWriter[byte]

// ResponseConcludingWriter is the single-shot handle a handler uses to write response
// body chunks and, on scope exit, the terminating End(trailers) part.
type ResponseConcludingWriter struct {
	*ConcludingAsyncWriter[Trailers]
	machine *responseWriterMachine
}

// finishedWriting reports whether the End part has been fully written, used by the
// dispatcher to decide how to tear a stream down after a handler error.
func (w *ResponseConcludingWriter) finishedWriting() bool {
	return w.machine.state == writerEnded
}
