// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Response sender: validates informational vs final response distinction, single send
// of the final response head.

package htcore

// ResponseSender holds two capabilities: SendInformational, callable zero or more times
// before Send, and Send itself, callable exactly once. After Send is called, the sender
// becomes unusable: a second call, from either capability, is a program error.
type ResponseSender struct {
	machine   *responseWriterMachine
	sentFinal bool
}

func newResponseSender(parts ResponsePartWriter) *ResponseSender {
	return &ResponseSender{machine: &responseWriterMachine{parts: parts}}
}

// SendInformational sends a 1xx head with no following body. status must be 1xx; using a
// non-1xx status here, or calling this after Send, is a fatal program error.
func (s *ResponseSender) SendInformational(head ResponseHead) error {
	if s.sentFinal {
		BugExitln("htcore: sendInformational called after send")
	}
	return s.machine.writeInformational(head)
}

// Send sends the final, non-1xx response head and returns the ResponseConcludingWriter
// the caller must use to write the body and conclude with trailers. Calling Send a
// second time is a fatal program error.
func (s *ResponseSender) Send(head ResponseHead) (*ResponseConcludingWriter, error) {
	if s.sentFinal {
		BugExitln("htcore: ResponseSender consumed twice")
	}
	s.sentFinal = true
	if err := s.machine.writeHead(head); err != nil {
		return nil, err
	}
	bodyWriter := NewAsyncWriter[byte](s.machine.writeBody)
	ccw := NewConcludingAsyncWriter[Trailers](bodyWriter, s.machine.writeEnd)
	return &ResponseConcludingWriter{ConcludingAsyncWriter: ccw, machine: s.machine}, nil
}
