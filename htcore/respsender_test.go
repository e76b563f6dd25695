// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package htcore

import (
	"errors"
	"net/http"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResponseParts records every ResponsePart written to it, in order.
type fakeResponseParts struct {
	parts []ResponsePart
}

func (f *fakeResponseParts) WritePart(part ResponsePart) error {
	f.parts = append(f.parts, part)
	return nil
}

func TestResponseSender_InformationalThenFinal(t *testing.T) {
	sink := &fakeResponseParts{}
	sender := newResponseSender(sink)

	require.NoError(t, sender.SendInformational(ResponseHead{StatusCode: 100}))
	require.NoError(t, sender.SendInformational(ResponseHead{StatusCode: 103}))

	writer, err := sender.Send(ResponseHead{StatusCode: 200})
	require.NoError(t, err)

	trailer := http.Header{"Cookie": {"cookie"}}
	err = writer.WriteAndConclude([]byte{1, 2}, trailer)
	require.NoError(t, err)

	require.Len(t, sink.parts, 5) // head(100), head(103), head(200), body(1,2), end
	assert.Equal(t, 100, sink.parts[0].(ResponseHeadPart).Head.StatusCode)
	assert.Equal(t, 103, sink.parts[1].(ResponseHeadPart).Head.StatusCode)
	assert.Equal(t, 200, sink.parts[2].(ResponseHeadPart).Head.StatusCode)
	end := sink.parts[4].(ResponseEndPart)
	assert.Equal(t, trailer, end.Trailers)
	assert.True(t, writer.finishedWriting())
}

func TestResponseSender_EmptyBodyWithTrailers(t *testing.T) {
	sink := &fakeResponseParts{}
	sender := newResponseSender(sink)

	writer, err := sender.Send(ResponseHead{StatusCode: 204})
	require.NoError(t, err)

	err = writer.ProduceAndConclude(func(w *AsyncWriter[byte]) (Trailers, error) {
		return Trailers{"Server-Timing": {"test"}}, nil
	})
	require.NoError(t, err)
	require.Len(t, sink.parts, 2) // Head, End -- no Body part at all
}

func TestResponseSender_ErrorDuringBodySkipsEnd(t *testing.T) {
	sink := &fakeResponseParts{}
	sender := newResponseSender(sink)

	writer, err := sender.Send(ResponseHead{StatusCode: 200})
	require.NoError(t, err)

	err = writer.ProduceAndConclude(func(w *AsyncWriter[byte]) (Trailers, error) {
		return nil, assertErr
	})
	require.ErrorIs(t, err, assertErr)
	assert.False(t, writer.finishedWriting())
	require.Len(t, sink.parts, 1) // only Head, no End
}

var assertErr = errors.New("write failed")

// TestResponseSender_SecondSendIsFatal exercises the single-consumption program error
// (§7 taxonomy 5, §8 law 3) via a subprocess re-exec, since it aborts the process.
func TestResponseSender_SecondSendIsFatal(t *testing.T) {
	if os.Getenv("HTCORE_CRASH_TEST") == "second_send" {
		sink := &fakeResponseParts{}
		sender := newResponseSender(sink)
		_, _ = sender.Send(ResponseHead{StatusCode: 200})
		_, _ = sender.Send(ResponseHead{StatusCode: 200})
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestResponseSender_SecondSendIsFatal")
	cmd.Env = append(os.Environ(), "HTCORE_CRASH_TEST=second_send")
	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok, "expected the subprocess to exit non-zero")
	assert.Equal(t, CodeBug, exitErr.ExitCode())
}

// TestResponseSender_InformationalWithNon1xxIsFatal pins §3 invariant 2.
func TestResponseSender_InformationalWithNon1xxIsFatal(t *testing.T) {
	if os.Getenv("HTCORE_CRASH_TEST") == "bad_informational" {
		sink := &fakeResponseParts{}
		sender := newResponseSender(sink)
		_ = sender.SendInformational(ResponseHead{StatusCode: 200})
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestResponseSender_InformationalWithNon1xxIsFatal")
	cmd.Env = append(os.Environ(), "HTCORE_CRASH_TEST=bad_informational")
	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok)
	assert.Equal(t, CodeBug, exitErr.ExitCode())
}
