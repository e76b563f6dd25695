// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package htcore

import (
	"net/http"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRequestParts replays a fixed sequence of RequestPart values.
type fakeRequestParts struct {
	parts []RequestPart
	pos   int
}

func (f *fakeRequestParts) NextPart() (RequestPart, error) {
	if f.pos >= len(f.parts) {
		return nil, nil
	}
	p := f.parts[f.pos]
	f.pos++
	return p, nil
}

func TestRequestConcludingReader_StreamedChunksAndTrailers(t *testing.T) {
	trailer := http.Header{"Trailer": {"test_trailer"}}
	parts := &fakeRequestParts{parts: []RequestPart{
		RequestBodyPart{Bytes: []byte("chunk-0")},
		RequestBodyPart{Bytes: []byte("chunk-1")},
		RequestEndPart{Trailers: trailer},
	}}
	reader := newRequestConcludingReader(parts)

	var got []byte
	trailers, err := reader.ConsumeAndConclude(func(r *AsyncReader[byte]) error {
		for {
			var chunk []byte
			if err := r.Read(-1, func(c []byte) error {
				chunk = append([]byte(nil), c...)
				return nil
			}); err != nil {
				return err
			}
			if len(chunk) == 0 {
				return nil
			}
			got = append(got, chunk...)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, "chunk-0chunk-1", string(got))
	assert.Equal(t, trailer, trailers)
	assert.True(t, reader.finishedReading())
}

func TestRequestConcludingReader_EmptyBodyWithTrailers(t *testing.T) {
	trailer := http.Header{"Server-Timing": {"test"}}
	parts := &fakeRequestParts{parts: []RequestPart{RequestEndPart{Trailers: trailer}}}
	reader := newRequestConcludingReader(parts)

	trailers, err := reader.ConsumeAndConclude(func(r *AsyncReader[byte]) error {
		return r.Read(-1, func(c []byte) error { return nil })
	})
	require.NoError(t, err)
	assert.Equal(t, trailer, trailers)
}

// TestRequestBodyMachine_HeadMidBodyIsFatal exercises the fatal path (§7 taxonomy 5) by
// re-executing this test binary as a subprocess, the standard Go idiom for asserting on
// os.Exit behavior without terminating the test runner itself.
func TestRequestBodyMachine_HeadMidBodyIsFatal(t *testing.T) {
	if os.Getenv("HTCORE_CRASH_TEST") == "head_mid_body" {
		parts := &fakeRequestParts{parts: []RequestPart{
			RequestBodyPart{Bytes: []byte("x")},
			RequestHeadPart{},
		}}
		reader := newRequestConcludingReader(parts)
		_, _ = reader.ConsumeAndConclude(func(r *AsyncReader[byte]) error {
			for i := 0; i < 2; i++ {
				if err := r.Read(-1, func(c []byte) error { return nil }); err != nil {
					return err
				}
			}
			return nil
		})
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestRequestBodyMachine_HeadMidBodyIsFatal")
	cmd.Env = append(os.Environ(), "HTCORE_CRASH_TEST=head_mid_body")
	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok, "expected the subprocess to exit non-zero")
	assert.Equal(t, CodeBug, exitErr.ExitCode())
}
