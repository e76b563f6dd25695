// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package htcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingMiddleware(trail *[]string, name string) Middleware {
	return func(next Handler) Handler {
		return func(head RequestHead, ctx *RequestContext, body *RequestConcludingReader, sender *ResponseSender) error {
			*trail = append(*trail, name+":before")
			err := next(head, ctx, body, sender)
			*trail = append(*trail, name+":after")
			return err
		}
	}
}

func TestChain_RunsOuterToInner(t *testing.T) {
	var trail []string
	terminal := Handler(func(head RequestHead, ctx *RequestContext, body *RequestConcludingReader, sender *ResponseSender) error {
		trail = append(trail, "handler")
		return nil
	})

	chained := Chain(recordingMiddleware(&trail, "outer"), recordingMiddleware(&trail, "inner"))(terminal)
	require.NoError(t, chained(RequestHead{}, nil, nil, nil))

	assert.Equal(t, []string{"outer:before", "inner:before", "handler", "inner:after", "outer:after"}, trail)
}

func TestBuilder_UseIf(t *testing.T) {
	var trail []string
	terminal := Handler(func(head RequestHead, ctx *RequestContext, body *RequestConcludingReader, sender *ResponseSender) error {
		trail = append(trail, "handler")
		return nil
	})

	handler := NewBuilder().
		Use(recordingMiddleware(&trail, "always")).
		UseIf(false, recordingMiddleware(&trail, "skipped")).
		UseIf(true, recordingMiddleware(&trail, "included")).
		Build(terminal)

	require.NoError(t, handler(RequestHead{}, nil, nil, nil))
	assert.Equal(t, []string{"always:before", "included:before", "handler", "included:after", "always:after"}, trail)
}

func TestMiddleware_PropagatesHandlerError(t *testing.T) {
	var trail []string
	boom := assertErr
	terminal := Handler(func(head RequestHead, ctx *RequestContext, body *RequestConcludingReader, sender *ResponseSender) error {
		return boom
	})

	chained := Chain(recordingMiddleware(&trail, "outer"))(terminal)
	err := chained(RequestHead{}, nil, nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"outer:before", "outer:after"}, trail)
}
