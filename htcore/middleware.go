// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Middleware chain: type-transforming composition ending in the user handler.

package htcore

// Handler is the terminal stage of a chain: it owns the request head, the immutable
// per-request context, the single-shot body reader, and the single-shot response
// sender for the duration of the call. Ownership of all four is exclusive to this
// invocation; nothing may retain a reference once it returns.
type Handler func(head RequestHead, ctx *RequestContext, body *RequestConcludingReader, sender *ResponseSender) error

// Middleware wraps a Handler with another Handler. A stage may transform the handles it
// is given — for example wrapping the reader with per-chunk logging — by constructing a
// new *RequestConcludingReader/*ResponseSender and calling next with it, but it must call
// next exactly once and must not retain the wrapped handles after next returns. Because
// the handles are single-owner, there is no way to duplicate ownership by accident: a
// stage that tries to use its own handles again after next returns will hit the
// single-consumption fatal path.
type Middleware func(next Handler) Handler

// Chain composes middlewares outer-to-inner around a terminal handler: mws[0] runs
// first and decides whether/how to invoke the rest of the chain.
func Chain(mws ...Middleware) Middleware {
	return func(final Handler) Handler {
		h := final
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

// Builder accumulates a middleware chain declaratively, supporting conditional and
// optional stages, then builds the composed Handler around a terminal handler.
type Builder struct {
	mws []Middleware
}

func NewBuilder() *Builder { return &Builder{} }

// Use appends a stage unconditionally.
func (b *Builder) Use(mw Middleware) *Builder {
	b.mws = append(b.mws, mw)
	return b
}

// UseIf appends a stage only when cond is true, letting callers assemble a chain from
// optional pieces (a tracing stage only when a tracer is configured, and so on).
func (b *Builder) UseIf(cond bool, mw Middleware) *Builder {
	if cond {
		b.mws = append(b.mws, mw)
	}
	return b
}

// Build returns the composed Handler, with final as the terminal (user) stage.
func (b *Builder) Build(final Handler) Handler {
	return Chain(b.mws...)(final)
}
