// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Package tracing wraps an htcore.Handler in an OpenTelemetry span. It exists to
// demonstrate the design goal the core is built around: because the terminal End is
// written synchronously inside the handler's own produce-and-conclude scope, a span
// started before calling next and ended after it returns always covers the complete
// request/response exchange, headers through trailers, with no risk of the span closing
// before streamed body chunks have actually gone out.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hexinfra/htcore/htcore"
)

// Middleware returns an htcore.Middleware that starts a span named "htcore.request"
// (or name, if non-empty) around the rest of the chain. RequestContext carries no
// context.Context of its own — it is deliberately plain, immutable per-request
// metadata — so each request starts a fresh root span from context.Background(); no
// parent span context is extracted from the request headers.
func Middleware(tracer trace.Tracer, name string) htcore.Middleware {
	if name == "" {
		name = "htcore.request"
	}
	return func(next htcore.Handler) htcore.Handler {
		return func(head htcore.RequestHead, ctx *htcore.RequestContext, body *htcore.RequestConcludingReader, sender *htcore.ResponseSender) error {
			_, span := tracer.Start(context.Background(), name,
				trace.WithAttributes(
					attribute.String("http.method", head.Method),
					attribute.String("http.path", head.Path),
					attribute.String("http.scheme", head.Scheme),
				),
			)
			defer span.End()

			err := next(head, ctx, body, sender)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return err
		}
	}
}

// Tracer is a convenience accessor for the global otel tracer provider, named for this
// module so spans are attributable in a multi-instrumented process.
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/hexinfra/htcore")
}
