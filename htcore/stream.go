// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// AsyncReader and AsyncWriter: minimal streaming primitives, independent of HTTP.

package htcore

// ChunkSource pulls the next available chunk of elements from an underlying transport.
// A nil error with a zero-length chunk means end-of-stream. It suspends only where the
// underlying transport suspends and carries no buffering of its own.
type ChunkSource[E any] func() ([]E, error)

// ChunkSink appends one chunk of elements to an underlying transport.
type ChunkSink[E any] func(chunk []E) error

// AsyncReader reads one chunk at a time with an optional per-call element limit. If the
// producer offers more than the caller's limit, the excess is stashed in place and handed
// out on the next call before pulling from the source again. AsyncReader is single-owner
// and single-threaded cooperative: it is not safe for concurrent use.
type AsyncReader[E any] struct {
	source ChunkSource[E]
	stash  []E
	ended  bool
}

// NewAsyncReader wraps a ChunkSource in an AsyncReader.
func NewAsyncReader[E any](source ChunkSource[E]) *AsyncReader[E] {
	return &AsyncReader[E]{source: source}
}

// next pulls (from the stash first, then the source) up to maximumCount elements.
// maximumCount < 0 means unlimited. atEnd is true once end-of-stream has been observed;
// after that, next keeps returning (nil, true, nil) without touching the source again.
func (r *AsyncReader[E]) next(maximumCount int) (chunk []E, atEnd bool, err error) {
	if len(r.stash) == 0 {
		if r.ended {
			return nil, true, nil
		}
		pulled, err := r.source()
		if err != nil {
			return nil, false, err
		}
		if len(pulled) == 0 {
			r.ended = true
			return nil, true, nil
		}
		r.stash = pulled
	}
	if maximumCount < 0 || len(r.stash) <= maximumCount {
		out := r.stash
		r.stash = nil
		return out, false, nil
	}
	out := r.stash[:maximumCount]
	r.stash = r.stash[maximumCount:]
	return out, false, nil
}

// Read delivers a borrowed view of up to maximumCount elements to body; a zero-length
// view signals end-of-stream. maximumCount < 0 means no limit. Errors from the source
// and errors returned by body are distinguishable: the former is wrapped in a
// SourceError, the latter in a BodyError.
func (r *AsyncReader[E]) Read(maximumCount int, body func(chunk []E) error) error {
	chunk, _, err := r.next(maximumCount)
	if err != nil {
		return &SourceError{Err: err}
	}
	if err := body(chunk); err != nil {
		return &BodyError{Err: err}
	}
	return nil
}

// Collect accumulates chunks until end-of-stream and delivers the result to body. If the
// accumulated size would exceed upTo, only the first upTo elements are kept; the rest of
// the stream is still drained so the underlying source reaches a clean end-of-stream, but
// the excess is discarded without error (the truncate policy; see DESIGN.md).
func (r *AsyncReader[E]) Collect(upTo int, body func(chunk []E) error) error {
	acc := make([]E, 0, upTo)
	for {
		chunk, atEnd, err := r.next(-1)
		if err != nil {
			return &SourceError{Err: err}
		}
		if atEnd {
			break
		}
		if room := upTo - len(acc); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			acc = append(acc, chunk...)
		}
	}
	if err := body(acc); err != nil {
		return &BodyError{Err: err}
	}
	return nil
}

// CollectStrict behaves like Collect but rejects a stream that holds more than upTo
// elements instead of truncating it: it returns ErrLimitExceeded without calling body,
// after still draining the remainder of the stream so the source reaches a clean end.
func (r *AsyncReader[E]) CollectStrict(upTo int, body func(chunk []E) error) error {
	acc := make([]E, 0, upTo)
	exceeded := false
	for {
		chunk, atEnd, err := r.next(-1)
		if err != nil {
			return &SourceError{Err: err}
		}
		if atEnd {
			break
		}
		if !exceeded {
			if len(acc)+len(chunk) > upTo {
				exceeded = true
			} else {
				acc = append(acc, chunk...)
			}
		}
	}
	if exceeded {
		return ErrLimitExceeded
	}
	if err := body(acc); err != nil {
		return &BodyError{Err: err}
	}
	return nil
}

// AsyncWriter appends one chunk at a time to a sink.
type AsyncWriter[E any] struct {
	sink ChunkSink[E]
}

// NewAsyncWriter wraps a ChunkSink in an AsyncWriter.
func NewAsyncWriter[E any](sink ChunkSink[E]) *AsyncWriter[E] {
	return &AsyncWriter[E]{sink: sink}
}

// Write appends one chunk to the sink.
func (w *AsyncWriter[E]) Write(element []E) error {
	if len(element) == 0 {
		return nil
	}
	return w.sink(element)
}
