// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package htcore

import "errors"

// SourceError wraps a failure that originated in the underlying transport (the producer
// fed to an AsyncReader, or the sink fed to an AsyncWriter), as opposed to the caller's
// own body callback. Distinguishing the two lets callers recognize their own errors.
type SourceError struct{ Err error }

func (e *SourceError) Error() string { return "htcore: source error: " + e.Err.Error() }
func (e *SourceError) Unwrap() error { return e.Err }

// BodyError wraps a failure returned by a caller-supplied callback passed to Read,
// Collect, or CollectStrict. ConsumeAndConclude and ProduceAndConclude return their
// callback's error as it is, without wrapping it.
type BodyError struct{ Err error }

func (e *BodyError) Error() string { return "htcore: callback error: " + e.Err.Error() }
func (e *BodyError) Unwrap() error { return e.Err }

// IsSourceError reports whether err (or something it wraps) is a SourceError.
func IsSourceError(err error) bool {
	var e *SourceError
	return errors.As(err, &e)
}

// IsBodyError reports whether err (or something it wraps) is a BodyError.
func IsBodyError(err error) bool {
	var e *BodyError
	return errors.As(err, &e)
}

// ErrCustomVerificationCallbackWithoutMTLS is the configuration error returned when a
// custom peer-verification callback is supplied for a transport security mode other
// than mTLS or reloading mTLS.
var ErrCustomVerificationCallbackWithoutMTLS = errors.New("htcore: customVerificationCallbackProvidedWhenNotUsingMTLS")

// ErrServerClosed is returned by Server.Addr once the server has stopped serving.
var ErrServerClosed = errors.New("htcore: serverClosed")

// ErrLimitExceeded is returned by CollectStrict when the stream holds more than its upTo
// limit. Collect itself never returns it: the pinned policy for Collect (see DESIGN.md) is
// silent truncation; CollectStrict is the opt-in stricter alternative.
var ErrLimitExceeded = errors.New("htcore: LimitExceeded")
