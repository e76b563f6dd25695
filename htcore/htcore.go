// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Package htcore is the core of a low-level HTTP server library that reconciles
// full bi-directional HTTP streaming with scope-bounded request handling. Wire
// parsing and framing for HTTP/1.1 and HTTP/2, and TLS handshake mechanics, are
// treated as external collaborators (net/http and golang.org/x/net/http2); this
// package supplies the streaming state machines, the dispatcher, the middleware
// chain, and the transport/ALPN selector built on top of them.
package htcore

import (
	"fmt"
	"os"
	"sync/atomic"
)

const Version = "0.1.0"

var (
	_develMode  atomic.Bool
	_debugLevel atomic.Int32
)

func DevelMode() bool   { return _develMode.Load() }
func DebugLevel() int32 { return _debugLevel.Load() }

func SetDevelMode(devel bool)   { _develMode.Store(devel) }
func SetDebugLevel(level int32) { _debugLevel.Store(level) }

const ( // process exit codes
	CodeBug = 20 // program error: unreachable protocol state, bug in this package or its caller
	CodeUse = 21 // configuration error: bad input from the operator
	CodeEnv = 22 // environment error: OS/network resource unavailable
)

// BugExitln aborts the process for a "program error" per the error taxonomy: unreachable
// protocol states such as consuming a single-shot handle twice, receiving a Head mid-body,
// or a part stream ending without an End. These indicate bugs, not runtime conditions to
// recover from, so the contract is that they are never expected in a correct wire codec.
func BugExitln(v ...any)          { _exitln(CodeBug, "[BUG] ", v...) }
func BugExitf(f string, v ...any) { _exitf(CodeBug, "[BUG] ", f, v...) }

func UseExitln(v ...any)          { _exitln(CodeUse, "[USE] ", v...) }
func UseExitf(f string, v ...any) { _exitf(CodeUse, "[USE] ", f, v...) }

func EnvExitln(v ...any)          { _exitln(CodeEnv, "[ENV] ", v...) }
func EnvExitf(f string, v ...any) { _exitf(CodeEnv, "[ENV] ", f, v...) }

func _exitln(exitCode int, prefix string, v ...any) {
	fmt.Fprint(os.Stderr, prefix)
	fmt.Fprintln(os.Stderr, v...)
	os.Exit(exitCode)
}
func _exitf(exitCode int, prefix, f string, v ...any) {
	fmt.Fprintf(os.Stderr, prefix+f, v...)
	os.Exit(exitCode)
}
