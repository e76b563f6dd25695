// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package htcore

import (
	"log/slog"
	"os"
)

// LogConfig configures the ambient structured logger. Target is "stdout", "stderr", or
// a file path; Level is one of "debug", "info", "warn", "error"; JSON selects
// slog.JSONHandler over slog.TextHandler.
type LogConfig struct {
	Target string
	Level  string
	JSON   bool
}

// NewLogger builds a *slog.Logger from a LogConfig. Every wire/transport error (§7,
// taxonomy 2) is logged at Debug; handler errors (taxonomy 4) at Debug with the
// reader/writer state attached; configuration errors (taxonomy 1) are returned to the
// caller of New, not logged here.
func NewLogger(cfg LogConfig) (*slog.Logger, error) {
	var out = os.Stdout
	switch cfg.Target {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		out = f
	}

	opts := &slog.HandlerOptions{Level: levelOf(cfg.Level)}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), nil
}

func levelOf(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
