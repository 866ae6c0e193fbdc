// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger: JSON production output, or the
// human-readable development encoder when debug is set. Stacktraces are off
// for every level and timestamps are RFC3339 in UTC under "ts".
func NewLogger(debug bool) (*zap.Logger, error) {
	return loggerConfig(debug).Build()
}

func loggerConfig(debug bool) zap.Config {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg
}

// NewTestLogger returns a sugared development logger for tests.
func NewTestLogger() *zap.SugaredLogger {
	return NewTestZapLogger().Sugar()
}

// NewTestZapLogger is NewTestLogger for callers that need a *zap.Logger.
func NewTestZapLogger() *zap.Logger {
	logger, err := loggerConfig(true).Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
