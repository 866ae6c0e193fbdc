// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telekom/smtp-notifier/pkg/notification"
)

// ReqLoggerKey is the context key used to store request-scoped logger in gin context.
const ReqLoggerKey = "reqLogger"

// RequestIDHeader is echoed back on every API response.
const RequestIDHeader = "X-Request-ID"

// GetReqLogger returns the request-scoped sugared logger from gin.Context if present,
// otherwise returns the fallback.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}

// RequestLogger stores a logger carrying the request ID in the gin context.
// An incoming X-Request-ID is reused, otherwise a new one is generated.
func RequestLogger(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Set(ReqLoggerKey, base.With("requestID", id, "method", c.Request.Method, "path", c.FullPath()))
		c.Next()
	}
}

// EventFields returns key/value pairs describing ev for Infow/Errorw calls.
// Title and text are left out since they may carry personal data.
func EventFields(ev notification.Event) []interface{} {
	fields := []interface{}{"type", ev.Type}
	if ev.UserID != "" {
		fields = append(fields, "userid", ev.UserID)
	}
	if ev.Channel != "" {
		fields = append(fields, "channel", ev.Channel)
	}
	if !ev.Image.Empty() {
		fields = append(fields, "hasImage", true)
	}
	return fields
}
