/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apiresponses

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/smtp-notifier/pkg/mailerr"
)

// APIError is the body of every error response.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// RespondBadRequestWithDetails sends a 400 for malformed bodies or parameters.
func RespondBadRequestWithDetails(c *gin.Context, message, details string) {
	c.JSON(http.StatusBadRequest, APIError{
		Error:   message,
		Code:    "BAD_REQUEST",
		Details: details,
	})
}

// RespondInternalError logs err and sends a 500 that only names the operation.
func RespondInternalError(c *gin.Context, operation string, err error, log *zap.SugaredLogger) {
	if log != nil {
		log.Errorw(fmt.Sprintf("Failed to %s", operation), "error", err)
	}
	c.JSON(http.StatusInternalServerError, APIError{
		Error: fmt.Sprintf("failed to %s", operation),
		Code:  "INTERNAL_ERROR",
	})
}

func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func RespondAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// RespondUnprocessableEntity sends a 422 for well-formed but invalid input.
// An empty code defaults to UNPROCESSABLE_ENTITY.
func RespondUnprocessableEntity(c *gin.Context, message, code string) {
	if code == "" {
		code = "UNPROCESSABLE_ENTITY"
	}
	c.JSON(http.StatusUnprocessableEntity, APIError{
		Error: message,
		Code:  code,
	})
}

// RespondDispatchError maps a classified pipeline error to a status code.
// The failure reason is carried in Code.
func RespondDispatchError(c *gin.Context, err error, log *zap.SugaredLogger) {
	code := string(mailerr.ReasonOf(err))
	if errors.Is(err, mailerr.ErrInvalidMessageType) || errors.Is(err, mailerr.ErrTemplate) {
		RespondUnprocessableEntity(c, err.Error(), code)
		return
	}
	status := http.StatusInternalServerError
	if errors.Is(err, mailerr.ErrNoServerEnabled) {
		status = http.StatusConflict
	}
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	if log != nil && status == http.StatusInternalServerError {
		log.Errorw("Dispatch failed", "error", err)
	}
	c.JSON(status, APIError{
		Error: err.Error(),
		Code:  code,
	})
}
