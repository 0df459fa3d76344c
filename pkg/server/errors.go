// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package server

import (
	"errors"
	"net/http"

	"github.com/aws/smithy-go"

	"github.com/teradata-labs/heddle/pkg/anthropic"
)

// classify maps an error to the HTTP status and Anthropic error type.
func classify(err error) (int, string) {
	var verr *anthropic.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, anthropic.ErrInvalidRequest
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
			return http.StatusTooManyRequests, anthropic.ErrRateLimit
		case "AccessDeniedException":
			return http.StatusForbidden, anthropic.ErrPermission
		case "UnauthorizedException", "UnrecognizedClientException":
			return http.StatusUnauthorized, anthropic.ErrAuthentication
		case "ResourceNotFoundException":
			return http.StatusNotFound, anthropic.ErrNotFound
		case "ServiceUnavailableException", "ModelNotReadyException", "ModelErrorException":
			return http.StatusServiceUnavailable, anthropic.ErrAPI
		case "ValidationException":
			return http.StatusBadRequest, anthropic.ErrInvalidRequest
		}
	}

	return http.StatusInternalServerError, anthropic.ErrAPI
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, anthropic.NewErrorResponse(errType, message))
}

func writeClassifiedError(w http.ResponseWriter, err error) {
	status, errType := classify(err)
	writeError(w, status, errType, err.Error())
}
