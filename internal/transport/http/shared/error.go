package shared

import (
	"errors"
	"net/http"

	"consentry/internal/transport/http/json"
	dErrors "consentry/pkg/domain-errors"
)

// WriteError centralizes domain error translation to HTTP responses.
// Messages pass through as-is: the services already keep authorization and
// state detail out of caller-visible messages, so nothing here leaks.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]string{
			"error": wireCode(domainErr.Code),
		}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		json.WriteJSON(w, statusFor(domainErr.Code), response)
		return
	}

	json.WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": wireCode(dErrors.CodeInternal),
	})
}

// statusFor translates domain error codes to HTTP status codes.
func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput,
		dErrors.CodeInvalidPurpose, dErrors.CodeInvalidField:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeInvalidState, dErrors.CodeNotPending:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodePolicyViolation:
		return http.StatusPreconditionFailed
	case dErrors.CodeVerificationFailed:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// wireCode translates domain error codes to the stable strings on the wire.
func wireCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeInvalidPurpose:
		return "invalid_purpose"
	case dErrors.CodeInvalidField:
		return "invalid_field"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeInvalidState, dErrors.CodeNotPending:
		return "invalid_state"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodePolicyViolation:
		return "policy_violation"
	case dErrors.CodeVerificationFailed:
		return "verification_failed"
	case dErrors.CodeTimeout:
		return "timeout"
	default:
		return "internal_error"
	}
}
