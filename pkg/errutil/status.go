package errutil

import "net/http"

// CoreStatus is the transport-neutral classification of an error.
type CoreStatus string

const (
	StatusBadRequest           CoreStatus = "BAD_REQUEST"
	StatusValidationFailed     CoreStatus = "VALIDATION_FAILED"
	StatusUnauthorized         CoreStatus = "UNAUTHORIZED"
	StatusForbidden            CoreStatus = "FORBIDDEN"
	StatusNotFound             CoreStatus = "NOT_FOUND"
	StatusConflict             CoreStatus = "CONFLICT"
	StatusUnprocessableEntity  CoreStatus = "UNPROCESSABLE_ENTITY"
	StatusUnsupportedMediaType CoreStatus = "UNSUPPORTED_MEDIA_TYPE"
	StatusTooManyRequests      CoreStatus = "TOO_MANY_REQUESTS"
	StatusClientClosedRequest  CoreStatus = "CLIENT_CLOSED_REQUEST"
	StatusAborted              CoreStatus = "ABORTED"
	StatusInternal             CoreStatus = "INTERNAL"
	StatusNotImplemented       CoreStatus = "NOT_IMPLEMENTED"
	StatusBadGateway           CoreStatus = "BAD_GATEWAY"
	StatusServiceUnavailable   CoreStatus = "SERVICE_UNAVAILABLE"
	StatusTimeout              CoreStatus = "TIMEOUT"
	StatusGatewayTimeout       CoreStatus = "GATEWAY_TIMEOUT"
	StatusUnknown              CoreStatus = "UNKNOWN"
)

// HTTPStatus converts the CoreStatus to an HTTP status code.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict, StatusAborted:
		return http.StatusConflict
	case StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case StatusUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusClientClosedRequest:
		return 499
	case StatusNotImplemented:
		return http.StatusNotImplemented
	case StatusBadGateway:
		return http.StatusBadGateway
	case StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	case StatusTimeout, StatusGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Reason is the stable, machine-readable cause attached to a BaseError.
type Reason string

const (
	ReasonForbiddenTrigger  Reason = "FORBIDDEN_TRIGGER"
	ReasonInvalidTrigger    Reason = "INVALID_TRIGGER"
	ReasonCampaignNotFound  Reason = "CAMPAIGN_NOT_FOUND"
	ReasonInvalidStatus     Reason = "INVALID_STATUS"
	ReasonFourEyes          Reason = "FOUR_EYES_VIOLATION"
	ReasonReasonTooShort    Reason = "REASON_TOO_SHORT"
	ReasonInsufficientFunds Reason = "INSUFFICIENT_BUDGET"
	ReasonDuplicatePayout   Reason = "DUPLICATE_PAYOUT"
	ReasonRetryExhausted    Reason = "RETRY_EXHAUSTED"
	ReasonBankMismatch      Reason = "BANK_MISMATCH"
	ReasonRecipientBlocked  Reason = "RECIPIENT_BLOCKED"
	ReasonValidation        Reason = "VALIDATION_FAILED"
	ReasonNotFound          Reason = "NOT_FOUND"
	ReasonRetry             Reason = "RETRY"
)
