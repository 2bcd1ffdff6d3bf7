package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Transport / resilience error codes
const (
	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketReconnecting    Code = "WEBSOCKET_RECONNECTING"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)

// Venue adapter / execution error codes (the taxonomy the core trading loop
// dispatches on; see business/execution/app for the state-machine policy).
const (
	// ConnectionFailed: transport could not be opened. Recovered by reconnect
	// backoff in the adapter.
	CodeConnectionFailed Code = "CONNECTION_FAILED"

	// AuthenticationFailed: venue credentials cannot be used (venue A's
	// signer returns it for a signing key that does not parse). No component
	// reconnects with fresh auth or halts on this code.
	CodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"

	// RateLimited: carries a retry_after_ms; adapter honours the delay then
	// proceeds.
	CodeRateLimited Code = "RATE_LIMITED"

	// Timeout: per-operation; surfaced to caller.
	CodeTimeout Code = "TIMEOUT"

	// OrderRejected: with reason string; surfaced to caller; never retried by
	// the adapter.
	CodeOrderRejected Code = "ORDER_REJECTED"

	// InsufficientBalance: surfaced; execution engine treats as leg failure.
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"

	// ParseError / InvalidSymbol: fatal for the affected symbol; feed task
	// logs and continues.
	CodeParseError    Code = "PARSE_ERROR"
	CodeInvalidSymbol Code = "INVALID_SYMBOL"

	// StaleData: soft; monitor skips the tick.
	CodeStaleData Code = "STALE_DATA"

	// Halted: terminal engine state, requires operator intervention.
	CodeHalted Code = "HALTED"

	// CrossedBook: an orderbook snapshot violated bids[0] < asks[0] and was
	// dropped rather than published into the store.
	CodeCrossedBook Code = "CROSSED_BOOK"
)
