package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketReconnecting:    "WebSocket reconnecting",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",

	// Venue adapter / execution errors
	CodeConnectionFailed:     "Venue transport could not be opened",
	CodeAuthenticationFailed: "Venue authentication failed",
	CodeRateLimited:          "Venue rate limit exceeded",
	CodeTimeout:              "Operation timed out",
	CodeOrderRejected:        "Venue rejected the order",
	CodeInsufficientBalance:  "Insufficient balance on venue",
	CodeParseError:           "Failed to parse venue wire message",
	CodeInvalidSymbol:        "Unknown or unmapped symbol",
	CodeStaleData:            "Orderbook snapshot is stale",
	CodeHalted:               "Execution engine halted; operator action required",
	CodeCrossedBook:          "Orderbook snapshot was crossed and dropped",
}
