package httpx

import "net/http"

const (
	StatusOK                   = http.StatusOK                   // Successful request
	StatusCreated              = http.StatusCreated              // Resource created
	StatusAccepted             = http.StatusAccepted             // Accepted for asynchronous handling
	StatusNoContent            = http.StatusNoContent            // Successful with no body
	StatusBadRequest           = http.StatusBadRequest           // Validation or malformed input
	StatusUnauthorized         = http.StatusUnauthorized         // Missing or invalid authentication
	StatusForbidden            = http.StatusForbidden            // Authenticated but lacks permission
	StatusNotFound             = http.StatusNotFound             // Resource not found
	StatusUnsupportedMediaType = http.StatusUnsupportedMediaType // Body is not JSON
	StatusInternalError        = http.StatusInternalServerError  // Unexpected server error
	StatusServiceUnavailable   = http.StatusServiceUnavailable   // Dependency failure or maintenance
	StatusGatewayTimeout       = http.StatusGatewayTimeout       // Request deadline exceeded
)
