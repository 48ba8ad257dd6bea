package httpx

import "net/http"

// Status codes the weather API answers with.
const (
	StatusOK                 = http.StatusOK
	StatusCreated            = http.StatusCreated
	StatusNoContent          = http.StatusNoContent
	StatusBadRequest         = http.StatusBadRequest
	StatusUnauthorized       = http.StatusUnauthorized // upstream rejected the api key
	StatusNotFound           = http.StatusNotFound
	StatusConflict           = http.StatusConflict
	StatusInternalError      = http.StatusInternalServerError
	StatusBadGateway         = http.StatusBadGateway
	StatusServiceUnavailable = http.StatusServiceUnavailable
	StatusGatewayTimeout     = http.StatusGatewayTimeout
)
