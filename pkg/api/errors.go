package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parley-ai/parley/pkg/chatstore"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/services"
	"github.com/parley-ai/parley/pkg/vectorstore"
	"github.com/parley-ai/parley/pkg/webfetch"
)

// statusClientClosedRequest is nginx's non-standard 499, used for requests
// whose client went away.
const statusClientClosedRequest = 499

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// mapServiceError is the single error→HTTP translation point.
func mapServiceError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, "client_error"
	case errors.Is(err, chatstore.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrEngineUnavailable):
		return http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, webfetch.ErrFetchTimeout):
		return http.StatusGatewayTimeout, "fetch_timeout"
	case errors.Is(err, webfetch.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, vectorstore.ErrUnavailable):
		return http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "fetch_timeout"
	case errors.Is(err, llm.ErrAllProvidersFailed):
		return http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, services.ErrMalformedUpstream):
		return http.StatusBadGateway, "parse_error"
	}

	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		switch llmErr.Kind {
		case llm.KindAuth:
			return http.StatusUnauthorized, "auth_error"
		case llm.KindRateLimit:
			return http.StatusTooManyRequests, "rate_limited"
		case llm.KindContentFilter:
			return http.StatusUnprocessableEntity, "content_filter"
		case llm.KindBadRequest:
			return http.StatusBadRequest, "client_error"
		default:
			return http.StatusServiceUnavailable, "provider_unavailable"
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeError renders the structured error body for err.
func writeError(c *gin.Context, err error) {
	status, code := mapServiceError(err)
	c.JSON(status, errorBody{
		Error:     err.Error(),
		Code:      code,
		RequestID: requestIDFrom(c),
	})
}

// writeBadRequest renders a 400 for request binding failures.
func writeBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody{
		Error:     err.Error(),
		Code:      "client_error",
		RequestID: requestIDFrom(c),
	})
}
