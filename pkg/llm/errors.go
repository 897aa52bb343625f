package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a provider failure. The Gateway's fallback decision is a
// pure function of Kind.
type Kind string

const (
	KindRateLimit        Kind = "rate_limit"
	KindAuth             Kind = "auth_error"
	KindTimeout          Kind = "timeout"
	KindTransientNetwork Kind = "transient_network"
	KindBadRequest       Kind = "bad_request"
	KindContentFilter    Kind = "content_filter"
	KindServer           Kind = "server_error"
	KindUnknown          Kind = "unknown"
)

var (
	// ErrAllProvidersFailed is returned by the Gateway when every configured
	// provider was attempted without success.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrStreamAborted is surfaced when a stream fails after the first chunk
	// was already forwarded. The Gateway never switches providers mid-stream.
	ErrStreamAborted = errors.New("stream aborted")

	// ErrNoCredentials is returned by an adapter constructed without any
	// credentials.
	ErrNoCredentials = errors.New("no credentials configured")
)

// Error is a classified provider failure.
type Error struct {
	Kind       Kind
	Provider   string
	Credential string // redacted form, safe to log
	Message    string
	HTTPStatus int
	cause      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Advanceable reports whether the Gateway should try the next provider
// after this failure. Bad requests and content filtering are terminal:
// every provider would reject the same input.
func (e *Error) Advanceable() bool {
	switch e.Kind {
	case KindRateLimit, KindAuth, KindTimeout, KindServer, KindTransientNetwork:
		return true
	}
	return false
}

// Retryable reports whether the adapter itself may retry the same
// credential. Only transient network failures qualify.
func (e *Error) Retryable() bool { return e.Kind == KindTransientNetwork }

// newError builds a classified error bound to a provider and credential.
func newError(kind Kind, provider, credential, message string, cause error) *Error {
	return &Error{
		Kind:       kind,
		Provider:   provider,
		Credential: Redact(credential),
		Message:    message,
		cause:      cause,
	}
}

// KindFromHTTPStatus maps a provider HTTP status to an error kind.
func KindFromHTTPStatus(status int) Kind {
	switch {
	case status == 429:
		return KindRateLimit
	case status == 401 || status == 403:
		return KindAuth
	case status == 400 || status == 404 || status == 422:
		return KindBadRequest
	case status == 408:
		return KindTimeout
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// ClassifyErr maps transport-layer errors to a Kind. Deadline expiry is a
// timeout; other net errors are transient.
func ClassifyErr(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransientNetwork
	}
	return KindUnknown
}

// AsError extracts the classified *Error from err, synthesizing a
// KindUnknown wrapper when err carries no classification.
func AsError(err error, provider string) *Error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	return &Error{Kind: ClassifyErr(err), Provider: provider, Message: err.Error(), cause: err}
}
