package insights

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	genai "google.golang.org/genai"
)

type Kind int

const (
	KindTimeout Kind = iota + 1
	KindRateLimited
	KindServiceError
	KindInvalidResponse
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindServiceError:
		return "service_error"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

var ErrEmptyResponse = errors.New("model returned no text")

// AiError is every failure of the insights collaborator. All kinds are
// recoverable: the dashboard keeps rendering and offers a retry.
type AiError struct {
	Kind Kind
	Err  error
}

func (e *AiError) Error() string {
	if e.Err != nil {
		return "insights: " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "insights: " + e.Kind.String()
}

func (e *AiError) Unwrap() error { return e.Err }

// Retryable reports whether another API key might succeed.
func (e *AiError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindServiceError
}

// KindOf returns the AiError kind of err, or 0 if err is not an AiError.
func KindOf(err error) Kind {
	var aiErr *AiError
	if errors.As(err, &aiErr) {
		return aiErr.Kind
	}
	return 0
}

// classify maps transport and API failures onto the AiError taxonomy.
func classify(err error) *AiError {
	var aiErr *AiError
	if errors.As(err, &aiErr) {
		return aiErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &AiError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &AiError{Kind: KindTimeout, Err: err}
	}
	if code, status, ok := apiStatus(err); ok {
		switch {
		case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
			return &AiError{Kind: KindRateLimited, Err: err}
		case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout || status == "DEADLINE_EXCEEDED":
			return &AiError{Kind: KindTimeout, Err: err}
		}
	}
	if errors.Is(err, ErrEmptyResponse) {
		return &AiError{Kind: KindInvalidResponse, Err: err}
	}
	return &AiError{Kind: KindServiceError, Err: err}
}

func apiStatus(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, strings.ToUpper(apiErr.Status), true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, strings.ToUpper(apiErrPtr.Status), true
	}
	return 0, "", false
}
