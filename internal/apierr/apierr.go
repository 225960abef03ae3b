// Package apierr classifies failures from the backend and AI providers into
// the kinds the session surfaces to the user.
package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
)

type Kind int

const (
	KindOther Kind = iota
	KindTransport
	KindUnauthenticated
	KindRateLimited
	KindUnavailable
	KindPermission
	KindUserInputInvalid
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	case KindPermission:
		return "permission"
	case KindUserInputInvalid:
		return "user_input_invalid"
	case KindCancelled:
		return "cancelled"
	default:
		return "provider_other"
	}
}

type Error struct {
	Kind       Kind
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d)", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindForStatus maps an HTTP status to a Kind.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusServiceUnavailable:
		return KindUnavailable
	}
	return KindOther
}

// FromResponse builds an Error from a non-2xx response body of the shape
// {"detail": ..., "message": ...}.
func FromResponse(status int, body []byte) *Error {
	return &Error{
		Kind:       KindForStatus(status),
		StatusCode: status,
		Detail:     detailFromBody(body),
	}
}

// Transport wraps a network level failure. Only an explicit cancellation is
// KindCancelled; timeouts, including the HTTP client's own, are transport
// failures.
func Transport(err error) *Error {
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCancelled, Err: err}
	}
	return &Error{Kind: KindTransport, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// FromOpenAI converts go-openai errors, which carry the provider status.
func FromOpenAI(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Kind:       KindForStatus(apiErr.HTTPStatusCode),
			StatusCode: apiErr.HTTPStatusCode,
			Detail:     apiErr.Message,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{
			Kind:       KindForStatus(reqErr.HTTPStatusCode),
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}
	return Transport(err)
}

// KindOf reports the Kind of err; unclassified errors are KindOther.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindOther
}

// IsCancelled is true for errors caused by a dropped request.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

// UserMessage renders err as the text shown to the clinician.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "Unexpected error: " + err.Error()
	}
	switch e.Kind {
	case KindUnauthenticated:
		return "AI model unavailable — invalid API key."
	case KindRateLimited:
		return "Rate limit reached; retry shortly."
	case KindUnavailable:
		return "AI service unavailable."
	case KindTransport:
		if isTimeout(e.Err) {
			return "The server took too long to respond."
		}
		return "Could not reach the server; check the connection."
	case KindPermission:
		return "Microphone access denied."
	case KindUserInputInvalid:
		if e.Detail != "" {
			return e.Detail
		}
		return "Invalid input."
	case KindCancelled:
		return "Request cancelled."
	}
	if e.Detail != "" {
		return e.Detail
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("AI request failed (status %d).", e.StatusCode)
	}
	return "AI request failed."
}

func detailFromBody(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		// proxies answer with HTML pages
		text := strings.TrimSpace(string(body))
		if strings.HasPrefix(text, "<") {
			return ""
		}
		return clip(strings.Join(strings.Fields(text), " "))
	}
	if len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return clip(s)
		}
		// validation errors arrive as a list of objects
		return clip(string(payload.Detail))
	}
	return clip(payload.Message)
}

const maxDetail = 200

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxDetail {
		return s
	}
	return string([]rune(s)[:maxDetail]) + "..."
}
