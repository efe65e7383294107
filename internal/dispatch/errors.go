package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tubegate/tubegate/internal/oauth"
	"github.com/tubegate/tubegate/internal/youtube"
)

// Kind classifies a dispatch failure for callers and for the wire shape.
type Kind string

const (
	// KindValidation covers rejected input.
	KindValidation Kind = "validation"
	// KindDenied covers governance denials (rate limit, CORS, signature,
	// injection). Client text stays generic; details go to the security log.
	KindDenied Kind = "governance_denied"
	// KindTransient covers upstream failures worth retrying later.
	KindTransient Kind = "transient"
	// KindAuthRequired covers missing or dead delegated credentials.
	KindAuthRequired Kind = "auth_required"
	// KindNotFound covers absent videos, channels, and playlists.
	KindNotFound Kind = "not_found"
	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

// Error is the single error type crossing the dispatch boundary.
type Error struct {
	Kind    Kind
	Message string

	// RetryAfter is set on rate-limit denials.
	RetryAfter time.Duration

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds an Error with a client-facing message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Classify maps a collaborator error onto the taxonomy. The client-facing
// message never carries upstream detail for denial kinds.
func Classify(err error) *Error {
	var derr *Error
	if errors.As(err, &derr) {
		return derr
	}

	switch {
	case errors.Is(err, youtube.ErrInvalidInput):
		return &Error{Kind: KindValidation, Message: err.Error(), cause: err}
	case errors.Is(err, youtube.ErrNotFound), errors.Is(err, youtube.ErrNoTranscript):
		return &Error{Kind: KindNotFound, Message: err.Error(), cause: err}
	case errors.Is(err, youtube.ErrQuotaExceeded):
		return &Error{Kind: KindTransient, Message: "upstream quota exhausted, try again later", cause: err}
	case errors.Is(err, oauth.ErrReauthRequired):
		return &Error{Kind: KindAuthRequired, Message: "authorization required, complete the OAuth flow", cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTransient, Message: "upstream timeout", cause: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindTransient, Message: "request canceled", cause: err}
	default:
		return &Error{Kind: KindInternal, Message: "internal error", cause: err}
	}
}

// Payload is the JSON error shape returned to tool callers.
type Payload struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorKind Kind   `json:"error_kind"`
}

// Payload renders the error for the wire.
func (e *Error) Payload() Payload {
	return Payload{Success: false, Error: e.Message, ErrorKind: e.Kind}
}

// PayloadJSON marshals any error into the wire shape, classifying first.
func PayloadJSON(err error) []byte {
	out, merr := json.Marshal(Classify(err).Payload())
	if merr != nil {
		return []byte(`{"success":false,"error":"internal error","error_kind":"internal"}`)
	}
	return out
}
