package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sony/gobreaker/v2"
)

// Kind classifies why a call to the ERP failed.
type Kind int

const (
	KindNetwork     Kind = iota + 1 // request never reached the server
	KindTimeout                     // no answer within the budget
	KindAuthExpired                 // 401 / 419
	KindForbidden                   // 403
	KindValidation                  // 422
	KindServer                      // 5xx
	KindRejected                    // any other refusal
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindAuthExpired:
		return "auth_expired"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("upstream ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether sending the same request later may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindServer:
		return true
	case KindRejected:
		return e.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// Connectivity reports whether the request most likely never reached the ERP.
func (e *Error) Connectivity() bool { return e.Kind == KindNetwork }

// KindOf returns the classification of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return 0
}

func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Kind: KindNetwork, Message: "circuit open", Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == 419:
		return KindAuthExpired
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindServer
	default:
		return KindRejected
	}
}
