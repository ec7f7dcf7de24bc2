package harnessports

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can decide between apologising, retrying later or giving up.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindConfig means credentials or settings are missing; no call was attempted.
	KindConfig
	// KindTransientProvider covers timeouts, connection failures and exhausted search chains.
	KindTransientProvider
	// KindProviderResponse covers non-2xx statuses and malformed provider payloads.
	KindProviderResponse
	// KindStructuredParse means every JSON recovery strategy failed.
	KindStructuredParse
	// KindValidation means input or a parsed record lacked required fields.
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransientProvider:
		return "transient_provider"
	case KindProviderResponse:
		return "provider_response"
	case KindStructuredParse:
		return "structured_parse"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrTimeout            = errors.New("request timed out")
	ErrConnection         = errors.New("connection failed")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrNoResults          = errors.New("no results")
	ErrNoJSON             = errors.New("no JSON data found")
	ErrNoValidObjects     = errors.New("no valid objects")
	ErrNotFound           = errors.New("not found")
)

// Error is the typed error returned across component boundaries.
type Error struct {
	Kind     ErrorKind
	Op       string // operation, e.g. "chat", "search", "recover"
	Provider string // provider or adapter name when relevant
	Snippet  string // bounded raw payload for diagnostics
	Err      error
}

func (e *Error) Error() string {
	var prefix string
	switch {
	case e.Op != "" && e.Provider != "":
		prefix = fmt.Sprintf("%s (%s): ", e.Op, e.Provider)
	case e.Op != "":
		prefix = e.Op + ": "
	}
	if e.Err == nil {
		return prefix + e.Kind.String()
	}
	return prefix + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and operation.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ConfigError reports missing configuration for op.
func ConfigError(op string, err error) *Error { return NewError(KindConfig, op, err) }

// TransientError reports a timeout or connection failure against provider.
func TransientError(op, provider string, err error) *Error {
	return &Error{Kind: KindTransientProvider, Op: op, Provider: provider, Err: err}
}

// ResponseError reports a bad status or malformed payload from provider.
func ResponseError(op, provider string, err error) *Error {
	return &Error{Kind: KindProviderResponse, Op: op, Provider: provider, Err: err}
}

// ValidationError reports invalid input for op.
func ValidationError(op string, err error) *Error { return NewError(KindValidation, op, err) }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
