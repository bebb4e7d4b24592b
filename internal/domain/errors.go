package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedCountry is returned when the requested country is not in the catalog
	ErrUnsupportedCountry = errors.New("unsupported country")

	// ErrEmptyQuery is returned when the query is blank after trimming
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrQueryTooLong is returned when the query exceeds the maximum length
	ErrQueryTooLong = errors.New("query too long")

	// ErrProviderRateLimited is returned when a provider rejects a call due to quota
	ErrProviderRateLimited = errors.New("provider rate limited")

	// ErrProviderUnauthorized is returned when provider credentials are rejected
	ErrProviderUnauthorized = errors.New("provider unauthorized")

	// ErrProviderUnavailable is returned when a provider cannot be reached or errors
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderTimeout is returned when a provider does not answer in time
	ErrProviderTimeout = errors.New("provider timeout")

	// ErrMalformedJudgment is returned when a model response does not match the judgment schema
	ErrMalformedJudgment = errors.New("malformed judgment")

	// ErrModelUnavailable is returned when the language model cannot be reached
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")
)

// ProviderErrorKind classifies a provider failure
type ProviderErrorKind string

const (
	ProviderRateLimited  ProviderErrorKind = "rate_limited"
	ProviderUnauthorized ProviderErrorKind = "unauthorized"
	ProviderUnavailable  ProviderErrorKind = "unavailable"
	ProviderTimeout      ProviderErrorKind = "timeout"
)

// ProviderError is a failure reported by a single provider call.
// It never aborts a search; the aggregator records it and moves on.
type ProviderError struct {
	Provider ProviderName
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is match a ProviderError against the kind sentinels.
func (e *ProviderError) Is(target error) bool {
	switch e.Kind {
	case ProviderRateLimited:
		return target == ErrProviderRateLimited
	case ProviderUnauthorized:
		return target == ErrProviderUnauthorized
	case ProviderUnavailable:
		return target == ErrProviderUnavailable
	case ProviderTimeout:
		return target == ErrProviderTimeout
	}
	return false
}

// NewProviderError builds a ProviderError
func NewProviderError(provider ProviderName, kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// ValidationErrorKind classifies an AI validation failure
type ValidationErrorKind string

const (
	ValidationMalformedJudgment ValidationErrorKind = "malformed_judgment"
	ValidationModelUnavailable  ValidationErrorKind = "model_unavailable"
)

// ValidationError is a failure of one AI validation batch
type ValidationError struct {
	Kind  ValidationErrorKind
	Batch int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ai validation batch %d: %s: %v", e.Batch, e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool {
	switch e.Kind {
	case ValidationMalformedJudgment:
		return target == ErrMalformedJudgment
	case ValidationModelUnavailable:
		return target == ErrModelUnavailable
	}
	return false
}

// InputErrorKind classifies a rejected search request
type InputErrorKind string

const (
	InputUnsupportedCountry InputErrorKind = "unsupported_country"
	InputEmptyQuery         InputErrorKind = "empty_query"
	InputQueryTooLong       InputErrorKind = "query_too_long"
)

// InputError is returned before any provider is called
type InputError struct {
	Kind  InputErrorKind
	Value string
}

func (e *InputError) Error() string {
	switch e.Kind {
	case InputUnsupportedCountry:
		return fmt.Sprintf("unsupported country: %q", e.Value)
	case InputEmptyQuery:
		return "query must not be empty"
	case InputQueryTooLong:
		return fmt.Sprintf("query too long (%s characters)", e.Value)
	}
	return string(e.Kind)
}

func (e *InputError) Is(target error) bool {
	switch e.Kind {
	case InputUnsupportedCountry:
		return target == ErrUnsupportedCountry
	case InputEmptyQuery:
		return target == ErrEmptyQuery
	case InputQueryTooLong:
		return target == ErrQueryTooLong
	}
	return false
}

// ProviderErrorLabel returns a metrics-friendly label for any error
// returned by a provider.
func ProviderErrorLabel(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return string(perr.Kind)
	}
	return "unknown"
}
