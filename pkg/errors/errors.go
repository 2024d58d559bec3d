package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeValidation represents invalid caller input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents missing or inconsistent setup, e.g. an unregistered store
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeNavigation represents page load failures (timeouts, network, browser crash)
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeNotFound represents a completed extraction that yielded no price
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeParsing represents HTML or payload parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeStorage represents repository errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
)

// ScrapeError represents an error raised while observing a price
type ScrapeError struct {
	Type     ErrorType
	Provider string
	Message  string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Provider, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if a later attempt may succeed without intervention
func (e *ScrapeError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNavigation, ErrorTypeStorage, ErrorTypePublisher:
		return true
	default:
		return false
	}
}

// New creates a new ScrapeError
func New(errType ErrorType, provider, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:     errType,
		Provider: provider,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewValidation creates a new validation error
func NewValidation(provider, message string) *ScrapeError {
	return New(ErrorTypeValidation, provider, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(provider, message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, provider, message, err)
}

// NewNavigation creates a new navigation error
func NewNavigation(provider, message string, err error) *ScrapeError {
	return New(ErrorTypeNavigation, provider, message, err)
}

// NewNotFound creates a new not-found error
func NewNotFound(provider, message string) *ScrapeError {
	return New(ErrorTypeNotFound, provider, message, nil)
}

// NewParsing creates a new parsing error
func NewParsing(provider, message string, err error) *ScrapeError {
	return New(ErrorTypeParsing, provider, message, err)
}

// NewStorage creates a new storage error
func NewStorage(provider, message string, err error) *ScrapeError {
	return New(ErrorTypeStorage, provider, message, err)
}

// NewRateLimit creates a new rate limit error. retryAfter is the upstream's
// requested pause, zero when it gave none.
func NewRateLimit(provider string, retryAfter time.Duration, err error) *ScrapeError {
	message := "rate limited"
	if retryAfter > 0 {
		message = fmt.Sprintf("rate limited for %v", retryAfter)
	}
	return New(ErrorTypeRateLimit, provider, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(provider, message string, err error) *ScrapeError {
	return New(ErrorTypePublisher, provider, message, err)
}

// NewCache creates a new cache error
func NewCache(provider, message string, err error) *ScrapeError {
	return New(ErrorTypeCache, provider, message, err)
}

// TypeOf returns the type of the first ScrapeError in err's chain, or "" if there is none
func TypeOf(err error) ErrorType {
	var se *ScrapeError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return ""
}

// IsRetryable reports whether err's chain holds a ScrapeError that a later attempt may clear
func IsRetryable(err error) bool {
	return IsType(err, ErrorTypeNavigation) || IsType(err, ErrorTypeStorage) || IsType(err, ErrorTypePublisher)
}

// IsType reports whether err's chain contains a ScrapeError of the given type.
// Joined errors are searched branch by branch.
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*ScrapeError); ok && se.Type == errType {
		return true
	}

	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if IsType(e, errType) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return IsType(u.Unwrap(), errType)
	}
	return false
}
