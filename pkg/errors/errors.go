package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeFetch represents network, timeout and browser failures
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypeRateLimit represents a retailer answering 429/430 or a blocked host
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeExtraction represents a single field that could not be read from a page
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypePersistence represents storage read/write failures
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeNotification represents notification or feed delivery failures
	ErrorTypeNotification ErrorType = "notification"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// PipelineError is an error raised by one stage of a crawl
type PipelineError struct {
	Type    ErrorType
	Stage   string
	URL     string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	where := e.Stage
	if e.URL != "" {
		where = fmt.Sprintf("%s %s", e.Stage, e.URL)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, where, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, where, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *PipelineError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeFetch:
		return true
	default:
		return false
	}
}

// New creates a new PipelineError
func New(errType ErrorType, stage, url, message string, err error) *PipelineError {
	return &PipelineError{
		Type:    errType,
		Stage:   stage,
		URL:     url,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewFetch creates a new fetch error
func NewFetch(url, message string, err error) *PipelineError {
	return New(ErrorTypeFetch, "fetch", url, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(url string, retryAfter string) *PipelineError {
	message := "rate limited"
	if retryAfter != "" {
		message = fmt.Sprintf("rate limited; retry after %s", retryAfter)
	}
	return New(ErrorTypeRateLimit, "fetch", url, message, nil)
}

// NewExtraction creates a new extraction error for one field
func NewExtraction(field, url string, err error) *PipelineError {
	return New(ErrorTypeExtraction, "extract "+field, url, "field degraded to default", err)
}

// NewPersistence creates a new persistence error
func NewPersistence(stage, message string, err error) *PipelineError {
	return New(ErrorTypePersistence, stage, "", message, err)
}

// NewNotification creates a new notification delivery error
func NewNotification(stage, url string, err error) *PipelineError {
	return New(ErrorTypeNotification, stage, url, "delivery failed", err)
}

// NewValidation creates a new validation error
func NewValidation(stage, message string) *PipelineError {
	return New(ErrorTypeValidation, stage, "", message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *PipelineError {
	return New(ErrorTypeConfiguration, "config", "", message, err)
}

// IsType reports whether err wraps a PipelineError of the given type
func IsType(err error, errType ErrorType) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Type == errType
	}
	return false
}
