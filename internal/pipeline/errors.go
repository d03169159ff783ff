package pipeline

import (
	"fmt"
)

// ErrorType represents the type of a pipeline error
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeFetch         ErrorType = "fetch"
	ErrorTypeResolution    ErrorType = "resolution"
	ErrorTypeNormalization ErrorType = "normalization"
	ErrorTypeAggregation   ErrorType = "aggregation"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeCancellation  ErrorType = "cancellation"
)

// Stage names used in pipeline errors and logs.
const (
	StageFetch     = "fetch"
	StageResolve   = "resolve"
	StageNormalize = "normalize"
	StageMeasure   = "measure"
	StageAggregate = "aggregate"
)

// PipelineError represents a stage-specific error
type PipelineError struct {
	Type      ErrorType              `json:"type"`
	Stage     string                 `json:"stage,omitempty"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"cause,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Retryable bool                   `json:"retryable"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Stage, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(stage, message string) *PipelineError {
	return &PipelineError{
		Type:      ErrorTypeValidation,
		Stage:     stage,
		Message:   message,
		Retryable: false,
	}
}

// NewFetchError creates a new fetch error for one query key
func NewFetchError(key string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeFetch,
		Stage:   StageFetch,
		Message: "upstream fetch failed",
		Cause:   cause,
		Context: map[string]interface{}{
			"key": key,
		},
		Retryable: true,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(stage string, timeout string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeTimeout,
		Stage:   stage,
		Message: fmt.Sprintf("stage exceeded timeout of %s", timeout),
		Context: map[string]interface{}{
			"timeout": timeout,
		},
		Retryable: true,
	}
}

// NewCancellationError creates a new cancellation error
func NewCancellationError(stage string) *PipelineError {
	return &PipelineError{
		Type:      ErrorTypeCancellation,
		Stage:     stage,
		Message:   "run was cancelled",
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pErr, ok := err.(*PipelineError); ok {
		return pErr.Retryable
	}
	return false
}

// GetErrorType returns the type of the error
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	if pErr, ok := err.(*PipelineError); ok {
		return pErr.Type
	}
	return ErrorTypeFetch
}

// WrapError wraps an error with stage context
func WrapError(err error, stage string, message string) *PipelineError {
	if err == nil {
		return nil
	}

	if pErr, ok := err.(*PipelineError); ok {
		if pErr.Stage == "" {
			pErr.Stage = stage
		}
		if message != "" {
			pErr.Message = fmt.Sprintf("%s: %s", message, pErr.Message)
		}
		return pErr
	}

	return &PipelineError{
		Type:      GetErrorType(err),
		Stage:     stage,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// ErrorList represents multiple errors collected over a run
type ErrorList struct {
	Errors []*PipelineError `json:"errors"`
}

// Error implements the error interface
func (e *ErrorList) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors: %d errors occurred", len(e.Errors))
}

// Add adds an error to the list
func (e *ErrorList) Add(err *PipelineError) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (e *ErrorList) HasErrors() bool {
	return len(e.Errors) > 0
}

// GetByStage returns errors for a specific stage
func (e *ErrorList) GetByStage(stage string) []*PipelineError {
	var stageErrors []*PipelineError
	for _, err := range e.Errors {
		if err.Stage == stage {
			stageErrors = append(stageErrors, err)
		}
	}
	return stageErrors
}
