package models

import "fmt"

// Error codes for pipeline failures. Stable values; stored in status rows and
// returned over the API.
const (
	CodeUnsupportedFileType = "UNSUPPORTED_FILE_TYPE"
	CodeExtractionFailed    = "EXTRACTION_FAILED"
	CodeProcessingFailed    = "PROCESSING_FAILED"
	CodePersistenceFailure  = "PERSISTENCE_FAILURE"
	CodeStageTimeout        = "STAGE_TIMEOUT"
	CodeCancelled           = "CANCELLED"
)

// ProcessingError is the typed failure attached to a document's status when
// the pipeline ends in the error state. Retryable gates whether the caller
// should offer a retry; RetryCount is incremented by the caller on explicit
// retry, never by the pipeline itself.
type ProcessingError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Retryable  bool   `json:"retryable"`
	RetryCount int    `json:"retry_count,omitempty"`
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewUnsupportedFileType reports that no processor matched the file. Not
// retryable: re-submitting the same bytes cannot succeed.
func NewUnsupportedFileType(fileName string) *ProcessingError {
	return &ProcessingError{
		Code:      CodeUnsupportedFileType,
		Message:   fmt.Sprintf("no processor registered for file %q", fileName),
		Retryable: false,
	}
}

// NewExtractionFailed wraps a format parser failure (corrupted archive,
// unreadable workbook, non-UTF8 text).
func NewExtractionFailed(msg string, cause error) *ProcessingError {
	e := &ProcessingError{
		Code:      CodeExtractionFailed,
		Message:   msg,
		Retryable: true,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewProcessingFailed is the catch-all for failures surfaced mid-pipeline.
func NewProcessingFailed(msg string, cause error) *ProcessingError {
	e := &ProcessingError{
		Code:      CodeProcessingFailed,
		Message:   msg,
		Retryable: true,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewPersistenceFailure reports that the storage collaborator rejected a write.
func NewPersistenceFailure(cause error) *ProcessingError {
	e := &ProcessingError{
		Code:      CodePersistenceFailure,
		Message:   "storage collaborator rejected the write",
		Retryable: true,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewStageTimeout reports that a pipeline stage exceeded its deadline.
func NewStageTimeout(stage string) *ProcessingError {
	return &ProcessingError{
		Code:      CodeStageTimeout,
		Message:   fmt.Sprintf("stage %q exceeded its deadline", stage),
		Retryable: true,
	}
}

// NewCancelled reports a caller-requested cancellation. Cancellation stops
// future stage transitions only; an extractor already mid-parse runs to
// completion of its current call.
func NewCancelled() *ProcessingError {
	return &ProcessingError{
		Code:      CodeCancelled,
		Message:   "processing cancelled by caller",
		Retryable: true,
	}
}
