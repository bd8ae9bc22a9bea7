// Package errors provides structured error handling for amanrag.
//
// Codes read ERR_<number>_<NAME>; the hundreds digit is the category:
// 1 config, 2 local I/O, 3 network or backend availability, 4 validation,
// 5 internal.
package errors

// Category groups codes by what went wrong.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity tells callers whether to abort, fail the call or degrade.
type Severity string

const (
	// SeverityFatal marks a setup problem; the process should stop.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the operation only.
	SeverityError Severity = "ERROR"
	// SeverityWarning allows degraded operation.
	SeverityWarning Severity = "WARNING"
)

const (
	ErrCodeConfigInvalid = "ERR_102_CONFIG_INVALID"

	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeCorruptIndex = "ERR_205_CORRUPT_INDEX"
	ErrCodeLocked       = "ERR_207_DATA_DIR_LOCKED"

	ErrCodeNetworkTimeout   = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeIndexUnavailable = "ERR_303_INDEX_UNAVAILABLE"

	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"

	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed   = "ERR_502_EMBEDDING_FAILED"
	ErrCodeGenerationFailed  = "ERR_504_GENERATION_FAILED"
	ErrCodeIndexFailed       = "ERR_505_INDEX_FAILED"
	ErrCodeBothSourcesFailed = "ERR_506_BOTH_SOURCES_FAILED"
)

// classes overrides the default classification (severity error, not
// retryable) for codes that abort or can be retried.
var classes = map[string]struct {
	severity  Severity
	retryable bool
}{
	ErrCodeConfigInvalid:     {SeverityFatal, false},
	ErrCodeCorruptIndex:      {SeverityFatal, false},
	ErrCodeDimensionMismatch: {SeverityFatal, false},
	ErrCodeLocked:            {SeverityWarning, true},
	ErrCodeNetworkTimeout:    {SeverityWarning, true},
	ErrCodeIndexUnavailable:  {SeverityWarning, true},
	ErrCodeBothSourcesFailed: {SeverityError, true},
}

var categories = map[byte]Category{
	'1': CategoryConfig,
	'2': CategoryIO,
	'3': CategoryNetwork,
	'4': CategoryValidation,
}

func categoryFromCode(code string) Category {
	if len(code) > 4 {
		if c, ok := categories[code[4]]; ok {
			return c
		}
	}
	return CategoryInternal
}

func severityFromCode(code string) Severity {
	if c, ok := classes[code]; ok {
		return c.severity
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	return classes[code].retryable
}
