package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_015"
)

// Sentinel codes that are not part of any module.
const (
	CodeOK      = ErrorCode("OK")
	CodeUnknown = ErrorCode("UNKNOWN")
)

// Catalog source error codes.
const (
	ErrCodeSourceRead      ErrorCode = "CATALOG_001"
	ErrCodeSourceHeader    ErrorCode = "CATALOG_002"
	ErrCodeSourceLocation  ErrorCode = "CATALOG_003"
	ErrCodeSourceEmpty     ErrorCode = "CATALOG_004"
	ErrCodeReportWrite     ErrorCode = "CATALOG_005"
	ErrCodeSnapshotPublish ErrorCode = "CATALOG_006"
)

// Load (sync) error codes.
const (
	ErrCodeLookupFailed     ErrorCode = "LOAD_001"
	ErrCodeLookupNotFound   ErrorCode = "LOAD_002"
	ErrCodeLookupTable      ErrorCode = "LOAD_003"
	ErrCodeUpsertFailed     ErrorCode = "LOAD_004"
	ErrCodeBrandUnresolved  ErrorCode = "LOAD_005"
	ErrCodeIndexFailed      ErrorCode = "LOAD_006"
	ErrCodeGraphSyncFailed  ErrorCode = "LOAD_007"
	ErrCodeEventPublish     ErrorCode = "LOAD_008"
	ErrCodeMigrationFailed  ErrorCode = "LOAD_009"
	ErrCodeObjectStoreError ErrorCode = "LOAD_010"
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "not found",
	ErrCodeConflict:           "conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeFeatureDisabled:    "feature disabled",

	ErrCodeSourceRead:      "catalog source could not be read",
	ErrCodeSourceHeader:    "catalog header is missing required columns",
	ErrCodeSourceLocation:  "catalog location is invalid",
	ErrCodeSourceEmpty:     "catalog contains no records",
	ErrCodeReportWrite:     "exclusion report could not be written",
	ErrCodeSnapshotPublish: "run snapshot could not be published",

	ErrCodeLookupFailed:     "lookup-or-create failed",
	ErrCodeLookupNotFound:   "lookup value not found",
	ErrCodeLookupTable:      "lookup table not allowed",
	ErrCodeUpsertFailed:     "perfume upsert failed",
	ErrCodeBrandUnresolved:  "brand could not be resolved",
	ErrCodeIndexFailed:      "search indexing failed",
	ErrCodeGraphSyncFailed:  "graph sync failed",
	ErrCodeEventPublish:     "event publish failed",
	ErrCodeMigrationFailed:  "schema migration failed",
	ErrCodeObjectStoreError: "object storage error",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// ModuleForCode returns the module prefix of a code ("COMMON", "CATALOG", "LOAD").
func ModuleForCode(code ErrorCode) string {
	s := string(code)
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i]
	}
	return "UNKNOWN"
}

// IsRetryable reports whether a failure with this code is worth retrying by a
// boundary component.
func IsRetryable(code ErrorCode) bool {
	switch code {
	case ErrCodeServiceUnavailable, ErrCodeTimeout, ErrCodeDatabaseError,
		ErrCodeCacheError, ErrCodeExternalService, ErrCodeObjectStoreError:
		return true
	}
	return false
}
