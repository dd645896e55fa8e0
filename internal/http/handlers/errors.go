// Package handlers defines the error codes returned in ErrorResponse.Code.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Generic codes mirror their HTTP status, dose codes name
// the condition that status alone cannot convey.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "nothing_to_export",
//	  "message": "nothing to export"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Dose-specific:
	ErrCodeInvalidAmount   = "invalid_amount"
	ErrCodeAmbiguousID     = "ambiguous_id"
	ErrCodeNoSelector      = "no_selector"
	ErrCodeNothingToExport = "nothing_to_export"
	ErrCodeImportFailed    = "import_failed"
	ErrCodeStoreFailed     = "store_failed"
)
