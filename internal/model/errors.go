package model

import "errors"

// Error kinds shared by every core operation. Callers compare with errors.Is.
var (
	ErrValidation          = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrExtraction          = errors.New("extraction failed")
	ErrScannedUnsupported  = errors.New("scanned document unsupported")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrInternal            = errors.New("internal error")
)

// Kind returns a stable name for the error kind of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrScannedUnsupported):
		return "scanned_document_unsupported"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrDuplicateSubmission):
		return "duplicate_submission"
	}
	return "internal"
}

// IsClientError reports whether err is caused by the request rather than the
// system.
func IsClientError(err error) bool {
	switch Kind(err) {
	case "", "internal":
		return false
	}
	return true
}
