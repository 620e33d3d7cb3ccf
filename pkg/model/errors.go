package model

import "github.com/m-mizutani/goerr/v2"

// Error tags classify memory-pipeline failures. The pipeline treats all of
// them as rollback conditions; only constraint conflicts have an in-pipeline
// recovery path (re-read and retry as update).
var (
	// ErrTagProvider marks failures of the text-generation capability
	ErrTagProvider = goerr.NewTag("provider")

	// ErrTagMalformedExtraction marks extraction responses that were not a
	// parseable JSON object
	ErrTagMalformedExtraction = goerr.NewTag("malformed_extraction")

	// ErrTagConstraintConflict marks unique-constraint violations caused by a
	// concurrent writer
	ErrTagConstraintConflict = goerr.NewTag("constraint_conflict")

	// ErrTagStore marks any other persistence failure
	ErrTagStore = goerr.NewTag("store")
)

// IsConstraintConflict reports whether err is a unique-constraint violation
// recoverable by re-reading the winning row
func IsConstraintConflict(err error) bool {
	return goerr.HasTag(err, ErrTagConstraintConflict)
}

// IsMalformedExtraction reports whether err came from an unparseable
// extraction response
func IsMalformedExtraction(err error) bool {
	return goerr.HasTag(err, ErrTagMalformedExtraction)
}
