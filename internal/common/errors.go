package common

import (
	"errors"
	"fmt"
)

// UserError wraps a condition provoked by caller input: a malformed filter,
// an attribute that isn't filterable, a primary key that can't be changed,
// and so on. Hosts should surface these to their caller largely unchanged.
type UserError struct {
	Code string // stable machine-readable discriminant, e.g. "AttributeNotFilterable"
	Msg  string
	Err  error // optional wrapped cause
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *UserError) Unwrap() error { return e.Err }

// NewUserError builds a UserError with the given code and formatted message.
func NewUserError(code, format string, args ...any) *UserError {
	return &UserError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// InternalError wraps a condition that should never happen against
// well-formed state: storage corruption, an encoding invariant violation, a
// missing database entry. Indexing failures of this kind abort the write
// txn; search failures of this kind should be logged in detail and
// reported to the caller as a generic server error.
type InternalError struct {
	Code string
	Msg  string
	Err  error
}

func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *InternalError) Unwrap() error { return e.Err }

// NewInternalError builds an InternalError, optionally wrapping a cause.
func NewInternalError(code string, err error, format string, args ...any) *InternalError {
	return &InternalError{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Error code constants, stable across error message wording changes.
const (
	ErrInvalidFilter            = "InvalidFilter"
	ErrAttributeNotFilterable   = "AttributeNotFilterable"
	ErrAttributeNotSortable     = "AttributeNotSortable"
	ErrInvalidDocumentID        = "InvalidDocumentId"
	ErrMissingDocumentID        = "MissingDocumentId"
	ErrTooManyDocumentIds       = "TooManyDocumentIds"
	ErrMissingPrimaryKey        = "MissingPrimaryKey"
	ErrPrimaryKeyCannotBeChanged = "PrimaryKeyCannotBeChanged"
	ErrInvalidSettings          = "InvalidSettings"
	ErrAttributeLimitReached    = "AttributeLimitReached"
	ErrDocumentLimitReached     = "DocumentLimitReached"
	ErrInvalidGeoField          = "InvalidGeoField"
	ErrSortError                = "SortError"
	ErrCriterionError           = "CriterionError"
	ErrSerdeJSON                = "SerdeJson"
	ErrCSV                      = "Csv"

	ErrDatabaseMissingEntry  = "DatabaseMissingEntry"
	ErrSerializationError    = "SerializationError"
	ErrBincode               = "Bincode"
	ErrFieldIDMapMissingEntry = "FieldIdMapMissingEntry"
	ErrStoreError            = "StoreError"
	ErrIoError               = "IoError"
	ErrStorageFull           = "StorageFull"
	ErrCorruption            = "Corruption"

	ErrUnknownUpdate = "UnknownUpdate"
	ErrAborted       = "Aborted"
)

// IsUserError reports whether err (or something it wraps) is a UserError.
func IsUserError(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}

// IsInternalError reports whether err (or something it wraps) is an InternalError.
func IsInternalError(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}
