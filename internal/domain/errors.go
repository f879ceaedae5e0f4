package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record or object exists for an id.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a non-failed record already exists for an image.
	ErrAlreadyExists = errors.New("already exists")
	// ErrEmptyPayload is returned when an upload carries no bytes.
	ErrEmptyPayload = errors.New("empty image payload")
	// ErrInvalidTransition is returned when a record leaves a terminal status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrModelUnavailable is returned when analysis is requested but no model client is configured.
	ErrModelUnavailable = errors.New("model client not configured")
	// ErrSearchUnavailable is returned when search is requested but no vector index is configured.
	ErrSearchUnavailable = errors.New("search index not configured")
)

// Error kinds recorded on failed attribute records.
const (
	ErrorKindModelTransient = "model_transient"
	ErrorKindModelTerminal  = "model_terminal"
	ErrorKindParse          = "parse"
	ErrorKindCanceled       = "canceled"
	ErrorKindUnknown        = "unknown"
)

// StorageWriteError reports that the blob store rejected a write.
type StorageWriteError struct {
	Key string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("storage write %s: %v", e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// ModelCallError reports a failed call to the vision model.
// Transient errors may succeed when retried; terminal ones will not.
type ModelCallError struct {
	Transient  bool
	StatusCode int
	Err        error
}

func (e *ModelCallError) Error() string {
	kind := "terminal"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("model call failed (%s, status %d): %v", kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model call failed (%s): %v", kind, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// IsTransientModelError reports whether err carries a transient ModelCallError.
func IsTransientModelError(err error) bool {
	var mce *ModelCallError
	return errors.As(err, &mce) && mce.Transient
}

// ParseErrorKind classifies why model output could not be turned into attributes.
type ParseErrorKind string

const (
	ParseNoJSONFound ParseErrorKind = "no_json_found"
	ParseInvalidType ParseErrorKind = "invalid_type"
)

// ParseError reports that model output contained no usable JSON object.
type ParseError struct {
	Kind ParseErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse model output: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("parse model output: %s", e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Err }

// AlreadyExistsError reports that an image already holds a non-failed record.
type AlreadyExistsError struct {
	ImageID        string
	ExistingStatus RecordStatus
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("attribute record for image %s already exists (status %s)", e.ImageID, e.ExistingStatus)
}

func (e *AlreadyExistsError) Unwrap() error { return ErrAlreadyExists }

// StoreWriteError reports that the metadata store failed to persist a record.
type StoreWriteError struct {
	ImageID string
	Err     error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store attribute record for image %s: %v", e.ImageID, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// IndexError reports that a committed record could not be added to the search index.
type IndexError struct {
	ImageID string
	Err     error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index image %s: %v", e.ImageID, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// ErrorKindOf maps an analysis failure to the kind stored on a failed record.
func ErrorKindOf(err error) string {
	if err == nil {
		return ""
	}
	var (
		mce *ModelCallError
		pe  *ParseError
	)
	switch {
	case errors.As(err, &pe):
		return ErrorKindParse + ":" + string(pe.Kind)
	case errors.As(err, &mce):
		if mce.Transient {
			return ErrorKindModelTransient
		}
		return ErrorKindModelTerminal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCanceled
	}
	return ErrorKindUnknown
}
