// Package errors provides standardized error types and helpers for the Folio codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
	// ErrStructure indicates an illegal tree mutation
	ErrStructure = errors.New("illegal structure")
	// ErrInvalidState indicates an operation that is not valid in the current state
	ErrInvalidState = errors.New("invalid state")
	// ErrRange indicates an index outside a collection
	ErrRange = errors.New("index out of range")
	// ErrLoad indicates a document could not be loaded
	ErrLoad = errors.New("load failed")
	// ErrSave indicates a document could not be saved
	ErrSave = errors.New("save failed")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "style", "codec", "variable")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "field code", "RTF", "document.xml")
	Path    string // File path or part name, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// StructureError reports a tree mutation that would produce an illegal tree,
// such as a Cell placed outside a Row or a node inserted under its own descendant.
type StructureError struct {
	Parent  string // Type of the would-be parent
	Child   string // Type of the rejected child
	Message string
}

func (e *StructureError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cannot insert %s into %s: %s", e.Child, e.Parent, e.Message)
	}
	return fmt.Sprintf("cannot insert %s into %s", e.Child, e.Parent)
}

func (e *StructureError) Unwrap() error {
	return ErrStructure
}

// InvalidStateError reports an operation attempted in a state that forbids it.
type InvalidStateError struct {
	Operation string
	Reason    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Reason)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// RangeError reports an index outside [0, Len).
type RangeError struct {
	Collection string
	Index      int
	Len        int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0, %d)", e.Collection, e.Index, e.Len)
}

func (e *RangeError) Unwrap() error {
	return ErrRange
}

// LoadErrorKind classifies load failures.
type LoadErrorKind int

const (
	// UnsupportedFormat means no codec can read the input.
	UnsupportedFormat LoadErrorKind = iota + 1
	// WrongPassword means the input is encrypted and the password is missing or wrong.
	WrongPassword
	// Corrupted means the input was recognised but is malformed.
	Corrupted
	// UnresolvedResource means a required external resource could not be fetched.
	UnresolvedResource
)

func (k LoadErrorKind) String() string {
	switch k {
	case UnsupportedFormat:
		return "unsupported format"
	case WrongPassword:
		return "wrong password"
	case Corrupted:
		return "corrupted"
	case UnresolvedResource:
		return "unresolved resource"
	default:
		return "unknown"
	}
}

// LoadError is returned by codec loads.
type LoadError struct {
	Kind   LoadErrorKind
	Format string // Codec name, empty when detection failed
	Err    error  // Underlying error, if any
}

func (e *LoadError) Error() string {
	msg := "load"
	if e.Format != "" {
		msg += " " + e.Format
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrLoad, e.Err}
	}
	return []error{ErrLoad}
}

// SaveErrorKind classifies save failures.
type SaveErrorKind int

const (
	// UnsupportedTargetFormat means the target format cannot be written.
	UnsupportedTargetFormat SaveErrorKind = iota + 1
	// IOFailure means writing to the target failed.
	IOFailure
)

func (k SaveErrorKind) String() string {
	switch k {
	case UnsupportedTargetFormat:
		return "unsupported target format"
	case IOFailure:
		return "i/o failure"
	default:
		return "unknown"
	}
}

// SaveError is returned by codec saves.
type SaveError struct {
	Kind   SaveErrorKind
	Format string
	Err    error
}

func (e *SaveError) Error() string {
	msg := "save"
	if e.Format != "" {
		msg += " " + e.Format
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SaveError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrSave, e.Err}
	}
	return []error{ErrSave}
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// NewStructure creates a StructureError
func NewStructure(parent, child, message string) *StructureError {
	return &StructureError{Parent: parent, Child: child, Message: message}
}

// NewInvalidState creates an InvalidStateError
func NewInvalidState(operation, reason string) *InvalidStateError {
	return &InvalidStateError{Operation: operation, Reason: reason}
}

// NewRange creates a RangeError
func NewRange(collection string, index, length int) *RangeError {
	return &RangeError{Collection: collection, Index: index, Len: length}
}

// NewLoad creates a LoadError
func NewLoad(kind LoadErrorKind, format string, err error) *LoadError {
	return &LoadError{Kind: kind, Format: format, Err: err}
}

// NewSave creates a SaveError
func NewSave(kind SaveErrorKind, format string, err error) *SaveError {
	return &SaveError{Kind: kind, Format: format, Err: err}
}

// IsLoadKind reports whether err is a LoadError of the given kind.
func IsLoadKind(err error, kind LoadErrorKind) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Kind == kind
}

// IsSaveKind reports whether err is a SaveError of the given kind.
func IsSaveKind(err error, kind SaveErrorKind) bool {
	var se *SaveError
	return errors.As(err, &se) && se.Kind == kind
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
