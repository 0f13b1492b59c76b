// Package errors provides the error taxonomy shared by the gateway's
// context-synchronization and coordination core.
//
// # Error Types
//
// Domain-specific errors carry subsystem context:
//   - SyncError: failures inside the context synchronizer (conversation, key)
//   - CoordinatorError: failures inside the cross-session coordinator (operation, session)
//   - DeliveryError: a single session's sync or notification delivery failed
//
// Semantic errors represent common error conditions:
//   - NotFoundError: conversation, version, approval, operation or resource is unknown
//   - AlreadyExistsError: resource already exists
//   - ValidationError: caller violated a precondition
//   - TimeoutError: an operation ran past its deadline
//
// Conflicts and operation timeouts are not returned as errors by the core;
// they are recorded as state. TimeoutError exists so collaborators that do
// want to surface a timed-out operation to a user have a typed value to use.
//
// # Usage
//
//	err := errors.NewNotFoundError("conversation", "c1")
//	if errors.Is(err, &errors.NotFoundError{}) { ... }
//
//	err := errors.NewValidationError("agent is not a participant").
//		WithField("agentId").WithValue("b").WithCause(errors.ErrNotParticipant)
//	if errors.Is(err, errors.ErrInvalidInput) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions so callers import a single package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Synchronizer sentinel errors
var (
	// ErrNotParticipant indicates that an agent wrote to a conversation it does not participate in.
	ErrNotParticipant = New("agent is not a conversation participant")
	// ErrUnencodableValue indicates that a context value cannot be serialized.
	ErrUnencodableValue = New("context value cannot be encoded")
)

// Coordinator sentinel errors
var (
	// ErrSessionNotRegistered indicates that a session id is not known to the coordinator.
	ErrSessionNotRegistered = New("session not registered")
	// ErrOperationTerminal indicates a transition was requested on a finished operation.
	ErrOperationTerminal = New("operation already in a terminal state")
	// ErrResourceNotHeld indicates a release by a session that holds no lock on the resource.
	ErrResourceNotHeld = New("resource not held by session")
	// ErrResourceBusy indicates that a lock could not be granted.
	ErrResourceBusy = New("resource is locked")
)

// General sentinel errors
var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = New("not found")
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrDeliveryFailed indicates that delivery to a session failed.
	ErrDeliveryFailed = New("delivery failed")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// GatewayError is implemented by every error type in this package.
type GatewayError interface {
	error
	Unwrap() error
	Is(target error) bool
	Severity() Severity
	// IsRetryable reports whether the operation may succeed if repeated.
	IsRetryable() bool
	// IsUserFacing reports whether the message is safe to show to an assistant or user.
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }

func (e *baseError) IsRetryable() bool { return e.retryable }

func (e *baseError) IsUserFacing() bool { return e.userFacing }

// format renders "kind [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SyncError represents failures inside the context synchronizer.
//
// Example:
//
//	err := errors.NewSyncError("snapshot failed", cause).WithConversation("c1").WithKey("x")
//	fmt.Println(err) // "sync error [conversation=c1, key=x]: snapshot failed: ..."
type SyncError struct {
	baseError
	ConversationID string
	Key            string
}

// NewSyncError creates a new SyncError.
func NewSyncError(message string, cause error) *SyncError {
	return &SyncError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithConversation adds a conversation ID to the error context.
func (e *SyncError) WithConversation(id string) *SyncError {
	e.ConversationID = id
	return e
}

// WithKey adds a context key to the error context.
func (e *SyncError) WithKey(key string) *SyncError {
	e.Key = key
	return e
}

// WithSeverity sets the error severity.
func (e *SyncError) WithSeverity(s Severity) *SyncError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *SyncError) Error() string {
	var parts []string
	if e.ConversationID != "" {
		parts = append(parts, "conversation="+e.ConversationID)
	}
	if e.Key != "" {
		parts = append(parts, "key="+e.Key)
	}
	return e.format("sync error", parts)
}

// Is checks if this error matches the target.
func (e *SyncError) Is(target error) bool {
	if _, ok := target.(*SyncError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CoordinatorError represents failures inside the cross-session coordinator.
//
// Example:
//
//	err := errors.NewCoordinatorError("cannot complete", errors.ErrOperationTerminal).
//		WithOperation("op-deploy-x").WithStatus("failed")
type CoordinatorError struct {
	baseError
	OperationID string
	SessionID   string
	Status      string
}

// NewCoordinatorError creates a new CoordinatorError.
func NewCoordinatorError(message string, cause error) *CoordinatorError {
	return &CoordinatorError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithOperation adds an operation ID to the error context.
func (e *CoordinatorError) WithOperation(id string) *CoordinatorError {
	e.OperationID = id
	return e
}

// WithSession adds a session ID to the error context.
func (e *CoordinatorError) WithSession(id string) *CoordinatorError {
	e.SessionID = id
	return e
}

// WithStatus adds the operation status observed when the error occurred.
func (e *CoordinatorError) WithStatus(status string) *CoordinatorError {
	e.Status = status
	return e
}

// Error returns the formatted error message.
func (e *CoordinatorError) Error() string {
	var parts []string
	if e.OperationID != "" {
		parts = append(parts, "operation="+e.OperationID)
	}
	if e.SessionID != "" {
		parts = append(parts, "session="+e.SessionID)
	}
	if e.Status != "" {
		parts = append(parts, "status="+e.Status)
	}
	return e.format("coordinator error", parts)
}

// Is checks if this error matches the target.
func (e *CoordinatorError) Is(target error) bool {
	if _, ok := target.(*CoordinatorError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// DeliveryError records that pushing state or a notification to one session
// failed. It is isolated per session and never aborts a fan-out.
type DeliveryError struct {
	baseError
	SessionID string
}

// NewDeliveryError creates a new DeliveryError.
func NewDeliveryError(sessionID string, cause error) *DeliveryError {
	return &DeliveryError{
		baseError: baseError{
			message:   "delivery to session failed",
			cause:     cause,
			severity:  SeverityWarning,
			retryable: true,
		},
		SessionID: sessionID,
	}
}

// Error returns the formatted error message.
func (e *DeliveryError) Error() string {
	return e.format("delivery error", []string{"session=" + e.SessionID})
}

// Is checks if this error matches the target.
func (e *DeliveryError) Is(target error) bool {
	if _, ok := target.(*DeliveryError); ok {
		return true
	}
	if target == ErrDeliveryFailed {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("conversation", "c1")
//	fmt.Println(err) // "conversation 'c1' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if target == ErrNotFound {
		return true
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError represents a resource that already exists.
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents a violated precondition: unknown session,
// non-participant agent, missing required field.
//
// Example:
//
//	err := errors.NewValidationError("session id cannot be empty").WithField("sessionId")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that ran past its deadline.
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var gwErr GatewayError
	if As(err, &gwErr) {
		return gwErr.IsRetryable()
	}
	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to return to a
// tool caller verbatim.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var gwErr GatewayError
	if As(err, &gwErr) {
		return gwErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Unknown errors are SeverityError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var gwErr GatewayError
	if As(err, &gwErr) {
		return gwErr.Severity()
	}
	return SeverityError
}

// IsSemanticError returns true for NotFound, AlreadyExists, Validation and
// Timeout errors.
func IsSemanticError(err error) bool {
	if err == nil {
		return false
	}

	var notFound *NotFoundError
	var alreadyExists *AlreadyExistsError
	var validation *ValidationError
	var timeout *TimeoutError

	return As(err, &notFound) || As(err, &alreadyExists) ||
		As(err, &validation) || As(err, &timeout)
}

// IsPrecondition reports whether err is a caller-side failure (NotFound or
// Validation). These are logged at error level by the component that
// returns them and never retried.
func IsPrecondition(err error) bool {
	return Is(err, ErrNotFound) || Is(err, ErrInvalidInput)
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
