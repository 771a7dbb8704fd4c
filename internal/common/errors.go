package common

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes. The set is closed: every failure the pipeline logs carries one of these.
const (
	CodeConfig       = "CONFIG_ERROR"
	CodeConnection   = "CONNECTION_ERROR"
	CodeTransfer     = "TRANSFER_ERROR"
	CodeValidation   = "VALIDATION_ERROR"
	CodeRemoteUpdate = "REMOTE_UPDATE_ERROR"
	CodePersistence  = "PERSISTENCE_ERROR"
)

// Sentinels matched with errors.Is.
var (
	ErrConfig       = errors.New("invalid configuration")
	ErrConnection   = errors.New("connection failed")
	ErrTransfer     = errors.New("transfer failed")
	ErrValidation   = errors.New("validation failed")
	ErrRemoteUpdate = errors.New("remote update rejected")
	ErrPersistence  = errors.New("persistence failed")
	ErrNotFound     = errors.New("resource not found")
)

var sentinelByCode = map[string]error{
	CodeConfig:       ErrConfig,
	CodeConnection:   ErrConnection,
	CodeTransfer:     ErrTransfer,
	CodeValidation:   ErrValidation,
	CodeRemoteUpdate: ErrRemoteUpdate,
	CodePersistence:  ErrPersistence,
}

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for e's code.
func (e *AppError) Is(target error) bool {
	s, ok := sentinelByCode[e.Code]
	return ok && s == target
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewConfigError(message string, cause error) *AppError {
	return NewAppError(CodeConfig, message, cause)
}

func NewConnectionError(message string, cause error) *AppError {
	return NewAppError(CodeConnection, message, cause)
}

func NewTransferError(message string, cause error) *AppError {
	return NewAppError(CodeTransfer, message, cause)
}

func NewValidationError(message string, cause error) *AppError {
	return NewAppError(CodeValidation, message, cause)
}

func NewPersistenceError(message string, cause error) *AppError {
	return NewAppError(CodePersistence, message, cause)
}

// RemoteUpdateError is returned when the update endpoint answers with a non-null error.
type RemoteUpdateError struct {
	Method string
	Params any
	Remote string
}

func (e *RemoteUpdateError) Error() string {
	body, err := json.Marshal(e.Params)
	if err != nil {
		body = []byte(fmt.Sprintf("%v", e.Params))
	}
	return fmt.Sprintf("%s: error calling %s with param %s: %s", CodeRemoteUpdate, e.Method, body, e.Remote)
}

func (e *RemoteUpdateError) Is(target error) bool {
	return target == ErrRemoteUpdate
}

// KindOf returns the error code carried by err, or "" when err is outside the taxonomy.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, code := range []string{CodeConnection, CodeTransfer, CodeValidation, CodeRemoteUpdate, CodePersistence, CodeConfig} {
		if errors.Is(err, sentinelByCode[code]) {
			return code
		}
	}
	return ""
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
