package services

import (
	"errors"
	"fmt"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации
	ErrValidationFailed   = errors.New("validation failed")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrInvalidCredentials = errors.New("invalid login or password")

	// Конфликты
	ErrStudyCodeConflict       = errors.New("study code already exists")
	ErrParticipantConflict     = errors.New("participant is already registered")
	ErrParticipantEmailTaken   = errors.New("email already used by another participant of this study")
	ErrResearcherUsernameTaken = errors.New("username is already taken")
	ErrResearcherEmailTaken    = errors.New("email is already taken")

	// Доступ
	ErrForbiddenOperation = errors.New("operation not allowed for the current researcher")

	ErrStudyNotFound       = errors.New("study not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrMatchNotFound       = errors.New("match not found")

	// ErrSyncFailed matches every *SyncError.
	ErrSyncFailed = errors.New("match sync failed")
)

// ValidationError carries field-level messages, e.g. {"email": "..."}.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// SyncError is returned by the merge engine for any failure. The cause stays
// reachable through errors.Is / errors.As.
type SyncError struct {
	ParticipantID string
	Err           error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync participant %s: %v", e.ParticipantID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func (e *SyncError) Is(target error) bool {
	return target == ErrSyncFailed
}
