package topics

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("topics: validation failed")
	// ErrForbidden marks an authorization failure.
	ErrForbidden = errors.New("topics: forbidden")
	// ErrNotFound marks an unknown, malformed, or deleted share code.
	ErrNotFound = errors.New("topics: not found")
	// ErrInvalidChoice marks a vote for an option the topic does not offer.
	ErrInvalidChoice = errors.New("topics: invalid choice")
	// ErrTooManyChoices marks a multi-choice ballot on a single-select topic.
	ErrTooManyChoices = errors.New("topics: too many choices")
	// ErrDuplicateAnswer marks an option that already exists on the topic.
	ErrDuplicateAnswer = errors.New("topics: duplicate answer")
	// ErrConflict marks a uniqueness race that outlived its retries.
	ErrConflict = errors.New("topics: conflict")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingCodeSource = errors.New("share code generator is required")
)

// ServiceError carries a dotted operation code plus the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the "<operation>.<reason>" identifier.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// isDomainError reports whether err belongs to the caller-facing taxonomy.
func isDomainError(err error) bool {
	for _, sentinel := range []error{ErrValidation, ErrForbidden, ErrNotFound, ErrInvalidChoice, ErrTooManyChoices, ErrDuplicateAnswer} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// isUniqueViolation recognizes constraint failures across the supported drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := err.Error()
	return strings.Contains(message, "UNIQUE constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint") ||
		strings.Contains(message, "SQLSTATE 23505")
}
