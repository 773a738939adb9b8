package hourbank

import (
	"errors"
	"fmt"

	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("hourbank: not found")
	ErrAlreadyExists = errors.New("hourbank: already exists")
	ErrInvalidInput  = errors.New("hourbank: invalid input")

	// Entity errors
	ErrCustomerNotFound    = errors.New("hourbank: customer not found")
	ErrLotNotFound         = errors.New("hourbank: credit lot not found")
	ErrAppointmentNotFound = errors.New("hourbank: appointment not found")
	ErrNotScheduled        = errors.New("hourbank: appointment is not scheduled")

	// Debit errors
	ErrInvalidRequest      = errors.New("hourbank: invalid debit request")
	ErrInsufficientBalance = errors.New("hourbank: insufficient hour balance")
	ErrStorageConflict     = errors.New("hourbank: concurrent modification conflict")

	// Store errors
	ErrStoreClosed     = errors.New("hourbank: store is closed")
	ErrMigrationFailed = errors.New("hourbank: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("hourbank: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// InsufficientBalanceError carries the numbers behind a rejected debit.
type InsufficientBalanceError struct {
	CustomerID id.CustomerID
	Requested  types.Hours
	Available  types.Hours
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: customer %s requested %s h, %s h available",
		ErrInsufficientBalance.Error(), e.CustomerID, e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// Shortfall returns how many hours the customer is missing.
func (e *InsufficientBalanceError) Shortfall() types.Hours {
	return e.Requested.Sub(e.Available)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrLotNotFound) ||
		errors.Is(err, ErrAppointmentNotFound)
}

// IsBalanceError returns true if a debit was refused on its merits
// (bad amount or not enough hours) rather than because of the store.
func IsBalanceError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsRetryable returns true if the operation failed on a transient
// conflict and can be retried as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageConflict)
}
