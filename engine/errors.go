/*
errors.go - Centralized error taxonomy for the obligation engine

PURPOSE:
  All sentinel errors in one place. The taxonomy matters more than the
  individual messages: callers decide skip-and-log versus abort based on
  which class an error belongs to.

CATEGORIES:
  1. Configuration errors - the work's recurrence setup cannot produce
     periods. Skipped and logged; never aborts work creation.
  2. Idempotency conflicts - duplicate period/task inserts. Resolved locally
     by conflict-skip; never user-visible.
  3. Not-found errors - referenced rows missing. Surface as 404s.
  4. Billing skips - no billable amount, already billed. Logged, never fatal.
  5. Everything else propagates and aborts the enclosing transaction.

USAGE:
  if errors.Is(err, engine.ErrBadConfiguration) {
      log.Printf("[Work] skipping period generation: %v", err)
  }
*/
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrBadConfiguration is the root of the configuration error class.
	ErrBadConfiguration = errors.New("invalid recurrence configuration")

	// ErrMissingAnchor means a recurring work has no start date to anchor
	// period generation on.
	ErrMissingAnchor = fmt.Errorf("%w: missing anchor start date", ErrBadConfiguration)

	// ErrUnknownPattern means the recurrence pattern is not one the period
	// calculator understands.
	ErrUnknownPattern = fmt.Errorf("%w: unknown recurrence pattern", ErrBadConfiguration)

	// ErrDuplicatePeriod is returned by stores when a period with the same
	// (work, start date) already exists. Expected during re-entrant backfill.
	ErrDuplicatePeriod = errors.New("period already exists for work and start date")

	// Not-found sentinels.
	ErrWorkNotFound    = errors.New("work not found")
	ErrServiceNotFound = errors.New("service not found")
	ErrPeriodNotFound  = errors.New("period not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrNoBillableAmount means no positive amount could be resolved from the
	// period override, the work amount, or the service default price.
	ErrNoBillableAmount = errors.New("no billable amount resolved")
)

// ConfigError carries which work and field failed validation.
type ConfigError struct {
	WorkID string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("work %s: invalid %s: %s", e.WorkID, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrBadConfiguration }

// IsConfigError reports whether the affected operation should be skipped and
// logged instead of aborting the enclosing transaction.
func IsConfigError(err error) bool { return errors.Is(err, ErrBadConfiguration) }

// IsNotFound reports whether the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkNotFound) ||
		errors.Is(err, ErrServiceNotFound) ||
		errors.Is(err, ErrPeriodNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrInvoiceNotFound)
}
