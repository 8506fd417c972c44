// Package businessflow contains the commission engine's business logic
package businessflow

import (
	"errors"
	"fmt"

	"github.com/amirphl/commission-engine/models"
)

// Business flow error constants
var (
	// Distribution errors
	ErrConfigNotFound         = errors.New("commission config not found")
	ErrBeneficiaryNotFound    = errors.New("beneficiary not found")
	ErrAlreadyDistributed     = errors.New("commission already distributed")
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrServiceTypeRequired    = errors.New("service type is required")
	ErrTransactionRefRequired = errors.New("transaction reference must be positive")
	ErrCustomerRequired       = errors.New("customer ID is required")

	// Settlement errors
	ErrCommissionIDsRequired = errors.New("at least one commission ID is required")
	ErrFailureReasonRequired = errors.New("failure reason is required")
	ErrUserNotFound          = errors.New("user not found")

	// Commission config errors
	ErrNegativeRate              = errors.New("commission rates cannot be negative")
	ErrRateSumMismatch           = errors.New("role rates must add up to the total commission")
	ErrTotalRateOutOfRange       = errors.New("total commission must be between 0 and 100")
	ErrInvalidConfigWindow       = errors.New("config end date must be after its start date")
	ErrCommissionConfigNotFound  = errors.New("commission config not found or already inactive")
	ErrCommissionConfigsRequired = errors.New("at least one commission config is required")

	// Incident errors
	ErrIncidentNotFound = errors.New("distribution incident not found")
	ErrIncidentResolved = errors.New("distribution incident already resolved")

	// Filter errors
	ErrInvalidPageSize = errors.New("page size must be between 1 and 500")
)

// BeneficiaryNotFoundError names the hierarchy role that could not be resolved
type BeneficiaryNotFoundError struct {
	Role models.UserRole
}

func (e *BeneficiaryNotFoundError) Error() string {
	return fmt.Sprintf("%s: no active %s", ErrBeneficiaryNotFound.Error(), e.Role)
}

// Is lets errors.Is(err, ErrBeneficiaryNotFound) match any role
func (e *BeneficiaryNotFoundError) Is(target error) bool {
	return target == ErrBeneficiaryNotFound
}

func newBeneficiaryNotFound(role models.UserRole) error {
	return &BeneficiaryNotFoundError{Role: role}
}

// MissingRole extracts the unresolved role from err, if any
func MissingRole(err error) (models.UserRole, bool) {
	var bnf *BeneficiaryNotFoundError
	if errors.As(err, &bnf) {
		return bnf.Role, true
	}
	return "", false
}

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsConfigNotFound(err error) bool {
	return errors.Is(err, ErrConfigNotFound)
}

func IsBeneficiaryNotFound(err error) bool {
	return errors.Is(err, ErrBeneficiaryNotFound)
}

func IsAlreadyDistributed(err error) bool {
	return errors.Is(err, ErrAlreadyDistributed)
}

func IsInvalidAmount(err error) bool {
	return errors.Is(err, ErrInvalidAmount)
}

func IsServiceTypeRequired(err error) bool {
	return errors.Is(err, ErrServiceTypeRequired)
}

func IsTransactionRefRequired(err error) bool {
	return errors.Is(err, ErrTransactionRefRequired)
}

func IsCustomerRequired(err error) bool {
	return errors.Is(err, ErrCustomerRequired)
}

func IsCommissionIDsRequired(err error) bool {
	return errors.Is(err, ErrCommissionIDsRequired)
}

func IsFailureReasonRequired(err error) bool {
	return errors.Is(err, ErrFailureReasonRequired)
}

func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

func IsNegativeRate(err error) bool {
	return errors.Is(err, ErrNegativeRate)
}

func IsRateSumMismatch(err error) bool {
	return errors.Is(err, ErrRateSumMismatch)
}

func IsTotalRateOutOfRange(err error) bool {
	return errors.Is(err, ErrTotalRateOutOfRange)
}

func IsInvalidConfigWindow(err error) bool {
	return errors.Is(err, ErrInvalidConfigWindow)
}

func IsCommissionConfigNotFound(err error) bool {
	return errors.Is(err, ErrCommissionConfigNotFound)
}

func IsIncidentNotFound(err error) bool {
	return errors.Is(err, ErrIncidentNotFound)
}

func IsIncidentResolved(err error) bool {
	return errors.Is(err, ErrIncidentResolved)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}

// IsInvalidDistributionRequest groups the request validation failures of Distribute
func IsInvalidDistributionRequest(err error) bool {
	return IsInvalidAmount(err) || IsServiceTypeRequired(err) || IsTransactionRefRequired(err) || IsCustomerRequired(err)
}

// IsInvalidCommissionConfig groups the validation failures of a commission config
func IsInvalidCommissionConfig(err error) bool {
	return IsNegativeRate(err) || IsRateSumMismatch(err) || IsTotalRateOutOfRange(err) || IsInvalidConfigWindow(err)
}
