package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrOptimisticLockFailed = errors.New("optimistic lock failed")
	ErrInvalidInput         = errors.New("invalid input")

	ErrCartNotFound         = errors.New("cart not found")
	ErrCartItemNotFound     = errors.New("cart item not found")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrOrderNotCancellable  = errors.New("order can no longer be cancelled")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrCommissionNotFound   = errors.New("commission not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNoCommissions        = errors.New("no commissions available for payout")
	ErrPayoutBelowMinimum   = errors.New("payout amount below minimum")
	ErrPayoutNotFound       = errors.New("payout not found")
	ErrPetNotFound          = errors.New("pet not found")
	ErrAlertNotFound        = errors.New("lost pet alert not found")
	ErrAlertClosed          = errors.New("lost pet alert is no longer active")
	ErrLocationNotFound     = errors.New("location not found")
	ErrStaffNotFound        = errors.New("staff member not found")
	ErrInvalidShift         = errors.New("shift must end after it starts")
	ErrShiftOverlap         = errors.New("shift overlaps an existing shift")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
	ErrNotParticipant       = errors.New("user is not a participant of this conversation")
	ErrPolicyNotFound       = errors.New("insurance policy not found")
	ErrInactivePolicy       = errors.New("insurance policy is not active")
	ErrClaimNotFound        = errors.New("insurance claim not found")
	ErrCampaignNotFound     = errors.New("ad campaign not found")
	ErrCampaignInactive     = errors.New("ad campaign is not active")
)

// OutOfStockError names the product that blocked an order.
type OutOfStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %q is out of stock: requested %d, available %d", e.Name, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error {
	return ErrInsufficientStock
}
