// README: Pure checks deciding whether an account may sign in or claim orders.
package account

import (
	"fmt"

	"giftwave/internal/apperr"
)

// CheckSignIn applies the blocked flag first, then rider approval.
func CheckSignIn(u *User) error {
	if u.IsBlocked {
		reason := u.BlockedReason
		if reason == "" {
			reason = "Contact support"
		}
		return apperr.NotEligible("Account is blocked: " + reason)
	}
	if !u.IsRider() {
		return nil
	}
	switch u.RiderStatus {
	case RiderApproved:
		return nil
	case RiderPending:
		return apperr.NotEligible("Your rider application is still pending review. Please wait for admin approval.")
	case RiderRejected:
		return apperr.NotEligible(fmt.Sprintf(
			"Your rider application was rejected. Reason: %s. Please contact support if you believe this is an error.",
			reasonOrDefault(u.StatusReason)))
	case RiderBanned:
		return apperr.NotEligible(fmt.Sprintf(
			"Your rider account has been banned. Reason: %s. Please contact support for more information.",
			reasonOrDefault(u.StatusReason)))
	}
	return apperr.NotEligible("Your rider account status is unknown. Please contact support.")
}

// CheckClaim requires an approved, unblocked rider.
func CheckClaim(u *User) error {
	if !u.IsRider() {
		return apperr.NotEligible("Only approved riders can accept orders")
	}
	return CheckSignIn(u)
}

func reasonOrDefault(r string) string {
	if r == "" {
		return "No reason provided"
	}
	return r
}
