package services

import (
	"fmt"
)

// Kind classifies a rejection so the HTTP layer can pick a status code.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindStateConflict
	KindGateDenied
	KindNotFound
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindStateConflict:
		return "StateConflictError"
	case KindGateDenied:
		return "GateDeniedError"
	case KindNotFound:
		return "NotFoundError"
	case KindAuth:
		return "AuthError"
	default:
		return "UnknownError"
	}
}

// Error is a business-rule rejection carrying a human-readable reason.
// Two Errors match under errors.Is when their kind and code agree, so a
// sentinel still matches after WithMessage rewrites the text.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithMessage returns a copy of e with a more specific reason.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Msg: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidInput       = &Error{KindValidation, "invalid_input", "Invalid request"}
	ErrInvalidAmount      = &Error{KindValidation, "invalid_amount", "Amount must be greater than 0"}
	ErrInvalidBalanceType = &Error{KindValidation, "invalid_balance_type", "Invalid balance type"}
	ErrMissingTxHash      = &Error{KindValidation, "missing_tx_hash", "Transaction hash is required"}

	ErrTierBusy         = &Error{KindStateConflict, "tier_busy", "You already own this active node"}
	ErrAlreadyActivated = &Error{KindStateConflict, "already_activated", "Node already activated with a different transaction"}
	ErrAlreadyCompleted = &Error{KindStateConflict, "already_completed", "Node has already completed mining"}
	ErrUsernameTaken    = &Error{KindStateConflict, "username_taken", "Username already exists"}

	ErrInsufficientBalance = &Error{KindGateDenied, "insufficient_balance", "Insufficient balance"}
	ErrBelowMinimum        = &Error{KindGateDenied, "below_minimum", "Amount is below the minimum withdrawal"}
	ErrPrerequisite        = &Error{KindGateDenied, "prerequisite", "Withdrawal prerequisite not met"}
	ErrPaymentRejected     = &Error{KindGateDenied, "payment_rejected", "Invalid transaction or amount mismatch"}

	ErrUnknownTier     = &Error{KindNotFound, "unknown_tier", "Invalid node ID"}
	ErrUserNotFound    = &Error{KindNotFound, "user_not_found", "User not found"}
	ErrNodeNotFound    = &Error{KindNotFound, "node_not_found", "Node not found"}
	ErrUnknownReferral = &Error{KindNotFound, "unknown_referral_code", "Invalid referral code"}

	ErrInvalidCredentials = &Error{KindAuth, "invalid_credentials", "Invalid credentials"}
	ErrTokenExpired       = &Error{KindAuth, "token_expired", "Token expired"}
	ErrInvalidToken       = &Error{KindAuth, "invalid_token", "Invalid token"}
)
