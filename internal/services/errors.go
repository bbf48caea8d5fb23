package services

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed set of settlement failure reasons surfaced to callers
type ErrorCode string

const (
	CodeInvalidAmount      ErrorCode = "INVALID_AMOUNT"
	CodeInvalidSide        ErrorCode = "INVALID_SIDE"
	CodeInvalidWager       ErrorCode = "INVALID_WAGER"
	CodeWagerNotFound      ErrorCode = "WAGER_NOT_FOUND"
	CodeWagerNotActive     ErrorCode = "WAGER_NOT_ACTIVE"
	CodeWagerExpired       ErrorCode = "WAGER_EXPIRED"
	CodeWagerNotEnded      ErrorCode = "WAGER_NOT_ENDED"
	CodeNotAuthorized      ErrorCode = "NOT_AUTHORIZED"
	CodeAccountNotFound    ErrorCode = "ACCOUNT_NOT_FOUND"
	CodeInvalidDestination ErrorCode = "INVALID_DESTINATION"
	CodeNoFundingSource    ErrorCode = "NO_FUNDING_SOURCE"
	CodeInsufficientFunds  ErrorCode = "INSUFFICIENT_FUNDS"
	CodeLedgerUnavailable  ErrorCode = "LEDGER_UNAVAILABLE"
	CodeTransferFailed     ErrorCode = "TRANSFER_FAILED"
	CodeTransferPending    ErrorCode = "TRANSFER_PROCESSING"
	CodeAlreadyResolved    ErrorCode = "ALREADY_RESOLVED"
	CodeInvalidDraft       ErrorCode = "INVALID_DRAFT"
)

var defaultMessages = map[ErrorCode]string{
	CodeInvalidAmount:      "amount must be greater than zero",
	CodeInvalidSide:        "side must be side_1 or side_2",
	CodeInvalidWager:       "invalid wager",
	CodeWagerNotFound:      "wager not found",
	CodeWagerNotActive:     "wager is not accepting bets",
	CodeWagerExpired:       "wager has ended",
	CodeWagerNotEnded:      "wager has not ended",
	CodeNotAuthorized:      "only the wager creator can do this",
	CodeAccountNotFound:    "account not found",
	CodeInvalidDestination: "invalid destination address",
	CodeNoFundingSource:    "no token account to fund the bet from",
	CodeInsufficientFunds:  "insufficient funds",
	CodeLedgerUnavailable:  "ledger unavailable, try again",
	CodeTransferFailed:     "transfer failed",
	CodeTransferPending:    "transfer is processing",
	CodeAlreadyResolved:    "winner already assigned",
	CodeInvalidDraft:       "invalid draft input",
}

// SettlementError carries a code callers switch on plus an optional detail
type SettlementError struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *SettlementError) Error() string {
	msg := defaultMessages[e.Code]
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// Is matches any SettlementError with the same code, so errors.Is(err, ErrInsufficientFunds) works
func (e *SettlementError) Is(target error) bool {
	t, ok := target.(*SettlementError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidAmount      = &SettlementError{Code: CodeInvalidAmount}
	ErrInvalidSide        = &SettlementError{Code: CodeInvalidSide}
	ErrInvalidWager       = &SettlementError{Code: CodeInvalidWager}
	ErrWagerNotFound      = &SettlementError{Code: CodeWagerNotFound}
	ErrWagerNotActive     = &SettlementError{Code: CodeWagerNotActive}
	ErrWagerExpired       = &SettlementError{Code: CodeWagerExpired}
	ErrWagerNotEnded      = &SettlementError{Code: CodeWagerNotEnded}
	ErrNotAuthorized      = &SettlementError{Code: CodeNotAuthorized}
	ErrAccountNotFound    = &SettlementError{Code: CodeAccountNotFound}
	ErrInvalidDestination = &SettlementError{Code: CodeInvalidDestination}
	ErrNoFundingSource    = &SettlementError{Code: CodeNoFundingSource}
	ErrInsufficientFunds  = &SettlementError{Code: CodeInsufficientFunds}
	ErrLedgerUnavailable  = &SettlementError{Code: CodeLedgerUnavailable}
	ErrTransferFailed     = &SettlementError{Code: CodeTransferFailed}
	ErrTransferProcessing = &SettlementError{Code: CodeTransferPending}
	ErrAlreadyResolved    = &SettlementError{Code: CodeAlreadyResolved}
	ErrInvalidDraft       = &SettlementError{Code: CodeInvalidDraft}
)

func withReason(base *SettlementError, reason string) error {
	return &SettlementError{Code: base.Code, Reason: reason}
}

func wrapCause(base *SettlementError, err error) error {
	return &SettlementError{Code: base.Code, Err: err}
}

// TransferFailed builds the execution failure returned after a pending record was written
func TransferFailed(reason string) error {
	return withReason(ErrTransferFailed, reason)
}

// CodeOf extracts the settlement code from err, if it carries one
func CodeOf(err error) (ErrorCode, bool) {
	var se *SettlementError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}
