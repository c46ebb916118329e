package services

import (
	"fmt"
	"math"
)

// Fee schedule: the processor charges a fixed R$1,00 per operation and
// the platform keeps 4% of the gross on deposits. Withdrawals carry the
// processor fee only.
const (
	ProcessorFeeCents = 100
	OwnFeeRate        = 0.04
)

// DepositFees is the fee split for a deposit. NetCents is what gets
// credited to the account once the processor confirms the payment.
type DepositFees struct {
	OwnFeeCents       int64
	ProcessorFeeCents int64
	NetCents          int64
}

// WithdrawalFees is the fee split for a withdrawal. TotalDebitCents is
// what gets debited from the account.
type WithdrawalFees struct {
	ProcessorFeeCents int64
	TotalDebitCents   int64
}

// ComputeDepositFees splits a gross deposit amount into the platform
// fee, the processor fee and the net credit. The single rounding point
// is the percentage fee (half away from zero); everything downstream
// stays integer cents.
func ComputeDepositFees(grossCents int64) (DepositFees, error) {
	if grossCents <= 0 {
		return DepositFees{}, ErrInvalidAmount
	}

	ownFee := int64(math.Round(float64(grossCents) * OwnFeeRate))
	net := grossCents - ownFee - ProcessorFeeCents

	if net <= 0 {
		return DepositFees{}, fmt.Errorf("%w: fees exceed deposit value", ErrInvalidAmount)
	}

	return DepositFees{
		OwnFeeCents:       ownFee,
		ProcessorFeeCents: ProcessorFeeCents,
		NetCents:          net,
	}, nil
}

// ComputeWithdrawalFees computes the total debit for a withdrawal.
// The platform charges no fee of its own on withdrawals.
func ComputeWithdrawalFees(grossCents int64) (WithdrawalFees, error) {
	if grossCents <= 0 {
		return WithdrawalFees{}, ErrInvalidAmount
	}

	return WithdrawalFees{
		ProcessorFeeCents: ProcessorFeeCents,
		TotalDebitCents:   grossCents + ProcessorFeeCents,
	}, nil
}

// FormatCents renders an integer cent amount as a two-decimal string
// for API responses. The float conversion is display-only; all stored
// amounts and arithmetic remain integer cents.
func FormatCents(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}
