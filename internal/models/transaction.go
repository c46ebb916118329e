package models

import (
	"time"
)

// Transaction kinds.
const (
	KindDeposit    = "DEPOSIT"
	KindWithdrawal = "WITHDRAWAL"
)

// Ledger entry statuses. An entry moves from PENDING to exactly one
// terminal status and never back.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRefused  = "REFUSED"
)

// LedgerEntry is the system's record of one deposit or withdrawal,
// reconciled against the payment processor's own record. All monetary
// fields are integer cents.
type LedgerEntry struct {
	ID                string    `json:"id" db:"id"`
	ExternalID        string    `json:"externalId,omitempty" db:"external_id"` // processor-assigned, may be empty until the processor responds
	UserID            string    `json:"userId" db:"user_id"`
	Kind              string    `json:"kind" db:"kind"`
	GrossCents        int64     `json:"grossCents" db:"gross_cents"`
	NetCents          int64     `json:"netCents" db:"net_cents"`
	OwnFeeCents       int64     `json:"ownFeeCents" db:"own_fee_cents"`
	ProcessorFeeCents int64     `json:"processorFeeCents" db:"processor_fee_cents"`
	Status            string    `json:"status" db:"status"`
	PixKey            string    `json:"pixKey,omitempty" db:"pix_key"`
	PixKeyType        string    `json:"pixKeyType,omitempty" db:"pix_key_type"`
	Description       string    `json:"description" db:"description"`
	QRCodeURL         string    `json:"qrcodeUrl,omitempty" db:"qrcode_url"`
	CopyPaste         string    `json:"copyPaste,omitempty" db:"copy_paste"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}

// Terminal reports whether the entry has reached a final status.
func (e *LedgerEntry) Terminal() bool {
	return e.Status != StatusPending
}
