package models

import "time"

// User holds the account holder's profile and balance. The balance is
// mutated only through the ledger store's atomic operations.
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	CPF          string    `json:"cpf" db:"cpf"`
	Phone        string    `json:"phone" db:"phone"`
	Email        string    `json:"email" db:"email"`
	Role         string    `json:"role" db:"role"`
	BalanceCents int64     `json:"balanceCents" db:"balance_cents"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
