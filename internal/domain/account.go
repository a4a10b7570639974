// Package domain holds the types and errors shared across the service layers.
package domain

import "errors"

var (
	// ErrAccountExists indicates a registration with an already taken name.
	ErrAccountExists = errors.New("account name already taken")
	// ErrInvalidName indicates a registration with an empty name.
	ErrInvalidName = errors.New("invalid account name")
	// ErrAccountNotFound indicates no account matched the given name (and hash, if checked).
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountBusy indicates the account is checked out by a live session.
	ErrAccountBusy = errors.New("account in use by another session")
	// ErrRecordMismatch indicates the ledger file and the in-memory index disagree.
	ErrRecordMismatch = errors.New("ledger record does not match account")
)

// MaxNameLen bounds account names; longer names are truncated silently.
const MaxNameLen = 30

// Account is a bank account. Balance is in minor currency units (cents).
//
// A *Account returned by the ledger store is shared: the store keeps it in
// its index and a session mutates it in place while the account is checked
// out. Mutations reach disk only through the store's Commit and
// CreditByName paths.
type Account struct {
	Name    string
	PwHash  uint64
	Balance uint64
}

// NewAccount builds a zero-balance account, truncating the name to MaxNameLen.
func NewAccount(name string, pwHash uint64) *Account {
	return &Account{Name: TruncateName(name), PwHash: pwHash}
}

// TruncateName bounds a name to MaxNameLen. The truncated form is the
// account's identity everywhere, lookups included, so a name typed longer
// than the bound still reaches the same record.
func TruncateName(name string) string {
	if len(name) > MaxNameLen {
		return name[:MaxNameLen]
	}
	return name
}
