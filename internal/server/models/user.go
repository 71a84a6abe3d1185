package models

import "time"

// User is an account on the sync server. Salt and Verifier come from
// cryptox.DeriveMasterKey and cryptox.MakeVerifier; the password itself is
// never stored.
type User struct {
	ID           string
	UserName     string
	Salt         []byte
	Verifier     []byte
	CreatedAt    time.Time
	LastSyncedAt *time.Time
}
