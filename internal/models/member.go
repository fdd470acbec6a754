package models

// Member represents a participant in one or more groups.
//
// Members are owned by the surrounding application (registration, profile
// edits); the ledger only reads them.
type Member struct {
	// ID is the opaque unique identifier of the member.
	ID string `json:"id"`

	// DisplayName is the human-readable name shown in balances and suggestions.
	DisplayName string `json:"display_name"`
}
