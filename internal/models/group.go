package models

import "time"

// Group represents a named roster of members sharing expenses.
//
// The ledger never changes membership; it only asks who belongs to a group
// when validating splits and settlements.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Roommates", "Ski Trip").
	Name string `json:"name"`

	// Members is the roster in join order. Equal splits hand out remainder
	// cents in this order.
	Members []Member `json:"members"`

	// CreatedAt is when the group was created.
	CreatedAt time.Time `json:"created_at"`
}

// MemberIDs returns the roster IDs in join order.
func (g *Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

// HasMember reports whether memberID is on the roster.
func (g *Group) HasMember(memberID string) bool {
	for _, m := range g.Members {
		if m.ID == memberID {
			return true
		}
	}
	return false
}

// Member looks up a roster entry by ID.
func (g *Group) Member(memberID string) (Member, bool) {
	for _, m := range g.Members {
		if m.ID == memberID {
			return m, true
		}
	}
	return Member{}, false
}
