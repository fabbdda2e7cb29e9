package users

import "time"

// User represents a directory entry the ledger consults for role and tenant membership.
type User struct {
	ID        int64
	TenantID  int64
	Email     string
	Name      string
	Role      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
