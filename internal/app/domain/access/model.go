package access

import "time"

// Role names recognized by the access control service.
const (
	RoleAdmin       = "admin"
	RoleDistributor = "distributor"
	RoleProcessor   = "processor"
	RoleArbiter     = "arbiter"
	RoleMinter      = "minter"
)

// Grant records one role assignment.
type Grant struct {
	Role      string
	Account   string
	GrantedBy string
	GrantedAt time.Time
}
