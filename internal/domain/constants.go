package domain

const (
	RoleUser       = "USER"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPERADMIN"
)

const (
	AccountActive    = "ACTIVE"
	AccountSuspended = "SUSPENDED"
)

const (
	PaymentWaiting  = "WAITING"
	PaymentApproved = "APPROVED"
	PaymentRejected = "REJECTED"
)

// Audit action categories. Open set: ActionOther is the fallback for
// privileged mutations without a dedicated category.
const (
	ActionRoleChange          = "ROLE_CHANGE"
	ActionBalanceAdd          = "BALANCE_ADD"
	ActionBalanceSubtract     = "BALANCE_SUBTRACT"
	ActionAccountStatusChange = "ACCOUNT_STATUS_CHANGE"
	ActionPaymentDecision     = "PAYMENT_DECISION"
	ActionOther               = "OTHER"
)

// IsStaffRole reports whether role may perform privileged mutations.
func IsStaffRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// ValidRole reports whether role is one of the three known tiers.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin || role == RoleSuperAdmin
}
