package authz

const (
	RoleTenant    = "tenant"
	RoleOwner     = "owner"
	RoleAdmin     = "admin"
	RoleObserver  = "observer"
	RoleAnonymous = "anonymous"
)

const (
	ActionRead     = "read"
	ActionRequest  = "request"
	ActionSign     = "sign"
	ActionReject   = "reject"
	ActionDelegate = "delegate"
	ActionInvite   = "invite"
)

const ObjectSigningWorkflow = "signing.workflow"
