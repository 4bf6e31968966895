package types

import (
	"strings"
	"time"
)

type Role string

const (
	RoleTenant Role = "tenant"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

// Roles lists the signing roles in the order their signatures are required.
var Roles = []Role{RoleTenant, RoleOwner, RoleAdmin}

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleTenant:
		return RoleTenant, true
	case RoleOwner:
		return RoleOwner, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Order returns the 1-based position of the role in the signing chain, 0 if unknown.
func (r Role) Order() int {
	switch r {
	case RoleTenant:
		return 1
	case RoleOwner:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

func (r Role) Valid() bool { return r.Order() > 0 }

// Prerequisite returns the role that must have signed before r, if any.
func (r Role) Prerequisite() (Role, bool) {
	switch r {
	case RoleOwner:
		return RoleTenant, true
	case RoleAdmin:
		return RoleOwner, true
	default:
		return "", false
	}
}

// Next returns the role whose signature follows r, if any.
func (r Role) Next() (Role, bool) {
	switch r {
	case RoleTenant:
		return RoleOwner, true
	case RoleOwner:
		return RoleAdmin, true
	default:
		return "", false
	}
}

type State string

const (
	StateDraft                  State = "draft"
	StatePendingTenantSignature State = "pending_tenant_signature"
	StatePendingOwnerSignature  State = "pending_owner_signature"
	StatePendingAdminApproval   State = "pending_admin_approval"
	StateActive                 State = "active"
	StateRejected               State = "rejected"
)

// legacySentForSignatures is read back as pending_tenant_signature.
const legacySentForSignatures = "sent_for_signatures"

func ParseState(raw string) (State, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == legacySentForSignatures {
		return StatePendingTenantSignature, true
	}
	switch State(v) {
	case StateDraft, StatePendingTenantSignature, StatePendingOwnerSignature, StatePendingAdminApproval, StateActive, StateRejected:
		return State(v), true
	default:
		return "", false
	}
}

func (s State) Terminal() bool { return s == StateActive || s == StateRejected }

// PendingRole is the role whose signature the state is waiting for.
func (s State) PendingRole() (Role, bool) {
	switch s {
	case StatePendingTenantSignature:
		return RoleTenant, true
	case StatePendingOwnerSignature:
		return RoleOwner, true
	case StatePendingAdminApproval:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// StateAfter is the state reached once role has signed.
func StateAfter(role Role) State {
	switch role {
	case RoleTenant:
		return StatePendingOwnerSignature
	case RoleOwner:
		return StatePendingAdminApproval
	case RoleAdmin:
		return StateActive
	default:
		return ""
	}
}

// StateAwaiting is the state in which role is expected to sign.
func StateAwaiting(role Role) State {
	switch role {
	case RoleTenant:
		return StatePendingTenantSignature
	case RoleOwner:
		return StatePendingOwnerSignature
	case RoleAdmin:
		return StatePendingAdminApproval
	default:
		return ""
	}
}

type Signer struct {
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
}

type SignatureRecord struct {
	Role          Role      `json:"role"`
	SignerName    string    `json:"signer_name"`
	SignerContact string    `json:"signer_contact,omitempty"`
	SignedAt      time.Time `json:"signed_at"`
	OriginHint    string    `json:"origin_hint,omitempty"`
	DelegatedFrom string    `json:"delegated_from,omitempty"`
}

// Assignee overrides the default signer of the pending stage.
type Assignee struct {
	Role        Role      `json:"role"`
	Signer      Signer    `json:"signer"`
	DelegatedBy string    `json:"delegated_by,omitempty"`
	DelegatedAt time.Time `json:"delegated_at"`
}

type Workflow struct {
	ContractID          string
	State               State
	SentForSignaturesAt *time.Time
	RequestedBy         string
	Signatures          []SignatureRecord
	PendingAssignee     *Assignee
	RejectedAt          *time.Time
	RejectReason        string
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func NewDraft(contractID string, now time.Time) Workflow {
	return Workflow{
		ContractID: contractID,
		State:      StateDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy so transitions never alias the caller's slices or pointers.
func (w Workflow) Clone() Workflow {
	out := w
	if w.SentForSignaturesAt != nil {
		t := *w.SentForSignaturesAt
		out.SentForSignaturesAt = &t
	}
	if w.RejectedAt != nil {
		t := *w.RejectedAt
		out.RejectedAt = &t
	}
	if w.PendingAssignee != nil {
		a := *w.PendingAssignee
		out.PendingAssignee = &a
	}
	if w.Signatures != nil {
		out.Signatures = append([]SignatureRecord(nil), w.Signatures...)
	}
	return out
}
