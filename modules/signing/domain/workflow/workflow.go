// Package workflow is the signature approval state machine.
//
// Every transition is a pure function: it takes the current aggregate by value,
// checks all preconditions before touching anything, and returns the new aggregate
// plus the events to emit. Callers persist the returned aggregate or drop it; the
// input is never modified.
package workflow

import (
	"strings"
	"time"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/ledger"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

// Emission is an event produced by a transition, before it is given an id.
type Emission struct {
	Type    types.EventType
	Payload any
}

type RequestInput struct {
	RequestedBy string
	Tenant      types.Signer
	Owner       types.Signer
}

type SignInput struct {
	Role          types.Role
	ActingAs      types.Role
	SignerName    string
	SignerContact string
	OriginHint    string
	// DefaultSignerName is recorded as DelegatedFrom when a delegated identity signs.
	DefaultSignerName string
}

type RejectInput struct {
	Reason     string
	RejectedBy string
}

type DelegateInput struct {
	Role        types.Role
	ToName      string
	ToContact   string
	CCRequester bool
	RequestedBy string
}

func RequestSignatures(wf types.Workflow, in RequestInput, now time.Time) (types.Workflow, []Emission, error) {
	if wf.State.Terminal() {
		return types.Workflow{}, nil, terminal(wf.State)
	}
	if wf.State != types.StateDraft {
		e := types.NewError(types.KindInvalidTransition, "signatures were already requested (state %s)", wf.State)
		e.State = wf.State
		return types.Workflow{}, nil, e
	}

	next := wf.Clone()
	sentAt := now
	next.SentForSignaturesAt = &sentAt
	next.RequestedBy = strings.TrimSpace(in.RequestedBy)
	next.State = types.StatePendingTenantSignature
	next.UpdatedAt = now
	if err := CheckConsistency(next); err != nil {
		return types.Workflow{}, nil, err
	}

	return next, []Emission{{
		Type: types.EventSignaturesRequested,
		Payload: types.SignaturesRequested{
			ContractID:    wf.ContractID,
			TenantName:    in.Tenant.Name,
			TenantContact: in.Tenant.Contact,
			OwnerName:     in.Owner.Name,
			OwnerContact:  in.Owner.Contact,
			RequestedBy:   next.RequestedBy,
		},
	}}, nil
}

func Sign(wf types.Workflow, in SignInput, now time.Time) (types.Workflow, []Emission, error) {
	if wf.State.Terminal() {
		return types.Workflow{}, nil, terminal(wf.State)
	}
	if !in.Role.Valid() {
		return types.Workflow{}, nil, types.NewError(types.KindInvalidArgument, "unknown role %q", in.Role)
	}
	if in.ActingAs != in.Role {
		e := types.NewError(types.KindRoleMismatch, "acting as %q cannot sign for %s", in.ActingAs, in.Role)
		e.Role = in.Role
		return types.Workflow{}, nil, e
	}

	l, err := ledger.FromRecords(wf.Signatures)
	if err != nil {
		return types.Workflow{}, nil, err
	}
	if l.HasSigned(in.Role) {
		e := types.NewError(types.KindAlreadySigned, "%s has already signed", in.Role)
		e.Role = in.Role
		e.State = wf.State
		return types.Workflow{}, nil, e
	}
	name := strings.TrimSpace(in.SignerName)
	if name == "" {
		e := types.NewError(types.KindInvalidArgument, "signer name is required for %s", in.Role)
		e.Role = in.Role
		return types.Workflow{}, nil, e
	}
	if err := checkOrdering(wf.State, l, in.Role); err != nil {
		return types.Workflow{}, nil, err
	}

	// Replicas may disagree on the clock; the trail must stay monotonic anyway.
	signedAt := now
	if wf.SentForSignaturesAt != nil && signedAt.Before(*wf.SentForSignaturesAt) {
		signedAt = *wf.SentForSignaturesAt
	}
	if last, ok := l.Last(); ok && signedAt.Before(last.SignedAt) {
		signedAt = last.SignedAt
	}
	rec := types.SignatureRecord{
		Role:          in.Role,
		SignerName:    name,
		SignerContact: strings.TrimSpace(in.SignerContact),
		SignedAt:      signedAt,
		OriginHint:    strings.TrimSpace(in.OriginHint),
	}
	if a := wf.PendingAssignee; a != nil && a.Role == in.Role {
		rec.DelegatedFrom = strings.TrimSpace(in.DefaultSignerName)
	}
	if err := l.Append(rec); err != nil {
		return types.Workflow{}, nil, err
	}

	next := wf.Clone()
	next.Signatures = l.All()
	next.State = types.StateAfter(in.Role)
	if next.PendingAssignee != nil && next.PendingAssignee.Role == in.Role {
		next.PendingAssignee = nil
	}
	next.UpdatedAt = now
	if err := CheckConsistency(next); err != nil {
		return types.Workflow{}, nil, err
	}

	nextRole, _ := in.Role.Next()
	out := []Emission{{
		Type: types.EventRoleSigned,
		Payload: types.RoleSigned{
			ContractID: wf.ContractID,
			Role:       in.Role,
			SignerName: name,
			SignedAt:   signedAt,
			NextRole:   nextRole,
		},
	}}
	if next.State == types.StateActive {
		out = append(out, Emission{
			Type:    types.EventWorkflowCompleted,
			Payload: types.WorkflowCompleted{ContractID: wf.ContractID},
		})
	}
	return next, out, nil
}

func Reject(wf types.Workflow, in RejectInput, now time.Time) (types.Workflow, []Emission, error) {
	if wf.State.Terminal() {
		return types.Workflow{}, nil, terminal(wf.State)
	}

	next := wf.Clone()
	rejectedAt := now
	next.RejectedAt = &rejectedAt
	next.RejectReason = strings.TrimSpace(in.Reason)
	next.State = types.StateRejected
	next.PendingAssignee = nil
	next.UpdatedAt = now
	if err := CheckConsistency(next); err != nil {
		return types.Workflow{}, nil, err
	}

	payload := types.WorkflowRejected{
		ContractID: wf.ContractID,
		Reason:     next.RejectReason,
		RejectedBy: strings.TrimSpace(in.RejectedBy),
	}
	if a := wf.PendingAssignee; a != nil {
		payload.PendingRole = a.Role
		payload.PendingName = a.Signer.Name
		payload.PendingContact = a.Signer.Contact
	}
	return next, []Emission{{Type: types.EventWorkflowRejected, Payload: payload}}, nil
}

// Delegate re-assigns who is expected to perform the pending stage's signature.
// State and signatures are left untouched.
func Delegate(wf types.Workflow, in DelegateInput, now time.Time) (types.Workflow, []Emission, error) {
	if wf.State.Terminal() {
		return types.Workflow{}, nil, terminal(wf.State)
	}
	if !in.Role.Valid() {
		return types.Workflow{}, nil, types.NewError(types.KindInvalidArgument, "unknown role %q", in.Role)
	}
	toName := strings.TrimSpace(in.ToName)
	if toName == "" {
		e := types.NewError(types.KindInvalidArgument, "delegate name is required")
		e.Role = in.Role
		return types.Workflow{}, nil, e
	}

	l, err := ledger.FromRecords(wf.Signatures)
	if err != nil {
		return types.Workflow{}, nil, err
	}
	if l.HasSigned(in.Role) {
		e := types.NewError(types.KindAlreadySigned, "%s has already signed; nothing left to delegate", in.Role)
		e.Role = in.Role
		e.State = wf.State
		return types.Workflow{}, nil, e
	}
	pending, ok := wf.State.PendingRole()
	if !ok || pending != in.Role {
		e := types.NewError(types.KindInvalidTransition, "cannot delegate %s while %s", in.Role, wf.State)
		e.Role = in.Role
		e.State = wf.State
		return types.Workflow{}, nil, e
	}

	next := wf.Clone()
	next.PendingAssignee = &types.Assignee{
		Role:        in.Role,
		Signer:      types.Signer{Name: toName, Contact: strings.TrimSpace(in.ToContact)},
		DelegatedBy: strings.TrimSpace(in.RequestedBy),
		DelegatedAt: now,
	}
	next.UpdatedAt = now
	if err := CheckConsistency(next); err != nil {
		return types.Workflow{}, nil, err
	}

	return next, []Emission{{
		Type: types.EventDelegationRequested,
		Payload: types.DelegationRequested{
			ContractID:  wf.ContractID,
			Role:        in.Role,
			ToName:      toName,
			ToContact:   next.PendingAssignee.Signer.Contact,
			CCRequester: in.CCRequester,
			RequestedBy: next.PendingAssignee.DelegatedBy,
		},
	}}, nil
}

func checkOrdering(state types.State, l *ledger.Ledger, role types.Role) error {
	if prereq, ok := role.Prerequisite(); ok && !l.HasSigned(prereq) {
		e := types.NewError(types.KindOutOfOrderSignature, "%s must sign before %s", prereq, role)
		e.Role = role
		e.Required = prereq
		e.State = state
		return e
	}
	if state != types.StateAwaiting(role) {
		e := types.NewError(types.KindOutOfOrderSignature, "%s cannot sign while %s", role, state)
		e.Role = role
		e.State = state
		if state == types.StateDraft {
			e.Message = "signatures have not been requested yet"
		}
		return e
	}
	return nil
}

func terminal(s types.State) error {
	e := types.NewError(types.KindWorkflowTerminal, "workflow is %s", s)
	e.State = s
	return e
}
