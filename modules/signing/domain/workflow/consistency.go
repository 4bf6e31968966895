package workflow

import (
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/ledger"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

// DeriveState returns the state implied by the rejection marker, the sent marker
// and the ledger contents.
func DeriveState(wf types.Workflow) (types.State, error) {
	l, err := ledger.FromRecords(wf.Signatures)
	if err != nil {
		return "", err
	}
	if wf.RejectedAt != nil {
		return types.StateRejected, nil
	}
	if wf.SentForSignaturesAt == nil {
		if l.Len() > 0 {
			return "", types.NewError(types.KindLedgerCorruption, "contract %s has signatures but was never sent", wf.ContractID)
		}
		return types.StateDraft, nil
	}
	last, ok := l.Last()
	if !ok {
		return types.StatePendingTenantSignature, nil
	}
	if last.SignedAt.Before(*wf.SentForSignaturesAt) {
		return "", types.NewError(types.KindLedgerCorruption, "contract %s: %s signed before it was sent", wf.ContractID, last.Role)
	}
	return types.StateAfter(last.Role), nil
}

// CheckConsistency reports LEDGER_CORRUPTION when the stored state, the ledger and
// the pending assignee disagree.
func CheckConsistency(wf types.Workflow) error {
	derived, err := DeriveState(wf)
	if err != nil {
		return err
	}
	if derived != wf.State {
		e := types.NewError(types.KindLedgerCorruption, "contract %s: state %s but ledger implies %s", wf.ContractID, wf.State, derived)
		e.State = wf.State
		return e
	}
	if a := wf.PendingAssignee; a != nil {
		pending, ok := wf.State.PendingRole()
		if !ok || pending != a.Role {
			e := types.NewError(types.KindLedgerCorruption, "contract %s: assignee for %s while %s", wf.ContractID, a.Role, wf.State)
			e.Role = a.Role
			e.State = wf.State
			return e
		}
	}
	return nil
}
