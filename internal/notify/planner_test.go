package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
	"github.com/jacksonlee411/lease-signflow/modules/signing/infrastructure/persistence"
)

func recipients(ns []Notice) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, string(n.Kind)+":"+n.Recipient.Contact)
	}
	return out
}

func TestPlanner_SignaturesRequested(t *testing.T) {
	p := NewPlanner(seedDirectory(), persistence.NewMemoryStore())
	ns, err := p.Plan(context.Background(), event(t, types.EventSignaturesRequested, types.SignaturesRequested{
		ContractID: "c-1", TenantName: "Salim", TenantContact: "salim@example.com",
		OwnerName: "Ali", OwnerContact: "+905550000001", RequestedBy: "agent-1",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"invite:salim@example.com", "invite:+905550000001"}, recipients(ns))
	assert.Contains(t, ns[0].Body, "agent-1")
	assert.Equal(t, "tenant", ns[0].Recipient.Role)
}

func TestPlanner_RoleSignedGoesToNextSigner(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedWorkflow(t, store, nil)
	p := NewPlanner(seedDirectory(), store)

	ns, err := p.Plan(context.Background(), event(t, types.EventRoleSigned, types.RoleSigned{
		ContractID: "c-1", Role: types.RoleTenant, SignerName: "Salim", SignedAt: t0, NextRole: types.RoleOwner,
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"info:+905550000001"}, recipients(ns))

	ns, err = p.Plan(context.Background(), event(t, types.EventRoleSigned, types.RoleSigned{ContractID: "c-1", Role: types.RoleAdmin}))
	require.NoError(t, err)
	assert.Empty(t, ns)
}

func TestPlanner_RoleSignedPrefersAssignee(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedWorkflow(t, store, func(wf *types.Workflow) {
		wf.PendingAssignee = &types.Assignee{Role: types.RoleOwner, Signer: types.Signer{Name: "Fatma", Contact: "+905551112233"}, DelegatedAt: t0}
	})
	p := NewPlanner(seedDirectory(), store)

	ns, err := p.Plan(context.Background(), event(t, types.EventRoleSigned, types.RoleSigned{ContractID: "c-1", Role: types.RoleTenant, NextRole: types.RoleOwner}))
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, "Fatma", ns[0].Recipient.Name)
}

func TestPlanner_CompletedAndRejected(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedWorkflow(t, store, func(wf *types.Workflow) {
		wf.State = types.StateActive
		wf.Signatures = append(wf.Signatures,
			types.SignatureRecord{Role: types.RoleOwner, SignerName: "Fatma", SignerContact: "+905551112233", SignedAt: t0.Add(2 * time.Hour), DelegatedFrom: "Ali"},
			types.SignatureRecord{Role: types.RoleAdmin, SignerName: "Admin Office", SignerContact: "office@example.com", SignedAt: t0.Add(3 * time.Hour)},
		)
	})
	p := NewPlanner(seedDirectory(), store)

	ns, err := p.Plan(context.Background(), event(t, types.EventWorkflowCompleted, types.WorkflowCompleted{ContractID: "c-1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"info:salim@example.com", "info:+905551112233", "info:office@example.com"}, recipients(ns))

	ns, err = p.Plan(context.Background(), event(t, types.EventWorkflowRejected, types.WorkflowRejected{ContractID: "c-1", Reason: "expired"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"info:salim@example.com", "info:+905550000001", "info:office@example.com", "info:+905551112233"}, recipients(ns))
	assert.Contains(t, ns[0].Body, "expired")
}

func TestPlanner_RejectedReachesClearedAssignee(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedWorkflow(t, store, func(wf *types.Workflow) {
		wf.State = types.StateRejected
		rejectedAt := t0.Add(2 * time.Hour)
		wf.RejectedAt = &rejectedAt
	})
	p := NewPlanner(seedDirectory(), store)

	ns, err := p.Plan(context.Background(), event(t, types.EventWorkflowRejected, types.WorkflowRejected{
		ContractID: "c-1", Reason: "documents mismatch",
		PendingRole: types.RoleOwner, PendingName: "Fatma", PendingContact: "+905551112233",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"info:salim@example.com", "info:+905550000001", "info:office@example.com", "info:+905551112233"}, recipients(ns))
	assert.Equal(t, "Fatma", ns[3].Recipient.Name)
	assert.Equal(t, "owner", ns[3].Recipient.Role)
}

func TestPlanner_Delegation(t *testing.T) {
	p := NewPlanner(seedDirectory(), persistence.NewMemoryStore())

	ns, err := p.Plan(context.Background(), event(t, types.EventDelegationRequested, types.DelegationRequested{
		ContractID: "c-1", Role: types.RoleOwner, ToName: "Fatma", ToContact: "+905551112233", CCRequester: true, RequestedBy: "Ali",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"invite:+905551112233", "cc:+905550000001"}, recipients(ns))

	ns, err = p.Plan(context.Background(), event(t, types.EventDelegationRequested, types.DelegationRequested{
		ContractID: "c-1", Role: types.RoleOwner, ToName: "Fatma", ToContact: "+905551112233",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"invite:+905551112233"}, recipients(ns))
}

func TestPlanner_Errors(t *testing.T) {
	p := NewPlanner(seedDirectory(), persistence.NewMemoryStore())

	bad := types.Event{ID: "e-1", Type: types.EventSignaturesRequested, ContractID: "c-1", Data: []byte(`{`)}
	_, err := p.Plan(context.Background(), bad)
	require.Error(t, err)

	_, err = p.Plan(context.Background(), event(t, types.EventWorkflowCompleted, types.WorkflowCompleted{ContractID: "c-1"}))
	require.Error(t, err, "completed needs the stored workflow")

	ns, err := p.Plan(context.Background(), types.Event{Type: "Unknown"})
	require.NoError(t, err)
	assert.Nil(t, ns)
}

func TestDedupe(t *testing.T) {
	in := []Notice{
		{Recipient: Recipient{Contact: "A@example.com"}},
		{Recipient: Recipient{Contact: "a@example.com"}},
		{Recipient: Recipient{Contact: ""}},
		{Recipient: Recipient{Contact: "+90"}},
	}
	out := dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, "A@example.com", out[0].Recipient.Contact)
}
