package expiry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

func TestPolicy_Default(t *testing.T) {
	p, err := LoadPolicy(context.Background(), "")
	require.NoError(t, err)

	d, err := p.Decide(context.Background(), Input{ContractID: "c-1", PendingRole: "owner", WaitingHours: 721})
	require.NoError(t, err)
	assert.True(t, d.Reject)
	assert.Equal(t, "signature window expired: waited 721 hours for owner", d.Reason)

	d, err = p.Decide(context.Background(), Input{ContractID: "c-1", PendingRole: "owner", WaitingHours: 720})
	require.NoError(t, err)
	assert.False(t, d.Reject)

	d, err = p.Decide(context.Background(), Input{ContractID: "c-1", PendingRole: "tenant", WaitingHours: 49, MaxWaitHours: 48})
	require.NoError(t, err)
	assert.True(t, d.Reject)

	d, err = p.Decide(context.Background(), Input{ContractID: "c-1", WaitingHours: 10000})
	require.NoError(t, err)
	assert.False(t, d.Reject, "nothing pending, nothing to expire")
}

func TestPolicy_CustomFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.rego")
	require.NoError(t, os.WriteFile(path, []byte(`package signflow.expiry

decision := {"reject": true} if {
	input.state == "pending_admin_approval"
}

default decision := {"reject": false}
`), 0o600))

	p, err := LoadPolicy(context.Background(), path)
	require.NoError(t, err)
	d, err := p.Decide(context.Background(), Input{State: "pending_admin_approval"})
	require.NoError(t, err)
	assert.Equal(t, Decision{Reject: true, Reason: "signature window expired"}, d)

	_, err = LoadPolicy(context.Background(), filepath.Join(dir, "missing.rego"))
	require.Error(t, err)

	_, err = NewPolicy(context.Background(), "broken.rego", "package signflow.expiry\n\ndecision := {")
	require.Error(t, err)
}

func TestPolicy_UndefinedAndWrongShape(t *testing.T) {
	p, err := NewPolicy(context.Background(), "undef.rego", "package signflow.expiry\n\ndecision := true if { false }\n")
	require.NoError(t, err)
	_, err = p.Decide(context.Background(), Input{})
	require.ErrorContains(t, err, "undefined")

	p, err = NewPolicy(context.Background(), "scalar.rego", "package signflow.expiry\n\ndecision := \"reject\"\n")
	require.NoError(t, err)
	_, err = p.Decide(context.Background(), Input{})
	require.ErrorContains(t, err, "want object")
}

type fakeService struct {
	snaps     []types.Snapshot
	listErr   error
	rejectErr map[string]error
	rejected  map[string]string
}

func (f *fakeService) ListOpen(context.Context, int) ([]types.Snapshot, error) {
	return f.snaps, f.listErr
}

func (f *fakeService) Reject(_ context.Context, id string, reason string, by string) (types.Snapshot, error) {
	if err := f.rejectErr[id]; err != nil {
		return types.Snapshot{}, err
	}
	if f.rejected == nil {
		f.rejected = map[string]string{}
	}
	f.rejected[id] = reason + " by " + by
	return types.Snapshot{ContractID: id, State: types.StateRejected}, nil
}

func openSnapshot(id string, role types.Role, waited time.Duration) types.Snapshot {
	b := types.NewBreakdown(waited)
	return types.Snapshot{
		ContractID:  id,
		State:       types.StateAwaiting(role),
		PendingRole: role,
		Timing:      types.Timing{Stages: []types.StageTiming{{Role: role, Open: true, Waiting: &b}}},
	}
}

func TestJob_RunOnce(t *testing.T) {
	p, err := LoadPolicy(context.Background(), "")
	require.NoError(t, err)

	svc := &fakeService{
		snaps: []types.Snapshot{
			openSnapshot("c-old", types.RoleOwner, 31*24*time.Hour),
			openSnapshot("c-new", types.RoleTenant, time.Hour),
			openSnapshot("c-raced", types.RoleAdmin, 40*24*time.Hour),
			openSnapshot("c-broken", types.RoleAdmin, 40*24*time.Hour),
		},
		rejectErr: map[string]error{
			"c-raced":  types.NewError(types.KindWorkflowTerminal, "workflow is active"),
			"c-broken": errors.New("db down"),
		},
	}
	rep, err := NewJob(svc, p, 0, 0).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 4, Rejected: 1, Skipped: 1, Failed: 1}, rep)
	assert.Equal(t, "signature window expired: waited 744 hours for owner by expiry-job", svc.rejected["c-old"])
}

func TestJob_RunOnceCustomWindow(t *testing.T) {
	p, err := LoadPolicy(context.Background(), "")
	require.NoError(t, err)

	svc := &fakeService{snaps: []types.Snapshot{openSnapshot("c-1", types.RoleTenant, 50*time.Hour)}}
	rep, err := NewJob(svc, p, 10, 48*time.Hour).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rejected)

	_, err = NewJob(&fakeService{listErr: errors.New("db down")}, p, 10, 0).RunOnce(context.Background())
	require.Error(t, err)
}
