package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
	"github.com/jacksonlee411/lease-signflow/modules/signing/infrastructure/persistence"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingSender struct {
	mu      sync.Mutex
	notices []Notice
	err     error
}

func (s *recordingSender) Send(_ context.Context, n Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.notices = append(s.notices, n)
	return nil
}

func (s *recordingSender) contacts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.notices))
	for _, n := range s.notices {
		out = append(out, n.Channel+":"+n.Recipient.Contact)
	}
	return out
}

func seedDirectory() *persistence.MemoryDirectory {
	dir := persistence.NewMemoryDirectory()
	dir.Put("c-1", types.RoleTenant, types.Signer{Name: "Salim", Contact: "salim@example.com"})
	dir.Put("c-1", types.RoleOwner, types.Signer{Name: "Ali", Contact: "+905550000001"})
	dir.Put("c-1", types.RoleAdmin, types.Signer{Name: "Admin Office", Contact: "office@example.com"})
	return dir
}

func seedWorkflow(t *testing.T, store *persistence.MemoryStore, mutate func(*types.Workflow)) {
	t.Helper()
	sent := t0
	wf := types.NewDraft("c-1", t0)
	wf.State = types.StatePendingOwnerSignature
	wf.SentForSignaturesAt = &sent
	wf.Signatures = []types.SignatureRecord{{Role: types.RoleTenant, SignerName: "Salim", SignerContact: "salim@example.com", SignedAt: t0.Add(time.Hour)}}
	if mutate != nil {
		mutate(&wf)
	}
	_, err := store.Save(context.Background(), wf, 0, nil)
	require.NoError(t, err)
}

func event(t *testing.T, typ types.EventType, payload any) types.Event {
	t.Helper()
	ev, err := types.NewEvent("0190c1f2-0000-7000-8000-000000000001", typ, "c-1", t0, payload)
	require.NoError(t, err)
	return ev
}
