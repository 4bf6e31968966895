package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/ports"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

// MemoryStore is the single-process WorkflowStore used by tests and by the server
// when no database is configured.
type MemoryStore struct {
	mu        sync.Mutex
	workflows map[string]types.Workflow
	outbox    []types.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workflows: make(map[string]types.Workflow)}
}

var _ ports.WorkflowStore = (*MemoryStore)(nil)

func (s *MemoryStore) Load(_ context.Context, contractID string) (types.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[contractID]
	if !ok {
		return types.Workflow{}, ports.ErrWorkflowNotFound
	}
	return wf.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, wf types.Workflow, expectedVersion int64, events []types.Event) (types.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if cur, ok := s.workflows[wf.ContractID]; ok {
		current = cur.Version
	}
	if current != expectedVersion {
		return types.Workflow{}, ports.ErrVersionConflict
	}
	saved := wf.Clone()
	saved.Version = expectedVersion + 1
	s.workflows[wf.ContractID] = saved
	s.outbox = append(s.outbox, events...)
	return saved.Clone(), nil
}

func (s *MemoryStore) ListOpen(_ context.Context, limit int) ([]types.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		if !wf.State.Terminal() && wf.State != types.StateDraft {
			out = append(out, wf.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractID < out[j].ContractID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns every event saved so far, in save order.
func (s *MemoryStore) Events() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Event(nil), s.outbox...)
}

// MemoryDirectory is an in-memory ContractDirectory.
type MemoryDirectory struct {
	mu      sync.RWMutex
	parties map[string]map[types.Role]types.Signer
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{parties: make(map[string]map[types.Role]types.Signer)}
}

var _ ports.ContractDirectory = (*MemoryDirectory)(nil)

// Put registers the contract and, for a non-empty role, its default signer.
func (d *MemoryDirectory) Put(contractID string, role types.Role, signer types.Signer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.parties[contractID]
	if !ok {
		m = make(map[types.Role]types.Signer)
		d.parties[contractID] = m
	}
	if role != "" {
		m[role] = signer
	}
}

func (d *MemoryDirectory) ContractExists(_ context.Context, contractID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.parties[contractID]
	return ok, nil
}

func (d *MemoryDirectory) DefaultSigner(_ context.Context, contractID string, role types.Role) (types.Signer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	signer, ok := d.parties[contractID][role]
	if !ok {
		return types.Signer{}, ports.ErrContractNotFound
	}
	return signer, nil
}
