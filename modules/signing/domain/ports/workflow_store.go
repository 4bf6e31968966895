package ports

import (
	"context"
	"errors"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

var (
	ErrWorkflowNotFound = errors.New("workflow_not_found")
	ErrVersionConflict  = errors.New("workflow_version_conflict")
	ErrContractNotFound = errors.New("contract_not_found")
	ErrLockNotAcquired  = errors.New("lock_not_acquired")
)

// WorkflowStore persists the aggregate. Save must fail with ErrVersionConflict when
// the stored version differs from expectedVersion (0 means "not stored yet"), and
// must store events atomically with the aggregate when it keeps an outbox.
type WorkflowStore interface {
	Load(ctx context.Context, contractID string) (types.Workflow, error)
	Save(ctx context.Context, wf types.Workflow, expectedVersion int64, events []types.Event) (types.Workflow, error)
	ListOpen(ctx context.Context, limit int) ([]types.Workflow, error)
}

// ContractDirectory is the read side of the Contract Store.
type ContractDirectory interface {
	ContractExists(ctx context.Context, contractID string) (bool, error)
	DefaultSigner(ctx context.Context, contractID string, role types.Role) (types.Signer, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, events ...types.Event)
}

// Locker serializes mutators of one contract. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Escalator interface {
	Escalate(ctx context.Context, contractID string, err error)
}
