package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/ports"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/timing"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/workflow"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
	"github.com/jacksonlee411/lease-signflow/pkg/uuidv7"
)

const defaultMaxAttempts = 3

var newEventID = uuidv7.NewString

type SignRequest struct {
	Role          types.Role
	ActingAs      types.Role
	SignerName    string
	SignerContact string
	OriginHint    string
}

type DelegateRequest struct {
	Role        types.Role
	ToName      string
	ToContact   string
	CCRequester bool
	RequestedBy string
}

type WorkflowService struct {
	store       ports.WorkflowStore
	directory   ports.ContractDirectory
	publisher   ports.EventPublisher
	locker      ports.Locker
	escalator   ports.Escalator
	now         func() time.Time
	maxAttempts int
}

type Option func(*WorkflowService)

func WithClock(now func() time.Time) Option {
	return func(s *WorkflowService) { s.now = now }
}

func WithEscalator(e ports.Escalator) Option {
	return func(s *WorkflowService) { s.escalator = e }
}

// WithMaxAttempts bounds how often a save that lost a version race is re-validated.
func WithMaxAttempts(n int) Option {
	return func(s *WorkflowService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewWorkflowService(store ports.WorkflowStore, directory ports.ContractDirectory, publisher ports.EventPublisher, locker ports.Locker, opts ...Option) *WorkflowService {
	s := &WorkflowService{
		store:       store,
		directory:   directory,
		publisher:   publisher,
		locker:      locker,
		escalator:   LogEscalator{},
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WorkflowService) GetState(ctx context.Context, contractID string) (types.Snapshot, error) {
	contractID, err := normalizeContractID(contractID)
	if err != nil {
		return types.Snapshot{}, err
	}
	ctx = logger.WithContractID(ctx, contractID)
	wf, err := s.load(ctx, contractID)
	if err != nil {
		return types.Snapshot{}, err
	}
	if err := workflow.CheckConsistency(wf); err != nil {
		s.escalate(ctx, contractID, err)
		return types.Snapshot{}, err
	}
	return s.snapshot(ctx, wf), nil
}

func (s *WorkflowService) RequestSignatures(ctx context.Context, contractID string, requestedBy string) (types.Snapshot, error) {
	return s.mutate(ctx, contractID, "request_signatures", func(ctx context.Context, wf types.Workflow, now time.Time) (types.Workflow, []workflow.Emission, error) {
		in := workflow.RequestInput{RequestedBy: requestedBy}
		if wf.State == types.StateDraft {
			in.Tenant = s.defaultSigner(ctx, wf.ContractID, types.RoleTenant)
			in.Owner = s.defaultSigner(ctx, wf.ContractID, types.RoleOwner)
		}
		return workflow.RequestSignatures(wf, in, now)
	})
}

// Sign records the signature of req.Role. An empty signer name resolves to the
// expected signer: the delegated assignee if any, else the contract's default party.
func (s *WorkflowService) Sign(ctx context.Context, contractID string, req SignRequest) (types.Snapshot, error) {
	return s.mutate(ctx, contractID, "sign", func(ctx context.Context, wf types.Workflow, now time.Time) (types.Workflow, []workflow.Emission, error) {
		in := workflow.SignInput{
			Role:          req.Role,
			ActingAs:      req.ActingAs,
			SignerName:    strings.TrimSpace(req.SignerName),
			SignerContact: strings.TrimSpace(req.SignerContact),
			OriginHint:    req.OriginHint,
		}
		if wf.State.Terminal() || !req.Role.Valid() {
			return workflow.Sign(wf, in, now)
		}

		assigned := wf.PendingAssignee != nil && wf.PendingAssignee.Role == req.Role
		if in.SignerName == "" {
			expected := s.expectedSigner(ctx, wf, req.Role)
			in.SignerName = expected.Name
			if in.SignerContact == "" {
				in.SignerContact = expected.Contact
			}
		}
		if assigned {
			in.DefaultSignerName = s.defaultSigner(ctx, wf.ContractID, req.Role).Name
		}
		return workflow.Sign(wf, in, now)
	})
}

func (s *WorkflowService) Reject(ctx context.Context, contractID string, reason string, rejectedBy string) (types.Snapshot, error) {
	return s.mutate(ctx, contractID, "reject", func(_ context.Context, wf types.Workflow, now time.Time) (types.Workflow, []workflow.Emission, error) {
		return workflow.Reject(wf, workflow.RejectInput{Reason: reason, RejectedBy: rejectedBy}, now)
	})
}

func (s *WorkflowService) Delegate(ctx context.Context, contractID string, req DelegateRequest) (types.Snapshot, error) {
	return s.mutate(ctx, contractID, "delegate", func(_ context.Context, wf types.Workflow, now time.Time) (types.Workflow, []workflow.Emission, error) {
		return workflow.Delegate(wf, workflow.DelegateInput{
			Role:        req.Role,
			ToName:      req.ToName,
			ToContact:   req.ToContact,
			CCRequester: req.CCRequester,
			RequestedBy: req.RequestedBy,
		}, now)
	})
}

// ListOpen returns snapshots of workflows that are neither active nor rejected.
func (s *WorkflowService) ListOpen(ctx context.Context, limit int) ([]types.Snapshot, error) {
	wfs, err := s.store.ListOpen(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list open workflows: %w", err)
	}
	out := make([]types.Snapshot, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, s.snapshot(ctx, wf))
	}
	return out, nil
}

type transition func(ctx context.Context, wf types.Workflow, now time.Time) (types.Workflow, []workflow.Emission, error)

func (s *WorkflowService) mutate(ctx context.Context, contractID string, op string, fn transition) (types.Snapshot, error) {
	contractID, err := normalizeContractID(contractID)
	if err != nil {
		return types.Snapshot{}, err
	}
	ctx = logger.WithContractID(ctx, contractID)

	unlock, err := s.locker.Lock(ctx, contractID)
	if err != nil {
		if errors.Is(err, ports.ErrLockNotAcquired) {
			return types.Snapshot{}, types.NewError(types.KindConcurrencyConflict, "contract %s is being modified", contractID)
		}
		return types.Snapshot{}, fmt.Errorf("lock contract %s: %w", contractID, err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		wf, err := s.load(ctx, contractID)
		if err != nil {
			return types.Snapshot{}, err
		}
		if err := workflow.CheckConsistency(wf); err != nil {
			s.escalate(ctx, contractID, err)
			return types.Snapshot{}, err
		}

		now := s.now()
		next, emissions, err := fn(ctx, wf, now)
		if err != nil {
			if types.KindOf(err) == types.KindLedgerCorruption {
				s.escalate(ctx, contractID, err)
			}
			logger.Debug(ctx, "workflow operation refused", "op", op, "state", wf.State, "error", err)
			return types.Snapshot{}, err
		}

		events, err := buildEvents(contractID, emissions, now)
		if err != nil {
			return types.Snapshot{}, err
		}

		saved, err := s.store.Save(ctx, next, wf.Version, events)
		if errors.Is(err, ports.ErrVersionConflict) {
			if attempt >= s.maxAttempts {
				return types.Snapshot{}, types.NewError(types.KindConcurrencyConflict, "contract %s changed concurrently %d times", contractID, attempt)
			}
			logger.Warn(ctx, "workflow version conflict, retrying", "op", op, "attempt", attempt)
			continue
		}
		if err != nil {
			return types.Snapshot{}, fmt.Errorf("save workflow %s: %w", contractID, err)
		}

		logger.Info(ctx, "workflow updated", "op", op, "from", wf.State, "to", saved.State, "version", saved.Version)
		if s.publisher != nil && len(events) > 0 {
			s.publisher.Publish(ctx, events...)
		}
		return s.snapshot(ctx, saved), nil
	}
}

func (s *WorkflowService) load(ctx context.Context, contractID string) (types.Workflow, error) {
	wf, err := s.store.Load(ctx, contractID)
	if err == nil {
		return wf, nil
	}
	if !errors.Is(err, ports.ErrWorkflowNotFound) {
		return types.Workflow{}, fmt.Errorf("load workflow %s: %w", contractID, err)
	}

	exists, err := s.directory.ContractExists(ctx, contractID)
	if err != nil {
		return types.Workflow{}, fmt.Errorf("lookup contract %s: %w", contractID, err)
	}
	if !exists {
		return types.Workflow{}, types.NewError(types.KindContractNotFound, "contract %s not found", contractID)
	}
	return types.NewDraft(contractID, s.now()), nil
}

func (s *WorkflowService) snapshot(ctx context.Context, wf types.Workflow) types.Snapshot {
	now := s.now()
	if wf.RejectedAt != nil {
		now = *wf.RejectedAt
	}
	snap := types.Snapshot{
		ContractID:          wf.ContractID,
		State:               wf.State,
		SentForSignaturesAt: wf.SentForSignaturesAt,
		RequestedBy:         wf.RequestedBy,
		Signatures:          append([]types.SignatureRecord{}, wf.Signatures...),
		PendingAssignee:     wf.PendingAssignee,
		RejectedAt:          wf.RejectedAt,
		RejectReason:        wf.RejectReason,
		Timing:              timing.Analyze(wf.SentForSignaturesAt, wf.Signatures, now),
		Version:             wf.Version,
	}
	if role, ok := wf.State.PendingRole(); ok {
		snap.PendingRole = role
		if signer := s.expectedSigner(ctx, wf, role); signer.Name != "" {
			snap.ExpectedSigner = &signer
		}
	}
	return snap
}

func (s *WorkflowService) expectedSigner(ctx context.Context, wf types.Workflow, role types.Role) types.Signer {
	if a := wf.PendingAssignee; a != nil && a.Role == role {
		return a.Signer
	}
	return s.defaultSigner(ctx, wf.ContractID, role)
}

// defaultSigner is best effort: an unknown party leaves the name empty and the
// state machine reports the missing signer.
func (s *WorkflowService) defaultSigner(ctx context.Context, contractID string, role types.Role) types.Signer {
	signer, err := s.directory.DefaultSigner(ctx, contractID, role)
	if err != nil {
		if !errors.Is(err, ports.ErrContractNotFound) {
			logger.Warn(ctx, "default signer lookup failed", "role", role, "error", err)
		}
		return types.Signer{}
	}
	return signer
}

func (s *WorkflowService) escalate(ctx context.Context, contractID string, err error) {
	if s.escalator != nil {
		s.escalator.Escalate(ctx, contractID, err)
	}
}

func buildEvents(contractID string, emissions []workflow.Emission, at time.Time) ([]types.Event, error) {
	events := make([]types.Event, 0, len(emissions))
	for _, em := range emissions {
		id, err := newEventID()
		if err != nil {
			return nil, fmt.Errorf("event id: %w", err)
		}
		ev, err := types.NewEvent(id, em.Type, contractID, at, em.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", em.Type, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func normalizeContractID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", types.NewError(types.KindInvalidArgument, "contract_id is required")
	}
	return id, nil
}

// LogEscalator reports ledger corruption as an alerting error log line.
type LogEscalator struct{}

func (LogEscalator) Escalate(ctx context.Context, contractID string, err error) {
	logger.Error(ctx, "signature ledger corruption", "contract_id", contractID, "alert", true, "error", err)
}
