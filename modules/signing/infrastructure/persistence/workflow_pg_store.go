package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/ports"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

const pgUniqueViolation = "23505"

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type WorkflowPGStore struct {
	pool pgBeginner
}

func NewWorkflowPGStore(pool pgBeginner) *WorkflowPGStore {
	return &WorkflowPGStore{pool: pool}
}

var _ ports.WorkflowStore = (*WorkflowPGStore)(nil)

const selectWorkflowColumns = `
  contract_id,
  state,
  sent_for_signatures_at,
  requested_by,
  pending_role,
  pending_name,
  pending_contact,
  pending_delegated_by,
  pending_delegated_at,
  rejected_at,
  reject_reason,
  version,
  created_at,
  updated_at
`

func (s *WorkflowPGStore) Load(ctx context.Context, contractID string) (types.Workflow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Workflow{}, err
	}
	defer tx.Rollback(context.Background())

	wf, err := scanWorkflow(tx.QueryRow(ctx, `SELECT `+selectWorkflowColumns+` FROM signing.workflows WHERE contract_id = $1`, contractID))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Workflow{}, ports.ErrWorkflowNotFound
	}
	if err != nil {
		return types.Workflow{}, err
	}

	sigs, err := querySignatures(ctx, tx, []string{contractID})
	if err != nil {
		return types.Workflow{}, err
	}
	wf.Signatures = sigs[contractID]

	if err := tx.Commit(ctx); err != nil {
		return types.Workflow{}, err
	}
	return wf, nil
}

func (s *WorkflowPGStore) Save(ctx context.Context, wf types.Workflow, expectedVersion int64, events []types.Event) (types.Workflow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Workflow{}, err
	}
	defer tx.Rollback(context.Background())

	saved := wf.Clone()
	saved.Version = expectedVersion + 1

	var pendingRole, pendingName, pendingContact, delegatedBy string
	var delegatedAt *time.Time
	if a := saved.PendingAssignee; a != nil {
		pendingRole = string(a.Role)
		pendingName = a.Signer.Name
		pendingContact = a.Signer.Contact
		delegatedBy = a.DelegatedBy
		at := a.DelegatedAt
		delegatedAt = &at
	}

	var tag pgconn.CommandTag
	if expectedVersion == 0 {
		tag, err = tx.Exec(ctx, `
INSERT INTO signing.workflows (
  contract_id, state, sent_for_signatures_at, requested_by,
  pending_role, pending_name, pending_contact, pending_delegated_by, pending_delegated_at,
  rejected_at, reject_reason, version, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (contract_id) DO NOTHING
`, saved.ContractID, string(saved.State), saved.SentForSignaturesAt, saved.RequestedBy,
			pendingRole, pendingName, pendingContact, delegatedBy, delegatedAt,
			saved.RejectedAt, saved.RejectReason, saved.Version, saved.CreatedAt, saved.UpdatedAt)
	} else {
		tag, err = tx.Exec(ctx, `
UPDATE signing.workflows SET
  state = $2,
  sent_for_signatures_at = $3,
  requested_by = $4,
  pending_role = $5,
  pending_name = $6,
  pending_contact = $7,
  pending_delegated_by = $8,
  pending_delegated_at = $9,
  rejected_at = $10,
  reject_reason = $11,
  version = $12,
  updated_at = $13
WHERE contract_id = $1 AND version = $14
`, saved.ContractID, string(saved.State), saved.SentForSignaturesAt, saved.RequestedBy,
			pendingRole, pendingName, pendingContact, delegatedBy, delegatedAt,
			saved.RejectedAt, saved.RejectReason, saved.Version, saved.UpdatedAt, expectedVersion)
	}
	if err != nil {
		return types.Workflow{}, err
	}
	if tag.RowsAffected() == 0 {
		return types.Workflow{}, ports.ErrVersionConflict
	}

	for i, r := range saved.Signatures {
		if _, err := tx.Exec(ctx, `
INSERT INTO signing.signatures (
  contract_id, seq, role, signer_name, signer_contact, signed_at, origin_hint, delegated_from
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (contract_id, role) DO NOTHING
`, saved.ContractID, i+1, string(r.Role), r.SignerName, r.SignerContact, r.SignedAt, r.OriginHint, r.DelegatedFrom); err != nil {
			if isUniqueViolation(err) {
				return types.Workflow{}, ports.ErrVersionConflict
			}
			return types.Workflow{}, err
		}
	}

	for _, ev := range events {
		if _, err := tx.Exec(ctx, `
INSERT INTO signing.outbox (event_id, contract_id, event_type, payload, occurred_at)
VALUES ($1::uuid, $2, $3, $4::jsonb, $5)
`, ev.ID, ev.ContractID, string(ev.Type), []byte(ev.Data), ev.OccurredAt); err != nil {
			return types.Workflow{}, fmt.Errorf("outbox %s: %w", ev.Type, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Workflow{}, err
	}
	return saved, nil
}

func (s *WorkflowPGStore) ListOpen(ctx context.Context, limit int) ([]types.Workflow, error) {
	if limit <= 0 {
		limit = 100
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(context.Background())

	rows, err := tx.Query(ctx, `
SELECT `+selectWorkflowColumns+`
FROM signing.workflows
WHERE state NOT IN ('draft', 'active', 'rejected')
ORDER BY updated_at ASC, contract_id ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	var out []types.Workflow
	var ids []string
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, wf)
		ids = append(ids, wf.ContractID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		sigs, err := querySignatures(ctx, tx, ids)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i].Signatures = sigs[out[i].ContractID]
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func scanWorkflow(row pgx.Row) (types.Workflow, error) {
	var wf types.Workflow
	var state, pendingRole, pendingName, pendingContact, delegatedBy string
	var delegatedAt *time.Time
	if err := row.Scan(
		&wf.ContractID,
		&state,
		&wf.SentForSignaturesAt,
		&wf.RequestedBy,
		&pendingRole,
		&pendingName,
		&pendingContact,
		&delegatedBy,
		&delegatedAt,
		&wf.RejectedAt,
		&wf.RejectReason,
		&wf.Version,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	); err != nil {
		return types.Workflow{}, err
	}

	parsed, ok := types.ParseState(state)
	if !ok {
		return types.Workflow{}, types.NewError(types.KindLedgerCorruption, "contract %s: unknown stored state %q", wf.ContractID, state)
	}
	wf.State = parsed

	if pendingRole != "" {
		a := &types.Assignee{
			Role:        types.Role(pendingRole),
			Signer:      types.Signer{Name: pendingName, Contact: pendingContact},
			DelegatedBy: delegatedBy,
		}
		if delegatedAt != nil {
			a.DelegatedAt = *delegatedAt
		}
		wf.PendingAssignee = a
	}
	return wf, nil
}

func querySignatures(ctx context.Context, tx pgx.Tx, contractIDs []string) (map[string][]types.SignatureRecord, error) {
	rows, err := tx.Query(ctx, `
SELECT contract_id, role, signer_name, signer_contact, signed_at, origin_hint, delegated_from
FROM signing.signatures
WHERE contract_id = ANY($1)
ORDER BY contract_id, seq
`, contractIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]types.SignatureRecord, len(contractIDs))
	for rows.Next() {
		var contractID, role string
		var r types.SignatureRecord
		if err := rows.Scan(&contractID, &role, &r.SignerName, &r.SignerContact, &r.SignedAt, &r.OriginHint, &r.DelegatedFrom); err != nil {
			return nil, err
		}
		r.Role = types.Role(role)
		out[contractID] = append(out[contractID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	pgErr, ok := errors.AsType[*pgconn.PgError](err)
	return ok && pgErr.Code == pgUniqueViolation
}
