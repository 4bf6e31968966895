package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/ports"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

// DirectoryPGStore reads contract parties from signing.contract_parties, the
// projection the contract store keeps of who signs for each role.
type DirectoryPGStore struct {
	pool pgBeginner
}

func NewDirectoryPGStore(pool pgBeginner) *DirectoryPGStore {
	return &DirectoryPGStore{pool: pool}
}

var _ ports.ContractDirectory = (*DirectoryPGStore)(nil)

func (s *DirectoryPGStore) ContractExists(ctx context.Context, contractID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(context.Background())

	var exists bool
	if err := tx.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM signing.contract_parties WHERE contract_id = $1)
    OR EXISTS (SELECT 1 FROM signing.workflows WHERE contract_id = $1)
`, contractID).Scan(&exists); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *DirectoryPGStore) DefaultSigner(ctx context.Context, contractID string, role types.Role) (types.Signer, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Signer{}, err
	}
	defer tx.Rollback(context.Background())

	var signer types.Signer
	err = tx.QueryRow(ctx, `
SELECT name, contact
FROM signing.contract_parties
WHERE contract_id = $1 AND role = $2
`, contractID, string(role)).Scan(&signer.Name, &signer.Contact)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Signer{}, ports.ErrContractNotFound
	}
	if err != nil {
		return types.Signer{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Signer{}, err
	}
	return signer, nil
}

// UpsertParty records the default signer of a role. Used by dbtool seeding.
func (s *DirectoryPGStore) UpsertParty(ctx context.Context, contractID string, role types.Role, signer types.Signer) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background())

	if _, err := tx.Exec(ctx, `
INSERT INTO signing.contract_parties (contract_id, role, name, contact)
VALUES ($1, $2, $3, $4)
ON CONFLICT (contract_id, role) DO UPDATE SET name = EXCLUDED.name, contact = EXCLUDED.contact
`, contractID, string(role), signer.Name, signer.Contact); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
