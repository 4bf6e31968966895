// Package ledger holds the append-only signature trail of one contract workflow.
//
// The workflow state machine checks ordering before it appends; the ledger checks
// again on every Append and refuses any write that would break role uniqueness,
// canonical role order or timestamp monotonicity.
package ledger

import (
	"strings"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

type Ledger struct {
	records []types.SignatureRecord
}

func New() *Ledger {
	return &Ledger{}
}

// FromRecords rebuilds a ledger from persisted rows, replaying every append check.
func FromRecords(records []types.SignatureRecord) (*Ledger, error) {
	l := New()
	for _, r := range records {
		if err := l.Append(r); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) Append(r types.SignatureRecord) error {
	if !r.Role.Valid() {
		return corruption(r.Role, "unknown role %q", r.Role)
	}
	if strings.TrimSpace(r.SignerName) == "" {
		return corruption(r.Role, "empty signer name for role %s", r.Role)
	}
	if r.SignedAt.IsZero() {
		return corruption(r.Role, "missing signed_at for role %s", r.Role)
	}
	if l.HasSigned(r.Role) {
		return corruption(r.Role, "duplicate signature for role %s", r.Role)
	}
	if want := len(l.records) + 1; r.Role.Order() != want {
		return corruption(r.Role, "role %s appended at position %d", r.Role, want)
	}
	if last, ok := l.Last(); ok && r.SignedAt.Before(last.SignedAt) {
		return corruption(r.Role, "signed_at of %s precedes %s", r.Role, last.Role)
	}
	l.records = append(l.records, r)
	return nil
}

func (l *Ledger) HasSigned(role types.Role) bool {
	_, ok := l.Get(role)
	return ok
}

func (l *Ledger) Get(role types.Role) (types.SignatureRecord, bool) {
	for _, r := range l.records {
		if r.Role == role {
			return r, true
		}
	}
	return types.SignatureRecord{}, false
}

func (l *Ledger) Last() (types.SignatureRecord, bool) {
	if len(l.records) == 0 {
		return types.SignatureRecord{}, false
	}
	return l.records[len(l.records)-1], true
}

func (l *Ledger) Len() int { return len(l.records) }

// All returns the records in append order. The slice is a copy.
func (l *Ledger) All() []types.SignatureRecord {
	out := make([]types.SignatureRecord, len(l.records))
	copy(out, l.records)
	return out
}

func corruption(role types.Role, format string, args ...any) error {
	e := types.NewError(types.KindLedgerCorruption, format, args...)
	e.Role = role
	return e
}
