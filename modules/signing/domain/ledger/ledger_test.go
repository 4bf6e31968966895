package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func rec(role types.Role, name string, at time.Time) types.SignatureRecord {
	return types.SignatureRecord{Role: role, SignerName: name, SignedAt: at}
}

func TestLedger_AppendInOrder(t *testing.T) {
	l := New()
	if l.HasSigned(types.RoleTenant) {
		t.Fatal("empty ledger has no signatures")
	}
	if _, ok := l.Last(); ok {
		t.Fatal("empty ledger has no last record")
	}

	for i, r := range []types.SignatureRecord{
		rec(types.RoleTenant, "Salim", t0),
		rec(types.RoleOwner, "Ali", t0.Add(time.Hour)),
		rec(types.RoleAdmin, "Admin Office", t0.Add(time.Hour)),
	} {
		if err := l.Append(r); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if l.Len() != 3 {
		t.Fatalf("len=%d", l.Len())
	}
	got, ok := l.Get(types.RoleOwner)
	if !ok || got.SignerName != "Ali" {
		t.Fatalf("got=%+v ok=%v", got, ok)
	}

	all := l.All()
	all[0].SignerName = "mutated"
	if r, _ := l.Get(types.RoleTenant); r.SignerName != "Salim" {
		t.Fatal("All must return a copy")
	}
}

func TestLedger_AppendRejectsCorruption(t *testing.T) {
	cases := []struct {
		name  string
		seed  []types.SignatureRecord
		input types.SignatureRecord
	}{
		{name: "unknown role", input: rec("observer", "x", t0)},
		{name: "empty signer", input: rec(types.RoleTenant, "  ", t0)},
		{name: "zero time", input: types.SignatureRecord{Role: types.RoleTenant, SignerName: "x"}},
		{name: "owner first", input: rec(types.RoleOwner, "Ali", t0)},
		{
			name:  "duplicate tenant",
			seed:  []types.SignatureRecord{rec(types.RoleTenant, "Salim", t0)},
			input: rec(types.RoleTenant, "Salim", t0.Add(time.Minute)),
		},
		{
			name:  "admin skips owner",
			seed:  []types.SignatureRecord{rec(types.RoleTenant, "Salim", t0)},
			input: rec(types.RoleAdmin, "Admin", t0.Add(time.Minute)),
		},
		{
			name:  "time goes backwards",
			seed:  []types.SignatureRecord{rec(types.RoleTenant, "Salim", t0)},
			input: rec(types.RoleOwner, "Ali", t0.Add(-time.Second)),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := FromRecords(tc.seed)
			if err != nil {
				t.Fatalf("seed: %v", err)
			}
			before := l.Len()
			err = l.Append(tc.input)
			if !errors.Is(err, types.ErrLedgerCorruption) {
				t.Fatalf("err=%v", err)
			}
			if l.Len() != before {
				t.Fatal("rejected append must not change the ledger")
			}
		})
	}
}

func TestFromRecords_ReplaysChecks(t *testing.T) {
	_, err := FromRecords([]types.SignatureRecord{
		rec(types.RoleTenant, "Salim", t0),
		rec(types.RoleTenant, "Salim", t0),
	})
	if !errors.Is(err, types.ErrLedgerCorruption) {
		t.Fatalf("err=%v", err)
	}
}
