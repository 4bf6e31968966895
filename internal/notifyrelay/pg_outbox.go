package notifyrelay

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGOutbox drains signing.outbox. Rows are claimed with FOR UPDATE SKIP LOCKED so
// several relays can run side by side without delivering a row twice.
type PGOutbox struct {
	pool        pgBeginner
	maxAttempts int
}

func NewPGOutbox(pool pgBeginner, maxAttempts int) *PGOutbox {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &PGOutbox{pool: pool, maxAttempts: maxAttempts}
}

func (o *PGOutbox) Drain(ctx context.Context, limit int, deliver DeliverFunc) (Result, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT event_id::text, contract_id, event_type, payload, occurred_at
FROM signing.outbox
WHERE dispatched_at IS NULL
  AND attempts < $1::int
ORDER BY occurred_at ASC, event_id ASC
LIMIT $2::int
FOR UPDATE SKIP LOCKED
`, o.maxAttempts, limit)
	if err != nil {
		return Result{}, err
	}
	var events []types.Event
	for rows.Next() {
		var ev types.Event
		var typ string
		if err := rows.Scan(&ev.ID, &ev.ContractID, &typ, &ev.Data, &ev.OccurredAt); err != nil {
			rows.Close()
			return Result{}, err
		}
		ev.Type = types.EventType(typ)
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	var res Result
	for _, ev := range events {
		if derr := deliver(ctx, ev); derr != nil {
			res.Failed++
			if _, err := tx.Exec(ctx, `
UPDATE signing.outbox
SET attempts = attempts + 1, last_error = $2::text
WHERE event_id = $1::uuid
`, ev.ID, truncate(derr.Error(), 1000)); err != nil {
				return Result{}, err
			}
			continue
		}
		res.Dispatched++
		if _, err := tx.Exec(ctx, `
UPDATE signing.outbox
SET dispatched_at = $2, attempts = attempts + 1, last_error = ''
WHERE event_id = $1::uuid
`, ev.ID, time.Now().UTC()); err != nil {
			return Result{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	return res, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
