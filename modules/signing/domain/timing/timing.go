// Package timing derives per-stage elapsed and waiting times from the signature trail.
// Results are computed on read and never stored.
package timing

import (
	"time"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

// Analyze walks the chain sent → tenant → owner → admin. A stage whose end precedes
// its start, or an open stage that starts after now, is flagged as an anomaly and
// its elapsed or waiting value is left out; the read still succeeds. Pass the rejection time as now for rejected workflows so open
// stages stop accumulating.
func Analyze(sentAt *time.Time, records []types.SignatureRecord, now time.Time) types.Timing {
	signedAt := make(map[types.Role]time.Time, len(records))
	for _, r := range records {
		signedAt[r.Role] = r.SignedAt
	}

	out := types.Timing{Stages: make([]types.StageTiming, 0, len(types.Roles))}
	start := sentAt
	var last *time.Time
	for _, role := range types.Roles {
		st := types.StageTiming{Role: role}
		end, signed := signedAt[role]

		switch {
		case start != nil && signed:
			st.Start, st.End = ptr(*start), ptr(end)
			if d := end.Sub(*start); d < 0 {
				st.Anomaly = true
				out.Anomalies = append(out.Anomalies, anomaly(role, "ends before it starts"))
			} else {
				b := types.NewBreakdown(d)
				st.Elapsed = &b
			}
		case start != nil:
			st.Start = ptr(*start)
			st.Open = true
			st.WaitingSince = ptr(*start)
			if d := now.Sub(*start); d < 0 {
				st.Anomaly = true
				out.Anomalies = append(out.Anomalies, anomaly(role, "starts after the read time"))
			} else {
				b := types.NewBreakdown(d)
				st.Waiting = &b
			}
		case signed:
			st.End = ptr(end)
			st.Anomaly = true
			out.Anomalies = append(out.Anomalies, anomaly(role, "has no start"))
		}
		out.Stages = append(out.Stages, st)

		if !signed {
			start = nil
			continue
		}
		last = ptr(end)
		start = last
	}

	if sentAt != nil && last != nil && !last.Before(*sentAt) {
		b := types.NewBreakdown(last.Sub(*sentAt))
		out.Total = &b
	}
	return out
}

func anomaly(role types.Role, what string) string {
	return types.NewError(types.KindElapsedTimeAnomaly, "%s stage %s", role, what).Error()
}

func ptr(t time.Time) *time.Time { return &t }
