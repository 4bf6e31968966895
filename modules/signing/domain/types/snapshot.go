package types

import (
	"fmt"
	"time"
)

// Breakdown is a non-negative duration split into whole units for display.
type Breakdown struct {
	Days         int64 `json:"days"`
	Hours        int64 `json:"hours"`
	Minutes      int64 `json:"minutes"`
	Seconds      int64 `json:"seconds"`
	TotalSeconds int64 `json:"total_seconds"`
}

// NewBreakdown splits d into days, hours, minutes and seconds. Negative durations
// are clamped to zero.
func NewBreakdown(d time.Duration) Breakdown {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	return Breakdown{
		Days:         total / 86400,
		Hours:        total % 86400 / 3600,
		Minutes:      total % 3600 / 60,
		Seconds:      total % 60,
		TotalSeconds: total,
	}
}

// String renders the breakdown starting at its largest non-zero unit, e.g.
// "2d 0h 0m 0s", "3h 0m 0s" or "10m 0s".
func (b Breakdown) String() string {
	switch {
	case b.Days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", b.Days, b.Hours, b.Minutes, b.Seconds)
	case b.Hours > 0:
		return fmt.Sprintf("%dh %dm %ds", b.Hours, b.Minutes, b.Seconds)
	case b.Minutes > 0:
		return fmt.Sprintf("%dm %ds", b.Minutes, b.Seconds)
	default:
		return fmt.Sprintf("%ds", b.Seconds)
	}
}

type StageTiming struct {
	Role         Role       `json:"role"`
	Start        *time.Time `json:"start,omitempty"`
	End          *time.Time `json:"end,omitempty"`
	Elapsed      *Breakdown `json:"elapsed,omitempty"`
	Open         bool       `json:"open"`
	WaitingSince *time.Time `json:"waiting_since,omitempty"`
	Waiting      *Breakdown `json:"waiting,omitempty"`
	Anomaly      bool       `json:"anomaly"`
}

type Timing struct {
	Stages    []StageTiming `json:"stages"`
	Total     *Breakdown    `json:"total,omitempty"`
	Anomalies []string      `json:"anomalies,omitempty"`
}

// Snapshot is the read model returned by every operation and by GetState.
type Snapshot struct {
	ContractID          string            `json:"contract_id"`
	State               State             `json:"state"`
	SentForSignaturesAt *time.Time        `json:"sent_for_signatures_at,omitempty"`
	RequestedBy         string            `json:"requested_by,omitempty"`
	Signatures          []SignatureRecord `json:"signatures"`
	PendingRole         Role              `json:"pending_role,omitempty"`
	PendingAssignee     *Assignee         `json:"pending_assignee,omitempty"`
	ExpectedSigner      *Signer           `json:"expected_signer,omitempty"`
	RejectedAt          *time.Time        `json:"rejected_at,omitempty"`
	RejectReason        string            `json:"reject_reason,omitempty"`
	Timing              Timing            `json:"timing"`
	Version             int64             `json:"version"`
}
