package expiry

import (
	"context"
	"errors"
	"time"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

const rejectedBy = "expiry-job"

type WorkflowService interface {
	ListOpen(ctx context.Context, limit int) ([]types.Snapshot, error)
	Reject(ctx context.Context, contractID string, reason string, rejectedBy string) (types.Snapshot, error)
}

type Report struct {
	Checked  int
	Rejected int
	Skipped  int
	Failed   int
}

// Job rejects open workflows the policy considers expired. It is the only
// automatic path to rejection; there are no timers inside the workflow.
type Job struct {
	svc          WorkflowService
	policy       *Policy
	batch        int
	maxWaitHours int64
}

func NewJob(svc WorkflowService, policy *Policy, batch int, maxWait time.Duration) *Job {
	if batch <= 0 {
		batch = 500
	}
	return &Job{svc: svc, policy: policy, batch: batch, maxWaitHours: int64(maxWait / time.Hour)}
}

func (j *Job) RunOnce(ctx context.Context) (Report, error) {
	snaps, err := j.svc.ListOpen(ctx, j.batch)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	for _, snap := range snaps {
		rep.Checked++
		d, err := j.policy.Decide(ctx, Input{
			ContractID:   snap.ContractID,
			State:        string(snap.State),
			PendingRole:  string(snap.PendingRole),
			WaitingHours: waitingHours(snap.Timing),
			MaxWaitHours: j.maxWaitHours,
		})
		if err != nil {
			return rep, err
		}
		if !d.Reject {
			continue
		}

		cctx := logger.WithContractID(ctx, snap.ContractID)
		if _, err := j.svc.Reject(cctx, snap.ContractID, d.Reason, rejectedBy); err != nil {
			if errors.Is(err, types.ErrWorkflowTerminal) {
				rep.Skipped++
				continue
			}
			rep.Failed++
			logger.Error(cctx, "expiry reject failed", "error", err)
			continue
		}
		rep.Rejected++
		logger.Info(cctx, "workflow expired", "reason", d.Reason)
	}
	return rep, nil
}

// waitingHours is how long the open stage has been waiting, in whole hours.
func waitingHours(t types.Timing) int64 {
	for _, s := range t.Stages {
		if s.Open && s.Waiting != nil {
			return s.Waiting.TotalSeconds / 3600
		}
	}
	return 0
}
