package engine

import (
	"context"
	"fmt"
	"learnquest_backend/pkg/engine/cache"
	"learnquest_backend/pkg/engine/remote"
	"learnquest_backend/pkg/ledger"
)

type MilestoneTracker struct {
	e *Engine
}

// List 服务端的里程碑进度；匿名用户只能看到定义和本地领取记录
func (m *MilestoneTracker) List(ctx context.Context) ([]remote.Milestone, error) {
	userID, ok := m.e.onlineUser()
	if !ok {
		claimed := make(map[string]bool)
		for _, c := range m.e.Store.Snapshot().ClaimedMilestones {
			claimed[c] = true
		}
		out := make([]remote.Milestone, 0, len(ledger.Milestones))
		for _, def := range ledger.Milestones {
			out = append(out, remote.Milestone{MilestoneDef: def, IsClaimed: claimed[def.Code]})
		}
		return out, nil
	}
	return cache.Fetch(ctx, m.e.Cache, cache.MilestonesKey(userID), func(ctx context.Context) ([]remote.Milestone, error) {
		return m.e.Remote.ListMilestones(ctx, userID)
	})
}

func (m *MilestoneTracker) Claim(ctx context.Context, code string) (*remote.ClaimResult, error) {
	if _, ok := ledger.FindMilestone(code); !ok {
		return nil, fmt.Errorf("unknown milestone %q", code)
	}
	userID, ok := m.e.onlineUser()
	if !ok {
		return nil, ErrAnonymous
	}
	res, err := retryOnce(ctx, m.e.retryDelay, func() (*remote.ClaimResult, error) {
		return m.e.Remote.ClaimMilestone(ctx, userID, code)
	})
	if err != nil {
		return nil, err
	}
	if res.Status == remote.ClaimOK || res.Status == remote.ClaimAlreadyClaimed {
		m.e.Store.MarkMilestoneClaimed(code)
	}
	m.e.Reconciler.ApplyServerXP(res.NewXP)
	m.e.Reconciler.InvalidateUser(userID)
	return res, nil
}
