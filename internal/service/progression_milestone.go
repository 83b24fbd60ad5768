package service

import (
	"context"
	"learnquest_backend/internal/model"
	"learnquest_backend/internal/util"
	"learnquest_backend/pkg/ledger"
	"learnquest_backend/pkg/monitoring"
)

type MilestoneView struct {
	ledger.MilestoneDef
	Progress  int  `json:"progress"`
	IsReached bool `json:"isReached"`
	IsClaimed bool `json:"isClaimed"`
}

// ListMilestones 里程碑进度为累计完成的课程数
func (s *ProgressionService) ListMilestones(ctx context.Context, userID uint) ([]MilestoneView, error) {
	count, err := s.LessonRepo.CountByUser(userID)
	if err != nil {
		return nil, err
	}
	claimed, err := s.MilestoneRepo.ClaimedCodes(userID)
	if err != nil {
		return nil, err
	}

	views := make([]MilestoneView, 0, len(ledger.Milestones))
	for _, m := range ledger.Milestones {
		views = append(views, MilestoneView{
			MilestoneDef: m,
			Progress:     int(count),
			IsReached:    int(count) >= m.TargetCount,
			IsClaimed:    claimed[m.Code],
		})
	}
	return views, nil
}

func (s *ProgressionService) ClaimMilestone(ctx context.Context, userID uint, code string) (*ClaimOutcome, error) {
	def, ok := ledger.FindMilestone(code)
	if !ok {
		return nil, util.ErrMilestoneNotFound
	}

	var outcome *ClaimOutcome
	err := s.inTx(func(tx *progressTx) error {
		user, _, err := s.lockUser(tx, userID, s.now())
		if err != nil {
			return err
		}

		count, err := tx.lessons.CountByUser(user.ID)
		if err != nil {
			return err
		}
		if int(count) < def.TargetCount {
			return util.ErrNotEligible
		}

		first, err := tx.milestones.Claim(&model.MilestoneClaim{UserID: user.ID, Code: def.Code, XPAwarded: def.XPReward})
		if err != nil {
			return err
		}
		if !first {
			outcome = &ClaimOutcome{Status: util.ClaimAlreadyClaimed, NewXP: user.XP, NewLevel: ledger.LevelForXP(user.XP)}
			return nil
		}

		s.award(user, def.XPReward, "milestone")
		if err := tx.users.SaveProgress(user); err != nil {
			return err
		}
		outcome = &ClaimOutcome{Status: util.ClaimOK, XPAwarded: def.XPReward, NewXP: user.XP, NewLevel: ledger.LevelForXP(user.XP)}
		return nil
	})
	if err != nil {
		monitoring.ClaimCounter.WithLabelValues("milestone", "rejected").Inc()
		return nil, err
	}

	monitoring.ClaimCounter.WithLabelValues("milestone", outcome.Status).Inc()
	if outcome.Status == util.ClaimOK {
		s.invalidate(ctx)
	}
	return outcome, nil
}
