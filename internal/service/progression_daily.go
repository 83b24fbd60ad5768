package service

import (
	"context"
	"errors"
	"learnquest_backend/internal/model"
	"learnquest_backend/internal/util"
	"learnquest_backend/pkg/ledger"
	"learnquest_backend/pkg/monitoring"
	"learnquest_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

type DailyProgressView struct {
	Date          string           `json:"date"`
	LessonsToday  int              `json:"lessonsToday"`
	TestsToday    int              `json:"testsToday"`
	LessonTarget  int              `json:"lessonTarget"`
	TestTarget    int              `json:"testTarget"`
	LessonClaimed bool             `json:"lessonClaimed"`
	TestClaimed   bool             `json:"testClaimed"`
	LessonState   ledger.TaskState `json:"lessonState"`
	TestState     ledger.TaskState `json:"testState"`
}

type ClaimOutcome struct {
	Status    string `json:"status"`
	XPAwarded int64  `json:"xpAwarded"`
	NewXP     int64  `json:"newXP"`
	NewLevel  int    `json:"newLevel"`
}

func (s *ProgressionService) dailyView(dp *model.DailyProgress, date string) *DailyProgressView {
	cfg := s.Tunables.Get()
	view := &DailyProgressView{
		Date:         date,
		LessonTarget: cfg.DailyLessonTarget,
		TestTarget:   cfg.DailyTestTarget,
	}
	if dp != nil {
		view.LessonsToday = dp.LessonsToday
		view.TestsToday = dp.TestsToday
		view.LessonClaimed = dp.LessonClaimed
		view.TestClaimed = dp.TestClaimed
	}
	view.LessonState = ledger.DailyTaskState(view.LessonsToday, view.LessonTarget, view.LessonClaimed)
	view.TestState = ledger.DailyTaskState(view.TestsToday, view.TestTarget, view.TestClaimed)
	return view
}

// GetDailyProgress 按用户时区取“今天”的进度
// 今天还没有记录时返回清零的快照，不会改动前一天的记录
func (s *ProgressionService) GetDailyProgress(ctx context.Context, userID uint) (*DailyProgressView, error) {
	user, err := s.UserRepo.FindByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	today := ledger.LocalDay(s.now(), user.Timezone)
	dp, err := s.DailyRepo.FindByUserAndDate(userID, today)
	if err != nil {
		return nil, err
	}
	return s.dailyView(dp, today), nil
}

func (s *ProgressionService) incrementDaily(tx *progressTx, userID uint, day string, task ledger.TaskType) error {
	dp, err := tx.daily.GetOrCreate(userID, day)
	if err != nil {
		return err
	}
	switch task {
	case ledger.TaskLesson:
		dp.LessonsToday++
	case ledger.TaskTest:
		dp.TestsToday++
	}
	return tx.daily.Save(dp)
}

// recordActivity 记录活跃日并维护连续天数
// 进入新的7天周期（第1、8、15…天）时重置周奖励领取标记
func (s *ProgressionService) recordActivity(tx *progressTx, user *model.User, day string) error {
	inserted, err := tx.activity.AddDay(user.ID, day)
	if err != nil || !inserted {
		return err
	}

	switch {
	case user.LastActiveDay == day:
		return nil
	case user.LastActiveDay == ledger.AddDays(day, -1):
		user.StreakCount++
	case user.LastActiveDay != "" && day < user.LastActiveDay:
		// 时区调整导致日期回退，只记入集合
		return nil
	default:
		user.StreakCount = 1
	}
	user.LastActiveDay = day

	if (user.StreakCount-1)%ledger.StreakCycleDays == 0 {
		user.WeeklyRewardClaimed = false
	}
	return nil
}

// ClaimDailyTask 领取每日任务奖励，重复领取返回 alreadyClaimed 且不再发放
func (s *ProgressionService) ClaimDailyTask(ctx context.Context, userID uint, task ledger.TaskType) (_ *ClaimOutcome, err error) {
	ctx, end := tracing.StartSpan(ctx, "progression.claim_daily", userID, attribute.String("task", string(task)))
	defer func() { end(err) }()

	if !task.Valid() {
		return nil, util.ErrInvalidTaskType
	}

	var outcome *ClaimOutcome
	err = s.inTx(func(tx *progressTx) error {
		now := s.now()
		user, _, err := s.lockUser(tx, userID, now)
		if err != nil {
			return err
		}

		today := ledger.LocalDay(now, user.Timezone)
		dp, err := tx.daily.GetOrCreate(user.ID, today)
		if err != nil {
			return err
		}

		cfg := s.Tunables.Get()
		claimed, count, target := dp.LessonClaimed, dp.LessonsToday, cfg.DailyLessonTarget
		if task == ledger.TaskTest {
			claimed, count, target = dp.TestClaimed, dp.TestsToday, cfg.DailyTestTarget
		}

		if claimed {
			outcome = &ClaimOutcome{Status: util.ClaimAlreadyClaimed, NewXP: user.XP, NewLevel: ledger.LevelForXP(user.XP)}
			return nil
		}
		if count < target {
			return util.ErrTaskNotCompleted
		}

		if task == ledger.TaskTest {
			dp.TestClaimed = true
		} else {
			dp.LessonClaimed = true
		}
		reward := ledger.DailyRewardXP(task)
		s.award(user, reward, "daily_"+string(task))

		if err := tx.daily.Save(dp); err != nil {
			return err
		}
		if err := tx.users.SaveProgress(user); err != nil {
			return err
		}
		outcome = &ClaimOutcome{Status: util.ClaimOK, XPAwarded: reward, NewXP: user.XP, NewLevel: ledger.LevelForXP(user.XP)}
		return nil
	})
	if err != nil {
		monitoring.ClaimCounter.WithLabelValues("daily_"+string(task), "rejected").Inc()
		return nil, err
	}

	monitoring.ClaimCounter.WithLabelValues("daily_"+string(task), outcome.Status).Inc()
	if outcome.Status == util.ClaimOK {
		s.invalidate(ctx)
	}
	return outcome, nil
}

// ClaimWeeklyReward 连续打卡满一个7天周期且今天已活跃时可领取一次
func (s *ProgressionService) ClaimWeeklyReward(ctx context.Context, userID uint) (*ClaimOutcome, error) {
	var outcome *ClaimOutcome
	err := s.inTx(func(tx *progressTx) error {
		now := s.now()
		user, _, err := s.lockUser(tx, userID, now)
		if err != nil {
			return err
		}

		today := ledger.LocalDay(now, user.Timezone)
		streak := effectiveStreak(user, today)
		cycleDone := streak > 0 && streak%ledger.StreakCycleDays == 0

		if cycleDone && user.WeeklyRewardClaimed {
			outcome = &ClaimOutcome{Status: util.ClaimAlreadyClaimed, NewXP: user.XP, NewLevel: ledger.LevelForXP(user.XP)}
			return nil
		}
		if !cycleDone || user.LastActiveDay != today {
			return util.ErrNotEligible
		}

		user.WeeklyRewardClaimed = true
		s.award(user, ledger.WeeklyStreakRewardXP, "weekly_streak")
		if err := tx.users.SaveProgress(user); err != nil {
			return err
		}
		outcome = &ClaimOutcome{
			Status:    util.ClaimOK,
			XPAwarded: ledger.WeeklyStreakRewardXP,
			NewXP:     user.XP,
			NewLevel:  ledger.LevelForXP(user.XP),
		}
		return nil
	})
	if err != nil {
		monitoring.ClaimCounter.WithLabelValues("weekly", "rejected").Inc()
		return nil, err
	}

	monitoring.ClaimCounter.WithLabelValues("weekly", outcome.Status).Inc()
	if outcome.Status == util.ClaimOK {
		s.invalidate(ctx)
	}
	return outcome, nil
}
