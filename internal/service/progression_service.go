package service

import (
	"context"
	"errors"
	"fmt"
	"learnquest_backend/internal/model"
	"learnquest_backend/internal/repository"
	"learnquest_backend/internal/util"
	"learnquest_backend/pkg/ledger"
	"learnquest_backend/pkg/logger"
	"learnquest_backend/pkg/monitoring"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 资料里返回的活跃日范围（含今天）
const profileActivityDays = 14

type LeaderboardInvalidator interface {
	InvalidateLeaderboard(ctx context.Context)
}

// ProgressionService 服务端成长系统：XP、体力、每日任务、连续打卡、测试提交
// 所有写操作都在事务里先锁用户行再修改，保证同一用户的成长字段单写者
type ProgressionService struct {
	DB            *gorm.DB
	UserRepo      *repository.UserRepository
	ActivityRepo  *repository.ActivityRepository
	DailyRepo     *repository.DailyProgressRepository
	ResultRepo    *repository.TestResultRepository
	LessonRepo    *repository.LessonRepository
	MilestoneRepo *repository.MilestoneRepository
	Redis         *redis.Client
	Tunables      *Tunables
	Leaderboard   LeaderboardInvalidator
	Now           func() time.Time
}

func NewProgressionService(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	activityRepo *repository.ActivityRepository,
	dailyRepo *repository.DailyProgressRepository,
	resultRepo *repository.TestResultRepository,
	lessonRepo *repository.LessonRepository,
	milestoneRepo *repository.MilestoneRepository,
	rdb *redis.Client,
	tunables *Tunables,
	leaderboard LeaderboardInvalidator,
) *ProgressionService {
	return &ProgressionService{
		DB:            db,
		UserRepo:      userRepo,
		ActivityRepo:  activityRepo,
		DailyRepo:     dailyRepo,
		ResultRepo:    resultRepo,
		LessonRepo:    lessonRepo,
		MilestoneRepo: milestoneRepo,
		Redis:         rdb,
		Tunables:      tunables,
		Leaderboard:   leaderboard,
		Now:           time.Now,
	}
}

type ClaimedFlags struct {
	LessonClaimed bool     `json:"lessonClaimed"`
	TestClaimed   bool     `json:"testClaimed"`
	WeeklyReward  bool     `json:"weeklyReward"`
	Milestones    []string `json:"milestones"`
}

type ProfileView struct {
	UserID             uint            `json:"userId"`
	Name               string          `json:"name"`
	TotalXP            int64           `json:"totalXP"`
	CurrentLevel       int             `json:"currentLevel"`
	Progress           ledger.Progress `json:"progress"`
	CurrentEnergy      int             `json:"currentEnergy"`
	MaxEnergy          int             `json:"maxEnergy"`
	LastRegenTimestamp time.Time       `json:"lastRegenTimestamp"`
	StreakCount        int             `json:"streakCount"`
	WeeklyActivitySet  []string        `json:"weeklyActivitySet"`
	ClaimedFlags       ClaimedFlags    `json:"claimedFlags"`
	Timezone           string          `json:"timezone"`
	Today              string          `json:"today"`
}

// StatsPatch 客户端回写的部分字段，nil 表示不修改
type StatsPatch struct {
	TotalXP     *int64  `json:"totalXP"`
	EnergyDelta *int    `json:"energyDelta"`
	Timezone    *string `json:"timezone"`
}

type EnergyView struct {
	CurrentEnergy        int        `json:"currentEnergy"`
	MaxEnergy            int        `json:"maxEnergy"`
	LastRegenTimestamp   time.Time  `json:"lastRegenTimestamp"`
	NextRegenAt          *time.Time `json:"nextRegenAt,omitempty"`
	RegenIntervalSeconds int64      `json:"regenIntervalSeconds"`
}

type progressTx struct {
	users      *repository.UserRepository
	activity   *repository.ActivityRepository
	daily      *repository.DailyProgressRepository
	results    *repository.TestResultRepository
	lessons    *repository.LessonRepository
	milestones *repository.MilestoneRepository
}

func (s *ProgressionService) inTx(fn func(tx *progressTx) error) error {
	return s.DB.Transaction(func(db *gorm.DB) error {
		return fn(&progressTx{
			users:      s.UserRepo.WithTx(db),
			activity:   s.ActivityRepo.WithTx(db),
			daily:      s.DailyRepo.WithTx(db),
			results:    s.ResultRepo.WithTx(db),
			lessons:    s.LessonRepo.WithTx(db),
			milestones: s.MilestoneRepo.WithTx(db),
		})
	})
}

func (s *ProgressionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *ProgressionService) invalidate(ctx context.Context) {
	if s.Leaderboard != nil {
		s.Leaderboard.InvalidateLeaderboard(ctx)
	}
}

// lockUser 锁定用户行并结算体力恢复
func (s *ProgressionService) lockUser(tx *progressTx, userID uint, now time.Time) (*model.User, bool, error) {
	user, err := tx.users.FindByIDForUpdate(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, util.ErrUserNotFound
	}
	if err != nil {
		return nil, false, err
	}
	changed := s.applyRegen(user, now)
	return user, changed, nil
}

// applyRegen 按当前参数结算体力，返回是否有字段变化
func (s *ProgressionService) applyRegen(user *model.User, now time.Time) bool {
	cfg := s.Tunables.Get()
	beforeEnergy, beforeMax, beforeAt := user.Energy, user.MaxEnergy, user.EnergyUpdatedAt

	if user.MaxEnergy != cfg.MaxEnergy {
		if user.MaxEnergy == 0 {
			user.Energy = cfg.MaxEnergy
		}
		user.MaxEnergy = cfg.MaxEnergy
	}
	user.Energy, user.EnergyUpdatedAt = ledger.RegenerateEnergy(
		user.Energy, user.MaxEnergy, user.EnergyUpdatedAt, now, cfg.RegenInterval(),
	)

	return user.Energy != beforeEnergy || user.MaxEnergy != beforeMax || !user.EnergyUpdatedAt.Equal(beforeAt)
}

func (s *ProgressionService) award(user *model.User, xp int64, source string) {
	if xp <= 0 {
		return
	}
	before := user.XP
	user.XP = ledger.AddXP(user.XP, xp)
	if gained := user.XP - before; gained > 0 {
		monitoring.XPAwarded.WithLabelValues(source).Add(float64(gained))
	}
}

// effectiveStreak 昨天和今天都没有活跃则连续天数已断
func effectiveStreak(user *model.User, today string) int {
	if user.LastActiveDay == today || user.LastActiveDay == ledger.AddDays(today, -1) {
		return user.StreakCount
	}
	return 0
}

func (s *ProgressionService) buildProfile(tx *progressTx, user *model.User, now time.Time) (*ProfileView, error) {
	today := ledger.LocalDay(now, user.Timezone)

	days, err := tx.activity.ListSince(user.ID, ledger.AddDays(today, -(profileActivityDays-1)))
	if err != nil {
		return nil, err
	}
	dp, err := tx.daily.FindByUserAndDate(user.ID, today)
	if err != nil {
		return nil, err
	}
	claimedCodes, err := tx.milestones.ClaimedCodes(user.ID)
	if err != nil {
		return nil, err
	}

	streak := effectiveStreak(user, today)
	flags := ClaimedFlags{
		WeeklyReward: streak > 0 && user.WeeklyRewardClaimed,
		Milestones:   make([]string, 0, len(claimedCodes)),
	}
	if dp != nil {
		flags.LessonClaimed = dp.LessonClaimed
		flags.TestClaimed = dp.TestClaimed
	}
	for _, m := range ledger.Milestones {
		if claimedCodes[m.Code] {
			flags.Milestones = append(flags.Milestones, m.Code)
		}
	}
	if days == nil {
		days = []string{}
	}

	progress := ledger.ProgressWithinLevel(user.XP)
	return &ProfileView{
		UserID:             user.ID,
		Name:               user.Name,
		TotalXP:            user.XP,
		CurrentLevel:       progress.Level,
		Progress:           progress,
		CurrentEnergy:      user.Energy,
		MaxEnergy:          user.MaxEnergy,
		LastRegenTimestamp: user.EnergyUpdatedAt,
		StreakCount:        streak,
		WeeklyActivitySet:  days,
		ClaimedFlags:       flags,
		Timezone:           user.Timezone,
		Today:              today,
	}, nil
}

// GetProfile 读取权威资料，顺带把体力恢复结果落库
func (s *ProgressionService) GetProfile(ctx context.Context, userID uint) (*ProfileView, error) {
	var view *ProfileView
	err := s.inTx(func(tx *progressTx) error {
		now := s.now()
		user, changed, err := s.lockUser(tx, userID, now)
		if err != nil {
			return err
		}
		if changed {
			if err := tx.users.SaveProgress(user); err != nil {
				return err
			}
		}
		view, err = s.buildProfile(tx, user, now)
		return err
	})
	return view, err
}

// UpdateStats 客户端回写：XP 取较大值，体力只允许扣减，时区必须是合法 IANA 名称
func (s *ProgressionService) UpdateStats(ctx context.Context, userID uint, patch StatsPatch) (*ProfileView, error) {
	if patch.TotalXP != nil && (*patch.TotalXP < 0 || *patch.TotalXP > ledger.MaxXP) {
		return nil, fmt.Errorf("%w: totalXP must be within [0, %d]", util.ErrInvalidPayload, ledger.MaxXP)
	}
	if patch.EnergyDelta != nil && *patch.EnergyDelta > 0 {
		return nil, util.ErrInvalidPayload
	}
	if patch.Timezone != nil && *patch.Timezone != "" {
		if _, err := time.LoadLocation(*patch.Timezone); err != nil {
			return nil, util.ErrInvalidPayload
		}
	}

	var view *ProfileView
	xpChanged := false
	err := s.inTx(func(tx *progressTx) error {
		now := s.now()
		user, _, err := s.lockUser(tx, userID, now)
		if err != nil {
			return err
		}

		if patch.TotalXP != nil {
			if *patch.TotalXP > user.XP {
				s.award(user, *patch.TotalXP-user.XP, "sync")
				xpChanged = true
			} else if *patch.TotalXP < user.XP {
				logger.Log.Debug("ignored lower XP push",
					zap.Uint("userID", userID),
					zap.Int64("pushed", *patch.TotalXP),
					zap.Int64("current", user.XP))
			}
		}

		if patch.EnergyDelta != nil && *patch.EnergyDelta < 0 {
			consumed := -*patch.EnergyDelta
			if consumed > user.Energy {
				consumed = user.Energy
			}
			user.Energy -= consumed
			monitoring.EnergyConsumed.Add(float64(consumed))
		}

		if patch.Timezone != nil {
			user.Timezone = *patch.Timezone
		}

		if err := tx.users.SaveProgress(user); err != nil {
			return err
		}
		view, err = s.buildProfile(tx, user, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if xpChanged {
		s.invalidate(ctx)
	}
	return view, nil
}

// GetEnergy 结算并返回权威体力
func (s *ProgressionService) GetEnergy(ctx context.Context, userID uint) (*EnergyView, error) {
	var view *EnergyView
	err := s.inTx(func(tx *progressTx) error {
		now := s.now()
		user, changed, err := s.lockUser(tx, userID, now)
		if err != nil {
			return err
		}
		if changed {
			if err := tx.users.SaveProgress(user); err != nil {
				return err
			}
		}

		interval := s.Tunables.Get().RegenInterval()
		view = &EnergyView{
			CurrentEnergy:        user.Energy,
			MaxEnergy:            user.MaxEnergy,
			LastRegenTimestamp:   user.EnergyUpdatedAt,
			RegenIntervalSeconds: int64(interval / time.Second),
		}
		if next := ledger.NextRegenAt(user.Energy, user.MaxEnergy, user.EnergyUpdatedAt, interval); !next.IsZero() {
			view.NextRegenAt = &next
		}
		return nil
	})
	return view, err
}

// AdminResetProgress 管理员重置，唯一允许 XP 下降的途径
func (s *ProgressionService) AdminResetProgress(ctx context.Context, userID uint) (*ProfileView, error) {
	var view *ProfileView
	err := s.inTx(func(tx *progressTx) error {
		now := s.now()
		user, _, err := s.lockUser(tx, userID, now)
		if err != nil {
			return err
		}

		user.XP = 0
		user.StreakCount = 0
		user.LastActiveDay = ""
		user.WeeklyRewardClaimed = false
		user.Energy = user.MaxEnergy
		user.EnergyUpdatedAt = now

		if err := tx.activity.DeleteByUser(user.ID); err != nil {
			return err
		}
		if err := tx.daily.DeleteByUser(user.ID); err != nil {
			return err
		}
		if err := tx.users.SaveProgress(user); err != nil {
			return err
		}
		view, err = s.buildProfile(tx, user, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("progress reset by admin", zap.Uint("userID", userID))
	s.invalidate(ctx)
	return view, nil
}
