package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"learnquest_backend/internal/model"
	"learnquest_backend/internal/util"
	"learnquest_backend/pkg/ledger"
	"learnquest_backend/pkg/logger"
	"learnquest_backend/pkg/monitoring"
	"learnquest_backend/pkg/tracing"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const submissionGuardPrefix = "submission:inflight:"

// TestSubmission 客户端提交的一次测试结果，AttemptID 由客户端生成且每次尝试唯一
type TestSubmission struct {
	AttemptID       string  `json:"attemptId" binding:"required,max=64"`
	TestID          string  `json:"testId" binding:"required,max=64"`
	CorrectAnswers  int     `json:"correctAnswers" binding:"min=0"`
	TotalQuestions  int     `json:"totalQuestions" binding:"min=1"`
	Percent         float64 `json:"percent"`
	DurationSeconds int     `json:"durationSeconds" binding:"min=0"`
	ClientTimestamp string  `json:"clientTimestamp"`
}

type SubmissionOutcome struct {
	AttemptID     string `json:"attemptId"`
	XPAwarded     int64  `json:"xpAwarded"`
	NewXP         int64  `json:"newXP"`
	NewLevel      int    `json:"newLevel"`
	PreviousLevel int    `json:"previousLevel"`
	StreakCount   int    `json:"streakCount"`
	Replayed      bool   `json:"replayed"`
}

type LessonOutcome struct {
	LessonID         string `json:"lessonId"`
	AlreadyCompleted bool   `json:"alreadyCompleted"`
	XPAwarded        int64  `json:"xpAwarded"`
	NewXP            int64  `json:"newXP"`
	NewLevel         int    `json:"newLevel"`
	StreakCount      int    `json:"streakCount"`
}

// validateSubmission 基本校验 + 反作弊：答题时长不得低于每题最短时长
func (s *ProgressionService) validateSubmission(req TestSubmission) error {
	if strings.TrimSpace(req.AttemptID) == "" || strings.TrimSpace(req.TestID) == "" {
		return util.ErrInvalidPayload
	}
	if req.TotalQuestions <= 0 || req.CorrectAnswers < 0 || req.CorrectAnswers > req.TotalQuestions {
		return util.ErrInvalidPayload
	}
	if req.DurationSeconds < 0 {
		return util.ErrInvalidPayload
	}
	minSeconds := s.Tunables.Get().MinSecondsPerQuestion * req.TotalQuestions
	if req.DurationSeconds < minSeconds {
		return util.ErrSuspiciousDuration
	}
	return nil
}

// payloadHash 百分比由服务端重新计算，不参与比较
func payloadHash(req TestSubmission) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%d",
		req.TestID, req.CorrectAnswers, req.TotalQuestions, req.DurationSeconds)))
	return hex.EncodeToString(sum[:])
}

func replayOutcome(existing *model.TestResult, hash string) (*SubmissionOutcome, error) {
	if existing.PayloadHash != hash {
		return nil, util.ErrDuplicateAttempt
	}
	return &SubmissionOutcome{
		AttemptID:     existing.AttemptID,
		XPAwarded:     existing.XPAwarded,
		NewXP:         existing.XPAfter,
		NewLevel:      ledger.LevelForXP(existing.XPAfter),
		PreviousLevel: ledger.LevelForXP(existing.XPAfter - existing.XPAwarded),
		Replayed:      true,
	}, nil
}

// acquireSubmissionGuard 同一 attempt 的并发提交只放行一个，Redis 不可用时退化为只依赖唯一索引
func (s *ProgressionService) acquireSubmissionGuard(ctx context.Context, userID uint, attemptID string) (func(), error) {
	noop := func() {}
	if s.Redis == nil {
		return noop, nil
	}

	key := fmt.Sprintf("%s%d:%s", submissionGuardPrefix, userID, attemptID)
	ok, err := s.Redis.SetNX(ctx, key, "1", s.Tunables.Get().SubmissionGuardTTL()).Result()
	if err != nil {
		logger.Log.Warn("submission guard unavailable", zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, util.ErrSubmissionInFlight
	}
	return func() {
		if err := s.Redis.Del(context.Background(), key).Err(); err != nil {
			logger.Log.Warn("submission guard release failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// SubmitTestResult 幂等提交：相同 attempt + 相同内容返回首次结果，不同内容拒绝
// 等级由服务端依据自己的 XP 重新计算
func (s *ProgressionService) SubmitTestResult(ctx context.Context, userID uint, req TestSubmission) (_ *SubmissionOutcome, err error) {
	ctx, end := tracing.StartSpan(ctx, "progression.submit_test", userID,
		attribute.String("attempt.id", req.AttemptID), attribute.String("test.id", req.TestID))
	defer func() { end(err) }()

	if err := s.validateSubmission(req); err != nil {
		monitoring.SubmissionCounter.WithLabelValues("rejected").Inc()
		return nil, err
	}
	hash := payloadHash(req)

	existing, err := s.ResultRepo.FindByAttempt(userID, req.AttemptID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		monitoring.SubmissionCounter.WithLabelValues("replayed").Inc()
		return replayOutcome(existing, hash)
	}

	release, err := s.acquireSubmissionGuard(ctx, userID, req.AttemptID)
	if err != nil {
		monitoring.SubmissionCounter.WithLabelValues("in_flight").Inc()
		return nil, err
	}
	defer release()

	var outcome *SubmissionOutcome
	err = s.inTx(func(tx *progressTx) error {
		existing, err := tx.results.FindByAttempt(userID, req.AttemptID)
		if err != nil {
			return err
		}
		if existing != nil {
			outcome, err = replayOutcome(existing, hash)
			return err
		}

		now := s.now()
		user, _, err := s.lockUser(tx, userID, now)
		if err != nil {
			return err
		}

		previousLevel := ledger.LevelForXP(user.XP)
		xp := ledger.TestXP(req.CorrectAnswers)
		s.award(user, xp, "test")

		today := ledger.LocalDay(now, user.Timezone)
		if err := s.incrementDaily(tx, user.ID, today, ledger.TaskTest); err != nil {
			return err
		}
		if err := s.recordActivity(tx, user, today); err != nil {
			return err
		}
		if err := tx.users.SaveProgress(user); err != nil {
			return err
		}

		result := &model.TestResult{
			UserID:          user.ID,
			AttemptID:       req.AttemptID,
			TestID:          req.TestID,
			CorrectAnswers:  req.CorrectAnswers,
			TotalQuestions:  req.TotalQuestions,
			Percent:         100 * float64(req.CorrectAnswers) / float64(req.TotalQuestions),
			DurationSeconds: req.DurationSeconds,
			ClientTimestamp: req.ClientTimestamp,
			PayloadHash:     hash,
			XPAwarded:       xp,
			XPAfter:         user.XP,
			SubmittedAt:     now,
		}
		if err := tx.results.Create(result); err != nil {
			return err
		}

		outcome = &SubmissionOutcome{
			AttemptID:     req.AttemptID,
			XPAwarded:     xp,
			NewXP:         user.XP,
			NewLevel:      ledger.LevelForXP(user.XP),
			PreviousLevel: previousLevel,
			StreakCount:   user.StreakCount,
		}
		return nil
	})

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// 并发的同一 attempt 已先提交
		if existing, ferr := s.ResultRepo.FindByAttempt(userID, req.AttemptID); ferr == nil && existing != nil {
			monitoring.SubmissionCounter.WithLabelValues("replayed").Inc()
			return replayOutcome(existing, hash)
		}
	}
	if err != nil {
		monitoring.SubmissionCounter.WithLabelValues("failed").Inc()
		return nil, err
	}

	if outcome.Replayed {
		monitoring.SubmissionCounter.WithLabelValues("replayed").Inc()
		return outcome, nil
	}

	monitoring.SubmissionCounter.WithLabelValues("accepted").Inc()
	s.invalidate(ctx)
	logger.Log.Info("test result accepted",
		zap.Uint("userID", userID),
		zap.String("attemptID", req.AttemptID),
		zap.Int64("xp", outcome.XPAwarded),
		zap.Int("level", outcome.NewLevel))
	return outcome, nil
}

// CompleteLesson 幂等：已完成的课程直接返回当前状态
func (s *ProgressionService) CompleteLesson(ctx context.Context, userID uint, lessonID string) (*LessonOutcome, error) {
	lessonID = strings.TrimSpace(lessonID)
	if lessonID == "" || len(lessonID) > 64 {
		return nil, util.ErrInvalidPayload
	}

	var outcome *LessonOutcome
	err := s.inTx(func(tx *progressTx) error {
		now := s.now()
		user, _, err := s.lockUser(tx, userID, now)
		if err != nil {
			return err
		}

		today := ledger.LocalDay(now, user.Timezone)
		first, err := tx.lessons.MarkCompleted(user.ID, lessonID, today)
		if err != nil {
			return err
		}

		outcome = &LessonOutcome{LessonID: lessonID, AlreadyCompleted: !first}
		if first {
			outcome.XPAwarded = ledger.LessonXP
			s.award(user, ledger.LessonXP, "lesson")
			if err := s.incrementDaily(tx, user.ID, today, ledger.TaskLesson); err != nil {
				return err
			}
			if err := s.recordActivity(tx, user, today); err != nil {
				return err
			}
			if err := tx.users.SaveProgress(user); err != nil {
				return err
			}
		}

		outcome.NewXP = user.XP
		outcome.NewLevel = ledger.LevelForXP(user.XP)
		outcome.StreakCount = effectiveStreak(user, today)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !outcome.AlreadyCompleted {
		s.invalidate(ctx)
	}
	return outcome, nil
}
