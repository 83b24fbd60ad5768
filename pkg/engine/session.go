package engine

import (
	"context"
	"learnquest_backend/pkg/engine/remote"
	"learnquest_backend/pkg/ledger"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionState int

const (
	StateNotStarted SessionState = iota
	StateInProgress
	StateAnswered
	StateComplete
	StateSubmitting
	StateSubmitted
	StateSubmitFailed
)

func (s SessionState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateInProgress:
		return "in_progress"
	case StateAnswered:
		return "answered"
	case StateComplete:
		return "complete"
	case StateSubmitting:
		return "submitting"
	case StateSubmitted:
		return "submitted"
	case StateSubmitFailed:
		return "submit_failed"
	}
	return "unknown"
}

type AnswerResult string

const (
	AnswerPending   AnswerResult = "pending"
	AnswerCorrect   AnswerResult = "correct"
	AnswerIncorrect AnswerResult = "incorrect"
	AnswerTimedOut  AnswerResult = "timed_out"
)

type Question struct {
	ID            string
	Prompt        string
	Options       []string
	CorrectOption int
}

type SessionOptions struct {
	// QuestionTimeout 每题倒计时，0 表示不限时
	QuestionTimeout time.Duration
	// EnergyCost 开始一局扣减的体力
	EnergyCost int
}

// SubmitResult 提交结果；LeveledUp 只用于展示
type SubmitResult struct {
	AttemptID     string
	XPAwarded     int64
	NewXP         int64
	NewLevel      int
	PreviousLevel int
	LeveledUp     bool
	Replayed      bool
}

// Session 一局测试
// 状态转换在 mu 内完成；提交另有 submitting 原子标记，重复点击在任何异步工作前被拒绝
// 标记只存在于本局内存中，进程退出即释放，重启后凭 attemptID 的服务端幂等重试
type Session struct {
	e      *Engine
	testID string
	qs     []Question
	opts   SessionOptions

	mu          sync.Mutex
	state       SessionState
	index       int
	answers     []AnswerResult
	correct     int
	attemptID   string
	preLevel    int
	startedAt   time.Time
	completedAt time.Time
	timer       Timer
	result      *SubmitResult

	submitting atomic.Bool
}

func (e *Engine) NewSession(testID string, questions []Question, opts SessionOptions) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if opts.EnergyCost <= 0 {
		opts.EnergyCost = 1
	}
	answers := make([]AnswerResult, len(questions))
	for i := range answers {
		answers[i] = AnswerPending
	}
	return &Session{
		e:       e,
		testID:  testID,
		qs:      append([]Question(nil), questions...),
		opts:    opts,
		answers: answers,
	}, nil
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *Session) Current() Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qs[s.index]
}

func (s *Session) Answers() []AnswerResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AnswerResult(nil), s.answers...)
}

func (s *Session) Correct() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.correct
}

func (s *Session) AttemptID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attemptID
}

// Duration 从开始到完成的墙钟时长
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completedAt.IsZero() {
		return 0
	}
	return s.completedAt.Sub(s.startedAt)
}

// Start 扣体力并进入第一题；体力不足返回 ErrNoEnergy，状态不变
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNotStarted {
		return ErrInvalidTransition
	}
	s.preLevel = s.e.Store.Level()
	if err := s.e.Energy.Consume(ctx, s.opts.EnergyCost); err != nil {
		return err
	}
	s.attemptID = uuid.NewString()
	s.startedAt = s.e.Clock.Now()
	s.state = StateInProgress
	s.index = 0
	s.armTimer()
	return nil
}

func (s *Session) armTimer() {
	if s.opts.QuestionTimeout <= 0 {
		return
	}
	idx := s.index
	s.timer = s.e.Clock.AfterFunc(s.opts.QuestionTimeout, func() { s.expire(idx) })
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// expire 倒计时结束仍未作答，按超时判错
func (s *Session) expire(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress || s.index != idx || s.answers[idx] != AnswerPending {
		return
	}
	s.answers[idx] = AnswerTimedOut
	s.timer = nil
	s.state = StateAnswered
}

// Answer 第一次作答锁定本题，之后再答返回 ErrAlreadyAnswered
func (s *Session) Answer(option int) (AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAnswered {
		return s.answers[s.index], ErrAlreadyAnswered
	}
	if s.state != StateInProgress {
		return AnswerPending, ErrInvalidTransition
	}
	s.stopTimer()
	res := AnswerIncorrect
	if option == s.qs[s.index].CorrectOption {
		res = AnswerCorrect
		s.correct++
	}
	s.answers[s.index] = res
	s.state = StateAnswered
	return res, nil
}

// Advance 进入下一题，最后一题之后进入 Complete
func (s *Session) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAnswered {
		return ErrInvalidTransition
	}
	if s.index < len(s.qs)-1 {
		s.index++
		s.state = StateInProgress
		s.armTimer()
		return nil
	}
	s.complete()
	return nil
}

// complete 记录时长并一次性加上乐观经验
// 已登录时这部分经验挂在 attempt 名下，对账不会把它推给服务端
func (s *Session) complete() {
	s.completedAt = s.e.Clock.Now()
	s.state = StateComplete
	xp := ledger.TestXP(s.correct)
	var err error
	if _, online := s.e.onlineUser(); online {
		err = s.e.Store.AddPendingXP(s.attemptID, xp)
	} else {
		err = s.e.Store.AddXP(xp)
	}
	if err != nil {
		s.e.log.Warn("apply optimistic xp failed", zap.Error(err))
	}
	s.e.Store.RecordLocalActivity(ledger.TaskTest, s.e.Today())
}

// Abandon 中途退出，停止倒计时；已扣体力不返还
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimer()
}

func (s *Session) payload() remote.TestSubmission {
	total := len(s.qs)
	duration := s.completedAt.Sub(s.startedAt)
	tz := s.e.Store.Snapshot().Timezone
	return remote.TestSubmission{
		AttemptID:       s.attemptID,
		TestID:          s.testID,
		CorrectAnswers:  s.correct,
		TotalQuestions:  total,
		Percent:         math.Round(float64(s.correct)*10000/float64(total)) / 100,
		DurationSeconds: int(duration / time.Second),
		ClientTimestamp: s.completedAt.In(ledger.LoadTimezone(tz)).Format(time.RFC3339),
	}
}

// Submit 提交本局结果
// 同一局并发调用只有一个进入，其余返回 ErrSubmissionInProgress
// 无网络时不发请求直接失败；失败后可再次调用，乐观经验不回滚
func (s *Session) Submit(ctx context.Context) (*SubmitResult, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInProgress
	}
	defer s.submitting.Store(false)

	s.mu.Lock()
	switch s.state {
	case StateSubmitted:
		r := *s.result
		s.mu.Unlock()
		return &r, nil
	case StateComplete, StateSubmitFailed:
	default:
		s.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	req := s.payload()
	preLevel := s.preLevel
	s.state = StateSubmitting
	s.mu.Unlock()

	userID, online := s.e.onlineUser()
	if !online {
		// 本局经验留在本地，绑定账号后随对账推送
		s.e.Store.SettlePendingXP(req.AttemptID, 0)
		st := s.e.Store.Snapshot()
		return s.finish(&SubmitResult{
			AttemptID:     req.AttemptID,
			XPAwarded:     ledger.TestXP(req.CorrectAnswers),
			NewXP:         st.TotalXP,
			NewLevel:      st.Level(),
			PreviousLevel: preLevel,
			LeveledUp:     st.Level() > preLevel,
		}), nil
	}

	if !s.e.reachable(ctx) {
		s.fail()
		return nil, remote.ErrNetworkUnavailable
	}

	res, err := retryOnce(ctx, s.e.retryDelay, func() (*remote.SubmissionResult, error) {
		return s.e.Remote.SubmitTestResult(ctx, userID, req)
	})
	if err != nil {
		s.e.log.Warn("submit test result failed",
			zap.Uint("userID", userID), zap.String("attemptID", req.AttemptID), zap.Error(err))
		s.fail()
		return nil, err
	}

	// 服务端的 NewXP 已包含本局，移除挂起记录后再对齐
	s.e.Store.SettlePendingXP(req.AttemptID, res.NewXP)
	s.e.Reconciler.InvalidateUser(userID)
	return s.finish(&SubmitResult{
		AttemptID:     res.AttemptID,
		XPAwarded:     res.XPAwarded,
		NewXP:         res.NewXP,
		NewLevel:      res.NewLevel,
		PreviousLevel: preLevel,
		LeveledUp:     res.NewLevel > preLevel,
		Replayed:      res.Replayed,
	}), nil
}

func (s *Session) finish(r *SubmitResult) *SubmitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = r
	s.state = StateSubmitted
	out := *r
	return &out
}

func (s *Session) fail() {
	s.mu.Lock()
	s.state = StateSubmitFailed
	s.mu.Unlock()
}
