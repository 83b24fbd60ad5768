package util

import "errors"

var (
	ErrUserNotFound      = errors.New("用户不存在")
	ErrEmailRegistered   = errors.New("该邮箱已被注册")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrPermissionDenied  = errors.New("permission denied")

	// 成长系统
	ErrInvalidPayload     = errors.New("invalid submission payload")
	ErrSuspiciousDuration = errors.New("submission duration below allowed minimum")
	ErrDuplicateAttempt   = errors.New("attempt already submitted with a different payload")
	ErrSubmissionInFlight = errors.New("submission for this attempt is already in progress")
	ErrTaskNotCompleted   = errors.New("daily task target not reached")
	ErrInvalidTaskType    = errors.New("invalid task type")
	ErrNotEligible        = errors.New("reward not yet reached")
	ErrMilestoneNotFound  = errors.New("milestone not found")
	ErrNoEnergy           = errors.New("no energy left")
)
