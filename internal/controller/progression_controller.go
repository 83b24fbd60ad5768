package controller

import (
	"errors"
	"learnquest_backend/internal/service"
	"learnquest_backend/internal/util"
	"learnquest_backend/pkg/ledger"

	"github.com/gin-gonic/gin"
)

type ProgressionController struct {
	ProgressionService *service.ProgressionService
}

func NewProgressionController(progressionService *service.ProgressionService) *ProgressionController {
	return &ProgressionController{ProgressionService: progressionService}
}

// swagger:model ClaimDailyRequest
type ClaimDailyRequest struct {
	TaskType string `json:"taskType" binding:"required"`
}

func userIDParam(ctx *gin.Context) (uint, bool) {
	id := util.MustParseUint(ctx.Param("id"))
	if id == 0 {
		util.BadRequest(ctx, "invalid user id")
		return 0, false
	}
	return id, true
}

// writeProgressionError 业务错误到 HTTP 状态码的映射
func writeProgressionError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrUserNotFound), errors.Is(err, util.ErrMilestoneNotFound):
		util.Error(ctx, 404, err.Error())
	case errors.Is(err, util.ErrInvalidTaskType):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrDuplicateAttempt), errors.Is(err, util.ErrSubmissionInFlight):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrInvalidPayload),
		errors.Is(err, util.ErrSuspiciousDuration),
		errors.Is(err, util.ErrTaskNotCompleted),
		errors.Is(err, util.ErrNotEligible):
		util.Unprocessable(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// @Summary 获取成长资料
// @Description 返回权威的 XP、等级、体力、连续打卡和领取标记，顺带结算体力恢复
// @Tags 成长系统
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Success 200 {object} util.Response{data=service.ProfileView}
// @Failure 404 {object} util.Response
// @Router /api/users/{id}/profile [get]
func (c *ProgressionController) GetProfile(ctx *gin.Context) {
	userID, ok := userIDParam(ctx)
	if !ok {
		return
	}

	profile, err := c.ProgressionService.GetProfile(ctx.Request.Context(), userID)
	if err != nil {
		writeProgressionError(ctx, err)
		return
	}
	util.Success(ctx, profile)
}

// @Summary 回写成长数据
// @Description XP 只取较大值，体力只允许扣减
// @Tags 成长系统
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Param body body service.StatsPatch true "部分字段"
// @Success 200 {object} util.Response{data=service.ProfileView}
// @Failure 400 {object} util.Response
// @Router /api/users/{id}/stats [patch]
func (c *ProgressionController) UpdateStats(ctx *gin.Context) {
	userID, ok := userIDParam(ctx)
	if !ok {
		return
	}

	var patch service.StatsPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	profile, err := c.ProgressionService.UpdateStats(ctx.Request.Context(), userID, patch)
	if err != nil {
		writeProgressionError(ctx, err)
		return
	}
	util.Success(ctx, profile)
}

// @Summary 提交测试结果
// @Description 按 attemptId 幂等，重复提交返回首次结果，内容不同返回 409
// @Tags 成长系统
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Param body body service.TestSubmission true "测试结果"
// @Success 200 {object} util.Response{data=service.SubmissionOutcome}
// @Failure 409 {object} util.Response "attempt 冲突"
// @Failure 422 {object} util.Response "答题时长异常"
// @Router /api/users/{id}/test-results [post]
func (c *ProgressionController) SubmitTestResult(ctx *gin.Context) {
	userID, ok := userIDParam(ctx)
	if !ok {
		return
	}

	var req service.TestSubmission
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	outcome, err := c.ProgressionService.SubmitTestResult(ctx.Request.Context(), userID, req)
	if err != nil {
		writeProgressionError(ctx, err)
		return
	}
	util.Success(ctx, outcome)
}

// @Summary 完成课程
// @Description 同一课程重复完成不再发放经验
// @Tags 成长系统
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Param lessonId path string true "课程ID"
// @Success 200 {object} util.Response{data=service.LessonOutcome}
// @Router /api/users/{id}/lessons/{lessonId}/complete [post]
func (c *ProgressionController) CompleteLesson(ctx *gin.Context) {
	userID, ok := userIDParam(ctx)
	if !ok {
		return
	}

	outcome, err := c.ProgressionService.CompleteLesson(ctx.Request.Context(), userID, ctx.Param("lessonId"))
	if err != nil {
		writeProgressionError(ctx, err)
		return
	}
	util.Success(ctx, outcome)
}

// @Summary 今日任务进度
// @Tags 成长系统
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Success 200 {object} util.Response{data=service.DailyProgressView}
// @Router /api/users/{id}/daily-progress [get]
func (c *ProgressionController) GetDailyProgress(ctx *gin.Context) {
	userID, ok := userIDParam(ctx)
	if !ok {
		return
	}

	view, err := c.ProgressionService.GetDailyProgress(ctx.Request.Context(), userID)
	if err != nil {
		writeProgressionError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 领取每日任务奖励
// @Description 重复领取返回 status=alreadyClaimed，不再发放
// @Tags 成长系统
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Param body body ClaimDailyRequest true "任务类型 lesson/test"
// @Success 200 {object} util.Response{data=service.ClaimOutcome}
// @Failure 422 {object} util.Response "未达成"
// @Router /api/users/{id}/daily-progress/claim [post]
func (c *ProgressionController) ClaimDailyTask(ctx *gin.Context) {
	userID, ok := userIDParam(ctx)
	if !ok {
		return
	}

	var req ClaimDailyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	outcome, err := c.ProgressionService.ClaimDailyTask(ctx.Request.Context(), userID, ledger.TaskType(req.TaskType))
	if err != nil {
		writeProgressionError(ctx, err)
		return
	}
	util.Success(ctx, outcome)
}

// @Summary 获取体力
// @Tags 成长系统
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Success 200 {object} util.Response{data=service.EnergyView}
// @Router /api/users/{id}/energy [get]
func (c *ProgressionController) GetEnergy(ctx *gin.Context) {
	userID, ok := userIDParam(ctx)
	if !ok {
		return
	}

	view, err := c.ProgressionService.GetEnergy(ctx.Request.Context(), userID)
	if err != nil {
		writeProgressionError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 领取连续打卡周奖励
// @Tags 成长系统
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Success 200 {object} util.Response{data=service.ClaimOutcome}
// @Router /api/users/{id}/streak/claim [post]
func (c *ProgressionController) ClaimWeeklyReward(ctx *gin.Context) {
	userID, ok := userIDParam(ctx)
	if !ok {
		return
	}

	outcome, err := c.ProgressionService.ClaimWeeklyReward(ctx.Request.Context(), userID)
	if err != nil {
		writeProgressionError(ctx, err)
		return
	}
	util.Success(ctx, outcome)
}

// @Summary 里程碑列表
// @Tags 成长系统
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Success 200 {object} util.Response{data=[]service.MilestoneView}
// @Router /api/users/{id}/milestones [get]
func (c *ProgressionController) ListMilestones(ctx *gin.Context) {
	userID, ok := userIDParam(ctx)
	if !ok {
		return
	}

	views, err := c.ProgressionService.ListMilestones(ctx.Request.Context(), userID)
	if err != nil {
		writeProgressionError(ctx, err)
		return
	}
	util.Success(ctx, views)
}

// @Summary 领取里程碑奖励
// @Tags 成长系统
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Param code path string true "里程碑编码"
// @Success 200 {object} util.Response{data=service.ClaimOutcome}
// @Router /api/users/{id}/milestones/{code}/claim [post]
func (c *ProgressionController) ClaimMilestone(ctx *gin.Context) {
	userID, ok := userIDParam(ctx)
	if !ok {
		return
	}

	outcome, err := c.ProgressionService.ClaimMilestone(ctx.Request.Context(), userID, ctx.Param("code"))
	if err != nil {
		writeProgressionError(ctx, err)
		return
	}
	util.Success(ctx, outcome)
}

// @Summary 重置用户成长数据
// @Description 仅管理员可用
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Success 200 {object} util.Response{data=service.ProfileView}
// @Router /api/admin/users/{id}/reset-progress [post]
func (c *ProgressionController) ResetProgress(ctx *gin.Context) {
	userID, ok := userIDParam(ctx)
	if !ok {
		return
	}

	profile, err := c.ProgressionService.AdminResetProgress(ctx.Request.Context(), userID)
	if err != nil {
		writeProgressionError(ctx, err)
		return
	}
	util.Success(ctx, profile)
}
