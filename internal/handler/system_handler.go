package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/service"
)

type systemPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Locked      bool   `json:"locked"`
	AutoAdapt   bool   `json:"auto_adapt"`
}

type executionPayload struct {
	ExecutedAt            string   `json:"executed_at"` // RFC3339，可选
	CompletionRate        float64  `json:"completion_rate"`
	EnergyCost            float64  `json:"energy_cost"`
	ContextFit            float64  `json:"context_fit"`
	SequenceEffectiveness float64  `json:"sequence_effectiveness"`
	Quality               *float64 `json:"quality"`
	Note                  string   `json:"note"`
}

// ListSystems 返回用户的适应系统
func (a *API) ListSystems(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}

	systems, err := a.systems.List(userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取系统列表失败")
		return
	}

	items := make([]gin.H, 0, len(systems))
	for _, s := range systems {
		items = append(items, systemToPayload(s))
	}
	respondSuccess(c, http.StatusOK, gin.H{"systems": items})
}

// GetSystem 返回系统详情及最近 30 天执行记录
func (a *API) GetSystem(c *gin.Context) {
	userID, id, ok := a.systemParams(c)
	if !ok {
		return
	}

	system, err := a.systems.Get(userID, id)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	now := a.today()
	execs, err := a.systems.Executions(userID, system.ID, now.AddDate(0, 0, -30), now)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"system":     systemToPayload(*system),
		"executions": serializeExecutions(execs),
	})
}

// CreateSystem 新建系统
func (a *API) CreateSystem(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}

	var payload systemPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	system, err := a.systems.Create(userID, toSystemInput(payload))
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, gin.H{"system": systemToPayload(*system)})
}

// UpdateSystem 更新系统
func (a *API) UpdateSystem(c *gin.Context) {
	userID, id, ok := a.systemParams(c)
	if !ok {
		return
	}

	var payload systemPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	system, err := a.systems.Update(userID, id, toSystemInput(payload))
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"system": systemToPayload(*system)})
}

// DeleteSystem 删除系统
func (a *API) DeleteSystem(c *gin.Context) {
	userID, id, ok := a.systemParams(c)
	if !ok {
		return
	}

	if err := a.systems.Delete(userID, id); err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"deleted": true})
}

// RecordExecution 记录一次执行并返回重新评分后的系统
func (a *API) RecordExecution(c *gin.Context) {
	userID, id, ok := a.systemParams(c)
	if !ok {
		return
	}

	var payload executionPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	var executedAt time.Time
	if payload.ExecutedAt != "" {
		parsed, err := time.Parse(time.RFC3339, payload.ExecutedAt)
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的执行时间")
			return
		}
		executedAt = parsed
	} else {
		executedAt = a.today()
	}

	exec, system, err := a.systems.RecordExecution(userID, id, service.ExecutionInput{
		ExecutedAt:            executedAt,
		CompletionRate:        payload.CompletionRate,
		EnergyCost:            payload.EnergyCost,
		ContextFit:            payload.ContextFit,
		SequenceEffectiveness: payload.SequenceEffectiveness,
		Quality:               payload.Quality,
		Note:                  payload.Note,
	})
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, gin.H{
		"execution": serializeExecution(*exec),
		"system":    systemToPayload(*system),
	})
}

// AdaptSystem 手动追加一条调整记录
func (a *API) AdaptSystem(c *gin.Context) {
	userID, id, ok := a.systemParams(c)
	if !ok {
		return
	}

	var payload struct {
		Trigger string  `json:"trigger"`
		Change  string  `json:"change"`
		Impact  float64 `json:"impact"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	system, err := a.systems.Adapt(userID, id, service.AdaptInput{
		Trigger: payload.Trigger,
		Change:  payload.Change,
		Impact:  payload.Impact,
	})
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"system": systemToPayload(*system)})
}

// ListExecutions 返回 [start, end] 内的执行记录，默认最近 30 天
func (a *API) ListExecutions(c *gin.Context) {
	userID, id, ok := a.systemParams(c)
	if !ok {
		return
	}

	end, ok := a.dateQuery(c, "end", a.today())
	if !ok {
		return
	}
	start, ok := a.dateQuery(c, "start", end.AddDate(0, 0, -30))
	if !ok {
		return
	}
	// end 包含当天
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location()).AddDate(0, 0, 1).Add(-time.Nanosecond)

	execs, err := a.systems.Executions(userID, id, start, end)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"executions": serializeExecutions(execs)})
}

func (a *API) systemParams(c *gin.Context) (uint, uint, bool) {
	userID, ok := a.requireUser(c)
	if !ok {
		return 0, 0, false
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的系统ID")
		return 0, 0, false
	}
	return userID, id, true
}

func toSystemInput(payload systemPayload) service.SystemInput {
	return service.SystemInput{
		Name:        payload.Name,
		Description: payload.Description,
		Locked:      payload.Locked,
		AutoAdapt:   payload.AutoAdapt,
	}
}

func systemToPayload(s db.AdaptiveSystem) gin.H {
	history := make([]db.Adaptation, 0, len(s.AdaptationHistory))
	history = append(history, s.AdaptationHistory...)
	return gin.H{
		"id":                   s.ID,
		"name":                 s.Name,
		"description":          s.Description,
		"effectiveness_score":  s.EffectivenessScore,
		"friction_coefficient": s.FrictionCoefficient,
		"locked":               s.Locked,
		"auto_adapt":           s.AutoAdapt,
		"adaptation_history":   history,
	}
}

func serializeExecutions(execs []db.ExecutionQuality) []gin.H {
	items := make([]gin.H, 0, len(execs))
	for _, e := range execs {
		items = append(items, serializeExecution(e))
	}
	return items
}

func serializeExecution(e db.ExecutionQuality) gin.H {
	return gin.H{
		"id":                     e.ID,
		"system_id":              e.SystemID,
		"executed_at":            e.ExecutedAt.Format(time.RFC3339),
		"completion_rate":        e.CompletionRate,
		"energy_cost":            e.EnergyCost,
		"context_fit":            e.ContextFit,
		"sequence_effectiveness": e.SequenceEffectiveness,
		"quality":                e.Quality,
		"note":                   e.Note,
	}
}
