package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/service"
)

type subTaskPayload struct {
	Title            string `json:"title"`
	Weight           int    `json:"weight"`
	IsRequired       bool   `json:"is_required"`
	SortOrder        int    `json:"sort_order"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

// ListSubTasks 返回习惯的子任务
func (a *API) ListSubTasks(c *gin.Context) {
	userID, habitID, ok := a.habitParams(c)
	if !ok {
		return
	}

	subTasks, err := a.subTasks.List(userID, habitID)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"sub_tasks": serializeSubTasks(subTasks)})
}

// CreateSubTask 为习惯新增子任务
func (a *API) CreateSubTask(c *gin.Context) {
	userID, habitID, ok := a.habitParams(c)
	if !ok {
		return
	}

	var payload subTaskPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	subTask, err := a.subTasks.Create(userID, habitID, toSubTaskInput(payload))
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, gin.H{"sub_task": serializeSubTask(*subTask)})
}

// UpdateSubTask 更新子任务
func (a *API) UpdateSubTask(c *gin.Context) {
	userID, id, ok := a.subTaskParams(c)
	if !ok {
		return
	}

	var payload subTaskPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	subTask, err := a.subTasks.Update(userID, id, toSubTaskInput(payload))
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"sub_task": serializeSubTask(*subTask)})
}

// DeleteSubTask 删除子任务
func (a *API) DeleteSubTask(c *gin.Context) {
	userID, id, ok := a.subTaskParams(c)
	if !ok {
		return
	}

	if err := a.subTasks.Delete(userID, id); err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"deleted": true})
}

// ReorderSubTasks 按给定 ID 顺序重排子任务
func (a *API) ReorderSubTasks(c *gin.Context) {
	userID, habitID, ok := a.habitParams(c)
	if !ok {
		return
	}

	var payload struct {
		IDs []uint `json:"ids"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	subTasks, err := a.subTasks.Reorder(userID, habitID, payload.IDs)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"sub_tasks": serializeSubTasks(subTasks)})
}

// LogSubTask 勾选或取消子任务，返回刷新后的习惯完成度
func (a *API) LogSubTask(c *gin.Context) {
	userID, id, ok := a.subTaskParams(c)
	if !ok {
		return
	}

	var payload struct {
		Date             string `json:"date"`
		Completed        bool   `json:"completed"`
		TimeSpentMinutes int    `json:"time_spent_minutes"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	date, err := a.parseDate(payload.Date, a.today())
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的打卡日期")
		return
	}

	progress, err := a.entries.SetSubTask(userID, id, service.SubTaskLogInput{
		Date:             date,
		Completed:        payload.Completed,
		TimeSpentMinutes: payload.TimeSpentMinutes,
	})
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"habit_id": progress.HabitID,
		"date":     progress.Date.Format(dateFormat),
		"progress": progress.Result,
	})
}

func (a *API) subTaskParams(c *gin.Context) (uint, uint, bool) {
	userID, ok := a.requireUser(c)
	if !ok {
		return 0, 0, false
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的子任务ID")
		return 0, 0, false
	}
	return userID, id, true
}

func toSubTaskInput(payload subTaskPayload) service.SubTaskInput {
	return service.SubTaskInput{
		Title:            payload.Title,
		Weight:           payload.Weight,
		IsRequired:       payload.IsRequired,
		SortOrder:        payload.SortOrder,
		EstimatedMinutes: payload.EstimatedMinutes,
	}
}

func serializeSubTasks(subTasks []db.SubTask) []gin.H {
	items := make([]gin.H, 0, len(subTasks))
	for _, st := range subTasks {
		items = append(items, serializeSubTask(st))
	}
	return items
}

func serializeSubTask(st db.SubTask) gin.H {
	return gin.H{
		"id":                st.ID,
		"habit_id":          st.HabitID,
		"title":             st.Title,
		"weight":            st.Weight,
		"is_required":       st.IsRequired,
		"sort_order":        st.SortOrder,
		"estimated_minutes": st.EstimatedMinutes,
	}
}
