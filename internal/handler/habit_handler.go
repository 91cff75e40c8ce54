package handler

import (
	"cmp"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/service"
)

const defaultCalendarView = "monthly"

type heatmapHabit struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

type heatmapDay struct {
	Date   string         `json:"date"`
	Habits []heatmapHabit `json:"habits"`
}

type heatmapRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type heatmapSummary struct {
	TotalEntries int `json:"total_entries"`
	ActiveDays   int `json:"active_days"`
	HabitCount   int `json:"habit_count"`
}

type habitHeatmapPayload struct {
	Range       heatmapRange   `json:"range"`
	Days        []heatmapDay   `json:"days"`
	Habits      []heatmapHabit `json:"habits"`
	Summary     heatmapSummary `json:"summary"`
	GeneratedAt string         `json:"generated_at"`
}

type habitPayload struct {
	Name                string `json:"name"`
	Emoji               string `json:"emoji"`
	Notes               string `json:"notes"`
	Cadence             string `json:"cadence"`
	HasSubTasks         bool   `json:"has_sub_tasks"`
	ProgressRule        string `json:"progress_rule"`
	CompletionThreshold int    `json:"completion_threshold"`
	WeeklyTarget        int    `json:"weekly_target"`
	MonthlyTarget       int    `json:"monthly_target"`
	SortOrder           int    `json:"sort_order"`
}

// ListHabits 返回习惯列表 JSON
func (a *API) ListHabits(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}

	includeArchived, _ := strconv.ParseBool(c.Query("archived"))
	filter := service.HabitFilter{
		IncludeArchived: includeArchived,
		Cadence:         c.Query("cadence"),
		Search:          c.Query("search"),
	}

	habits, err := a.habits.List(userID, filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取习惯列表失败")
		return
	}

	items := make([]gin.H, 0, len(habits))
	for _, habit := range habits {
		items = append(items, habitToPayload(habit))
	}

	respondSuccess(c, http.StatusOK, gin.H{"habits": items})
}

// GetHabit 返回单个习惯详情
func (a *API) GetHabit(c *gin.Context) {
	userID, id, ok := a.habitParams(c)
	if !ok {
		return
	}

	habit, err := a.habits.Get(userID, id)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// CreateHabit 创建习惯
func (a *API) CreateHabit(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}

	input, ok := parseHabitInput(c)
	if !ok {
		return
	}

	habit, err := a.habits.Create(userID, input)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, gin.H{"habit": habitToPayload(*habit)})
}

// UpdateHabit 更新习惯
func (a *API) UpdateHabit(c *gin.Context) {
	userID, id, ok := a.habitParams(c)
	if !ok {
		return
	}

	input, ok := parseHabitInput(c)
	if !ok {
		return
	}

	habit, err := a.habits.Update(userID, id, input)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// DeleteHabit 删除习惯；有历史记录时改为归档
func (a *API) DeleteHabit(c *gin.Context) {
	userID, id, ok := a.habitParams(c)
	if !ok {
		return
	}

	archived, err := a.habits.Delete(userID, id)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"deleted": !archived, "archived": archived})
}

// ArchiveHabit 归档习惯
func (a *API) ArchiveHabit(c *gin.Context) {
	userID, id, ok := a.habitParams(c)
	if !ok {
		return
	}

	habit, err := a.habits.Archive(userID, id)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// RestoreHabit 取消归档
func (a *API) RestoreHabit(c *gin.Context) {
	userID, id, ok := a.habitParams(c)
	if !ok {
		return
	}

	habit, err := a.habits.Restore(userID, id)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// ToggleHabit 切换普通习惯某天的完成状态，默认今天
func (a *API) ToggleHabit(c *gin.Context) {
	userID, id, ok := a.habitParams(c)
	if !ok {
		return
	}

	var payload struct {
		Date string `json:"date"`
	}
	if c.Request.ContentLength > 0 && !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	date, err := a.parseDate(payload.Date, a.today())
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的打卡日期")
		return
	}

	result, err := a.entries.Toggle(c.Request.Context(), userID, id, date)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"habit_id":  result.HabitID,
		"date":      result.Date.Format(dateFormat),
		"completed": result.Completed,
	})
}

// GetHabitProgress 返回习惯某天的完成度与子任务明细
func (a *API) GetHabitProgress(c *gin.Context) {
	userID, id, ok := a.habitParams(c)
	if !ok {
		return
	}

	date, ok := a.dateQuery(c, "date", a.today())
	if !ok {
		return
	}

	progress, err := a.entries.Progress(userID, id, date)
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

// GetHabitCalendar 返回日期区间内的打卡数据和统计
func (a *API) GetHabitCalendar(c *gin.Context) {
	userID, id, ok := a.habitParams(c)
	if !ok {
		return
	}

	anchor, ok := a.dateQuery(c, "start", a.today())
	if !ok {
		return
	}
	view := c.DefaultQuery("view", defaultCalendarView)
	start, end := resolveRange(anchor, view)

	calendar, err := a.stats.Calendar(userID, id, start, end)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	dates := make([]string, 0, len(calendar.Dates))
	for _, d := range calendar.Dates {
		dates = append(dates, d.Format(dateFormat))
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"habit_id": calendar.HabitID,
		"dates":    dates,
		"stats":    serializeRangeStats(calendar),
		"range":    gin.H{"start": start.Format(dateFormat), "end": end.Format(dateFormat), "view": view},
	})
}

// GetHeatmap 返回过去一年所有习惯的打卡热力图
func (a *API) GetHeatmap(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}

	now := a.today()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := end.AddDate(0, 0, -364)

	entries, err := a.stats.Heatmap(userID, start, end)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取热力图数据失败")
		return
	}

	respondSuccess(c, http.StatusOK, buildHabitHeatmapPayload(entries, start, end, now))
}

func (a *API) habitParams(c *gin.Context) (uint, uint, bool) {
	userID, ok := a.requireUser(c)
	if !ok {
		return 0, 0, false
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return 0, 0, false
	}
	return userID, id, true
}

func parseHabitInput(c *gin.Context) (service.HabitInput, bool) {
	var payload habitPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return service.HabitInput{}, false
	}

	return service.HabitInput{
		Name:                payload.Name,
		Emoji:               payload.Emoji,
		Notes:               payload.Notes,
		Cadence:             payload.Cadence,
		HasSubTasks:         payload.HasSubTasks,
		ProgressRule:        payload.ProgressRule,
		CompletionThreshold: payload.CompletionThreshold,
		WeeklyTarget:        payload.WeeklyTarget,
		MonthlyTarget:       payload.MonthlyTarget,
		SortOrder:           payload.SortOrder,
	}, true
}

func buildHabitHeatmapPayload(entries []service.HeatmapEntry, start, end, generatedAt time.Time) habitHeatmapPayload {
	dayMap := make(map[string][]heatmapHabit)
	legendMap := make(map[uint]heatmapHabit)

	for _, entry := range entries {
		habit := heatmapHabit{ID: entry.HabitID, Name: entry.HabitName, Emoji: entry.Emoji}
		key := entry.EntryDate.Format(dateFormat)
		dayMap[key] = append(dayMap[key], habit)
		if _, exists := legendMap[habit.ID]; !exists {
			legendMap[habit.ID] = habit
		}
	}

	days := make([]heatmapDay, 0, len(dayMap))
	for date, habits := range dayMap {
		slices.SortFunc(habits, func(a, b heatmapHabit) int {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
		days = append(days, heatmapDay{Date: date, Habits: habits})
	}

	slices.SortFunc(days, func(a, b heatmapDay) int {
		return cmp.Compare(a.Date, b.Date)
	})

	legend := make([]heatmapHabit, 0, len(legendMap))
	for _, item := range legendMap {
		legend = append(legend, item)
	}

	slices.SortFunc(legend, func(a, b heatmapHabit) int {
		if diff := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); diff != 0 {
			return diff
		}
		return cmp.Compare(a.ID, b.ID)
	})

	payload := habitHeatmapPayload{
		Range: heatmapRange{
			Start: start.Format(dateFormat),
			End:   end.Format(dateFormat),
		},
		Days:    days,
		Habits:  legend,
		Summary: heatmapSummary{TotalEntries: len(entries), ActiveDays: len(dayMap), HabitCount: len(legend)},
	}

	if !generatedAt.IsZero() {
		payload.GeneratedAt = generatedAt.Format(time.RFC3339)
	}

	return payload
}

func habitToPayload(habit db.Habit) gin.H {
	item := gin.H{
		"id":                   habit.ID,
		"name":                 habit.Name,
		"emoji":                habit.Emoji,
		"notes":                habit.Notes,
		"cadence":              habit.Cadence,
		"has_sub_tasks":        habit.HasSubTasks,
		"progress_rule":        habit.ProgressRule,
		"completion_threshold": habit.CompletionThreshold,
		"weekly_target":        habit.WeeklyTarget,
		"monthly_target":       habit.MonthlyTarget,
		"sort_order":           habit.SortOrder,
		"archived":             habit.Archived(),
		"sub_tasks":            serializeSubTasks(habit.SubTasks),
	}

	if notesHTML, err := renderMarkdown(habit.Notes); err == nil {
		item["notes_html"] = notesHTML
	}
	if habit.ArchivedAt != nil {
		item["archived_at"] = habit.ArchivedAt.Format(time.RFC3339)
	}

	return item
}

func serializeRangeStats(view *service.CalendarView) gin.H {
	stats := view.Stats
	return gin.H{
		"range_start":     stats.RangeStart.Format(dateFormat),
		"range_end":       stats.RangeEnd.Format(dateFormat),
		"completed_count": stats.CompletedCount,
		"target_count":    stats.TargetCount,
		"completion_rate": stats.CompletionRate,
		"current_streak":  stats.CurrentStreak,
		"longest_streak":  stats.LongestStreak,
	}
}

func resolveRange(start time.Time, view string) (time.Time, time.Time) {
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	switch strings.ToLower(view) {
	case "weekly":
		weekday := int(start.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = start.AddDate(0, 0, -weekday+1)
		end := start.AddDate(0, 0, 6)
		return start, end
	default:
		start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
		end := start.AddDate(0, 1, -1)
		return start, end
	}
}
