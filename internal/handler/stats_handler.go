package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/rollup"
)

// GetStreak 返回当前连胜与最长连胜
func (a *API) GetStreak(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}

	streak, err := a.stats.Streak(c.Request.Context(), userID, a.today())
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"streak": streak})
}

// GetWeek 返回包含 date 的 ISO 周汇总
func (a *API) GetWeek(c *gin.Context) {
	a.periodReport(c, rollup.PeriodWeek)
}

// GetMonth 返回包含 date 的自然月汇总
func (a *API) GetMonth(c *gin.Context) {
	a.periodReport(c, rollup.PeriodMonth)
}

func (a *API) periodReport(c *gin.Context, kind rollup.PeriodKind) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}

	date, ok := a.dateQuery(c, "date", a.today())
	if !ok {
		return
	}

	var (
		report rollup.PeriodReport
		err    error
	)
	if kind == rollup.PeriodMonth {
		report, err = a.stats.Month(c.Request.Context(), userID, date)
	} else {
		report, err = a.stats.Week(c.Request.Context(), userID, date)
	}
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"report": report,
		"top":    rollup.TopHabits(report, 3),
	})
}

// GetDay 返回某天所有活跃习惯的完成度
func (a *API) GetDay(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}

	date, ok := a.dateQuery(c, "date", a.today())
	if !ok {
		return
	}

	summary, err := a.stats.Day(userID, date)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"day": summary})
}
