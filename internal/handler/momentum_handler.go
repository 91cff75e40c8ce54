package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/service"
)

// GetMomentum 计算并保存 end 当天的动量；start 缺省为 end 前 30 天
func (a *API) GetMomentum(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}

	end, ok := a.dateQuery(c, "end", a.today())
	if !ok {
		return
	}
	start, ok := a.dateQuery(c, "start", end.AddDate(0, 0, -service.DefaultMomentumWindow))
	if !ok {
		return
	}
	if end.Before(start) {
		respondError(c, http.StatusBadRequest, "结束日期早于开始日期")
		return
	}

	vector, err := a.momentum.Compute(c.Request.Context(), userID, start, end)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"momentum": vector})
}

// GetMomentumHistory 返回已保存的每日动量
func (a *API) GetMomentumHistory(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}

	end, ok := a.dateQuery(c, "end", a.today())
	if !ok {
		return
	}
	start, ok := a.dateQuery(c, "start", end.AddDate(0, 0, -service.DefaultMomentumWindow))
	if !ok {
		return
	}

	vectors, err := a.momentum.History(userID, start, end)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(vectors))
	for _, v := range vectors {
		items = append(items, gin.H{
			"date":          v.VectorDate.Format(dateFormat),
			"consistency":   v.Consistency,
			"growth":        v.Growth,
			"impact":        v.Impact,
			"learning":      v.Learning,
			"overall":       v.Overall,
			"direction":     v.Direction,
			"strength":      v.Strength,
			"weekly_change": v.WeeklyChange,
			"updated_at":    v.UpdatedAt.Format(time.RFC3339),
		})
	}
	respondSuccess(c, http.StatusOK, gin.H{"history": items})
}
