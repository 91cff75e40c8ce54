package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/insight"
)

// GetInsights 返回偏差、预测、杠杆点与阻力点；category 可过滤
func (a *API) GetInsights(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}

	report, err := a.insights.Generate(c.Request.Context(), userID, a.today())
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	if category := strings.TrimSpace(c.Query("category")); category != "" {
		report.Findings = report.Filter(insight.Category(strings.ToLower(category)))
	}

	respondSuccess(c, http.StatusOK, gin.H{"insights": report})
}
