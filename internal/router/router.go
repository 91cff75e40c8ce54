package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/handler"
	"github.com/habitlog/internal/logger"
	"github.com/habitlog/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Options 控制中间件的装配
type Options struct {
	Logger      *logger.Logger
	CORSOrigins []string
	Tracing     bool
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Tracing {
		r.Use(otelgin.Middleware(observability.ServiceName))
	}
	r.Use(requestID())
	r.Use(requestLogger(opts.Logger))
	r.Use(corsMiddleware(opts.CORSOrigins))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	v1 := r.Group("/api")
	{
		v1.GET("/habits", api.ListHabits)
		v1.POST("/habits", api.CreateHabit)
		v1.GET("/habits/:id", api.GetHabit)
		v1.PUT("/habits/:id", api.UpdateHabit)
		v1.DELETE("/habits/:id", api.DeleteHabit)
		v1.POST("/habits/:id/archive", api.ArchiveHabit)
		v1.POST("/habits/:id/restore", api.RestoreHabit)

		// 打卡与完成度
		v1.POST("/habits/:id/toggle", api.ToggleHabit)
		v1.GET("/habits/:id/progress", api.GetHabitProgress)
		v1.GET("/habits/:id/calendar", api.GetHabitCalendar)

		// 子任务
		v1.GET("/habits/:id/subtasks", api.ListSubTasks)
		v1.POST("/habits/:id/subtasks", api.CreateSubTask)
		v1.POST("/habits/:id/subtasks/reorder", api.ReorderSubTasks)
		v1.PUT("/subtasks/:id", api.UpdateSubTask)
		v1.DELETE("/subtasks/:id", api.DeleteSubTask)
		v1.PUT("/subtasks/:id/log", api.LogSubTask)

		stats := v1.Group("/stats")
		{
			stats.GET("/streak", api.GetStreak)
			stats.GET("/week", api.GetWeek)
			stats.GET("/month", api.GetMonth)
			stats.GET("/day", api.GetDay)
			stats.GET("/heatmap", api.GetHeatmap)
		}

		v1.GET("/systems", api.ListSystems)
		v1.POST("/systems", api.CreateSystem)
		v1.GET("/systems/:id", api.GetSystem)
		v1.PUT("/systems/:id", api.UpdateSystem)
		v1.DELETE("/systems/:id", api.DeleteSystem)
		v1.POST("/systems/:id/executions", api.RecordExecution)
		v1.GET("/systems/:id/executions", api.ListExecutions)
		v1.POST("/systems/:id/adapt", api.AdaptSystem)

		v1.GET("/momentum", api.GetMomentum)
		v1.GET("/momentum/history", api.GetMomentumHistory)

		v1.GET("/insights", api.GetInsights)
	}

	return r
}
