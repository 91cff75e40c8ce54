package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/handler"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type e2eSuite struct {
	handler http.Handler
	baseURL string
	now     time.Time
	habitID uint
	routine uint
	steps   []uint
	system  uint
}

func TestE2E_AllInterfaces(t *testing.T) {
	suite := newE2ESuite(t)

	t.Run("habits", suite.testHabits)
	t.Run("sub-tasks", suite.testSubTasks)
	t.Run("stats", suite.testStats)
	t.Run("systems", suite.testSystems)
	t.Run("momentum and insights", suite.testMomentumAndInsights)
	t.Run("user isolation", suite.testUserIsolation)
}

func newE2ESuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open("file:router-e2e?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	now := time.Date(2026, 4, 15, 20, 0, 0, 0, time.UTC)
	api := handler.NewAPI(gdb, handler.Options{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
	engine := SetupRouter(api, Options{})

	return &e2eSuite{
		handler: engine,
		baseURL: "http://example.test",
		now:     now,
	}
}

func (s *e2eSuite) testHabits(t *testing.T) {
	resp := s.mustRequestJSON(t, http.MethodPost, "/api/habits", map[string]interface{}{
		"name":  "喝水",
		"emoji": "💧",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create habit status %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var created struct {
		Habit struct {
			ID uint `json:"id"`
		} `json:"habit"`
	}
	decodeJSON(t, resp, &created)
	s.habitID = created.Habit.ID

	for _, date := range []string{"2026-04-11", "2026-04-12", "2026-04-13", "2026-04-14"} {
		resp = s.mustRequestJSON(t, http.MethodPost, "/api/habits/"+idStr(s.habitID)+"/toggle", map[string]interface{}{"date": date})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("toggle %s status %d", date, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp = s.mustRequest(t, http.MethodGet, "/api/habits/"+idStr(s.habitID)+"/calendar?start=2026-04-13&view=weekly", nil, nil)
	var calendar struct {
		Dates []string `json:"dates"`
		Stats struct {
			CompletedCount int `json:"completed_count"`
		} `json:"stats"`
	}
	decodeJSON(t, resp, &calendar)
	if calendar.Stats.CompletedCount != 2 || len(calendar.Dates) != 2 {
		t.Fatalf("unexpected weekly calendar: %+v", calendar)
	}

	resp = s.mustRequestJSON(t, http.MethodPut, "/api/habits/"+idStr(s.habitID), map[string]interface{}{
		"name":          "喝 8 杯水",
		"weekly_target": 5,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update habit status %d: %s", resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()
}

func (s *e2eSuite) testSubTasks(t *testing.T) {
	resp := s.mustRequestJSON(t, http.MethodPost, "/api/habits", map[string]interface{}{
		"name":                 "晨间流程",
		"has_sub_tasks":        true,
		"progress_rule":        "PERCENTAGE",
		"completion_threshold": 60,
	})
	var created struct {
		Habit struct {
			ID uint `json:"id"`
		} `json:"habit"`
	}
	decodeJSON(t, resp, &created)
	s.routine = created.Habit.ID

	for _, title := range []string{"拉伸", "冥想", "写日记"} {
		resp = s.mustRequestJSON(t, http.MethodPost, "/api/habits/"+idStr(s.routine)+"/subtasks", map[string]interface{}{
			"title":             title,
			"estimated_minutes": 10,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create sub-task status %d: %s", resp.StatusCode, readBody(t, resp))
		}
		var st struct {
			SubTask struct {
				ID uint `json:"id"`
			} `json:"sub_task"`
		}
		decodeJSON(t, resp, &st)
		s.steps = append(s.steps, st.SubTask.ID)
	}

	for _, id := range s.steps[:2] {
		resp = s.mustRequestJSON(t, http.MethodPut, "/api/subtasks/"+idStr(id)+"/log", map[string]interface{}{
			"date":               "2026-04-15",
			"completed":          true,
			"time_spent_minutes": 25,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("log sub-task status %d: %s", resp.StatusCode, readBody(t, resp))
		}
		resp.Body.Close()
	}

	resp = s.mustRequest(t, http.MethodGet, "/api/habits/"+idStr(s.routine)+"/progress?date=2026-04-15", nil, nil)
	var progress struct {
		Progress struct {
			CompletionPercentage int  `json:"completion_percentage"`
			IsCompleted          bool `json:"is_completed"`
			Breakdown            []struct {
				Completed bool `json:"completed"`
			} `json:"breakdown"`
		} `json:"progress"`
	}
	decodeJSON(t, resp, &progress)
	if progress.Progress.CompletionPercentage != 66 || !progress.Progress.IsCompleted {
		t.Fatalf("expected 66%% completed, got %+v", progress.Progress)
	}
	if len(progress.Progress.Breakdown) != 3 {
		t.Fatalf("expected breakdown for 3 sub-tasks, got %d", len(progress.Progress.Breakdown))
	}

	reversed := []uint{s.steps[2], s.steps[1], s.steps[0]}
	resp = s.mustRequestJSON(t, http.MethodPost, "/api/habits/"+idStr(s.routine)+"/subtasks/reorder", map[string]interface{}{"ids": reversed})
	var reordered struct {
		SubTasks []struct {
			ID uint `json:"id"`
		} `json:"sub_tasks"`
	}
	decodeJSON(t, resp, &reordered)
	if len(reordered.SubTasks) != 3 || reordered.SubTasks[0].ID != s.steps[2] {
		t.Fatalf("unexpected order after reorder: %+v", reordered.SubTasks)
	}
}

func (s *e2eSuite) testStats(t *testing.T) {
	resp := s.mustRequest(t, http.MethodGet, "/api/stats/day?date=2026-04-15", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("day summary status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = s.mustRequest(t, http.MethodGet, "/api/stats/streak", nil, nil)
	var streak struct {
		Streak struct {
			Current int `json:"current"`
			Longest int `json:"longest"`
		} `json:"streak"`
	}
	decodeJSON(t, resp, &streak)
	// 今天未全部完成不计入；14 日晨间流程未完成，连胜中断
	if streak.Streak.Current != 0 {
		t.Fatalf("expected streak broken by the routine habit, got %+v", streak.Streak)
	}

	resp = s.mustRequest(t, http.MethodGet, "/api/stats/month?date=2026-04-15", nil, nil)
	var month struct {
		Report struct {
			Habits []struct {
				Completed int `json:"completed"`
			} `json:"habits"`
		} `json:"report"`
		Top []interface{} `json:"top"`
	}
	decodeJSON(t, resp, &month)
	if len(month.Report.Habits) != 2 {
		t.Fatalf("expected 2 habits in month report, got %d", len(month.Report.Habits))
	}

	resp = s.mustRequest(t, http.MethodGet, "/api/stats/heatmap", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("heatmap status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func (s *e2eSuite) testSystems(t *testing.T) {
	resp := s.mustRequestJSON(t, http.MethodPost, "/api/systems", map[string]interface{}{
		"name":       "早睡早起",
		"auto_adapt": true,
	})
	var created struct {
		System struct {
			ID uint `json:"id"`
		} `json:"system"`
	}
	decodeJSON(t, resp, &created)
	s.system = created.System.ID

	for i := 0; i < 6; i++ {
		executedAt := s.now.AddDate(0, 0, -i).Format(time.RFC3339)
		resp = s.mustRequestJSON(t, http.MethodPost, "/api/systems/"+idStr(s.system)+"/executions", map[string]interface{}{
			"executed_at":            executedAt,
			"completion_rate":        30,
			"energy_cost":            85,
			"context_fit":            25,
			"sequence_effectiveness": 30,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("record execution status %d: %s", resp.StatusCode, readBody(t, resp))
		}
		resp.Body.Close()
	}

	resp = s.mustRequest(t, http.MethodGet, "/api/systems/"+idStr(s.system), nil, nil)
	var detail struct {
		System struct {
			EffectivenessScore float64 `json:"effectiveness_score"`
			AdaptationHistory  []struct {
				Trigger string `json:"trigger"`
			} `json:"adaptation_history"`
		} `json:"system"`
		Executions []interface{} `json:"executions"`
	}
	decodeJSON(t, resp, &detail)
	if detail.System.EffectivenessScore != 25 {
		t.Fatalf("expected effectiveness 25, got %.2f", detail.System.EffectivenessScore)
	}
	if len(detail.System.AdaptationHistory) != 6 {
		t.Fatalf("expected an automatic adaptation per low-quality execution, got %d", len(detail.System.AdaptationHistory))
	}
	if len(detail.Executions) != 6 {
		t.Fatalf("expected 6 executions in detail, got %d", len(detail.Executions))
	}
}

func (s *e2eSuite) testMomentumAndInsights(t *testing.T) {
	resp := s.mustRequest(t, http.MethodGet, "/api/momentum", nil, nil)
	var m struct {
		Momentum struct {
			Overall int `json:"overall"`
			Samples int `json:"samples"`
		} `json:"momentum"`
	}
	decodeJSON(t, resp, &m)
	if m.Momentum.Samples != 6 {
		t.Fatalf("expected 6 samples, got %d", m.Momentum.Samples)
	}

	resp = s.mustRequest(t, http.MethodGet, "/api/insights", nil, nil)
	var report struct {
		Insights struct {
			Findings []struct {
				Type string `json:"type"`
			} `json:"findings"`
		} `json:"insights"`
	}
	decodeJSON(t, resp, &report)
	found := false
	for _, f := range report.Insights.Findings {
		if f.Type == "system-failure" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected system-failure prediction, got %+v", report.Insights.Findings)
	}
}

func (s *e2eSuite) testUserIsolation(t *testing.T) {
	headers := map[string]string{"X-User-ID": "2"}

	resp := s.mustRequest(t, http.MethodGet, "/api/habits/"+idStr(s.habitID), nil, headers)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected other user's habit to be hidden, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = s.mustRequest(t, http.MethodGet, "/api/systems", nil, headers)
	var list struct {
		Systems []interface{} `json:"systems"`
	}
	decodeJSON(t, resp, &list)
	if len(list.Systems) != 0 {
		t.Fatalf("expected no systems for user 2, got %d", len(list.Systems))
	}
}

func (s *e2eSuite) mustRequest(t *testing.T, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.baseURL+path, body)
	if err != nil {
		t.Fatalf("failed to build request %s %s: %v", method, path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w.Result()
}

func (s *e2eSuite) mustRequestJSON(t *testing.T, method, path string, payload map[string]interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	headers := map[string]string{"Content-Type": "application/json"}
	return s.mustRequest(t, method, path, bytes.NewReader(data), headers)
}

func decodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	body := readBody(t, resp)
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		t.Fatalf("failed to decode json: %v\nbody=%s", err, body)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(data)
}

func idStr(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
