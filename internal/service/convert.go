package service

import (
	"time"

	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/momentum"
	"github.com/habitlog/internal/progress"
	"github.com/habitlog/internal/rollup"
)

// dayOf 取 t 在其自身时区下的日历日，统一存为 UTC 零点
// 调用方负责先把时间转换到用户时区
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func toRollupHabits(habits []db.Habit) []rollup.Habit {
	out := make([]rollup.Habit, 0, len(habits))
	for _, h := range habits {
		out = append(out, toRollupHabit(h))
	}
	return out
}

func toRollupHabit(h db.Habit) rollup.Habit {
	return rollup.Habit{
		ID:            h.ID,
		Name:          h.Name,
		WeeklyTarget:  h.WeeklyTarget,
		MonthlyTarget: h.MonthlyTarget,
		Archived:      h.Archived(),
	}
}

// toCompletions 只保留 Completed 的记录
func toCompletions(entries []db.HabitEntry) []rollup.Completion {
	out := make([]rollup.Completion, 0, len(entries))
	for _, e := range entries {
		if !e.Completed {
			continue
		}
		out = append(out, rollup.Completion{HabitID: e.HabitID, Date: dayOf(e.EntryDate.UTC())})
	}
	return out
}

func toProgressSubTasks(subTasks []db.SubTask) []progress.SubTask {
	out := make([]progress.SubTask, 0, len(subTasks))
	for _, st := range subTasks {
		out = append(out, progress.SubTask{
			ID:       st.ID,
			Title:    st.Title,
			Weight:   st.Weight,
			Required: st.IsRequired,
			Order:    st.SortOrder,
		})
	}
	return out
}

func toProgressLogs(logs []db.SubTaskLog) []progress.Log {
	out := make([]progress.Log, 0, len(logs))
	for _, l := range logs {
		out = append(out, progress.Log{SubTaskID: l.SubTaskID, Completed: l.Completed})
	}
	return out
}

func toMomentumExecutions(execs []db.ExecutionQuality) []momentum.Execution {
	out := make([]momentum.Execution, 0, len(execs))
	for _, e := range execs {
		out = append(out, momentum.Execution{
			SystemID:              e.SystemID,
			At:                    e.ExecutedAt,
			CompletionRate:        e.CompletionRate,
			EnergyCost:            e.EnergyCost,
			ContextFit:            e.ContextFit,
			SequenceEffectiveness: e.SequenceEffectiveness,
			Quality:               e.Quality,
		})
	}
	return out
}

func toMomentumSystems(systems []db.AdaptiveSystem) []momentum.System {
	out := make([]momentum.System, 0, len(systems))
	for _, s := range systems {
		adaptations := make([]momentum.Adaptation, 0, len(s.AdaptationHistory))
		for _, a := range s.AdaptationHistory {
			adaptations = append(adaptations, momentum.Adaptation{Trigger: a.Trigger, Change: a.Change, Impact: a.Impact, At: a.At})
		}
		out = append(out, momentum.System{
			ID:            s.ID,
			Effectiveness: s.EffectivenessScore,
			Friction:      s.FrictionCoefficient,
			Adaptations:   adaptations,
		})
	}
	return out
}

func toSnapshots(vectors []db.MomentumVector) []momentum.Snapshot {
	out := make([]momentum.Snapshot, 0, len(vectors))
	for _, v := range vectors {
		out = append(out, momentum.Snapshot{Date: v.VectorDate, Overall: v.Overall})
	}
	return out
}

func vectorToModel(userID uint, v momentum.Vector) db.MomentumVector {
	forecast := make([]db.ForecastPoint, 0, len(v.Forecast))
	for _, p := range v.Forecast {
		forecast = append(forecast, db.ForecastPoint{Date: p.Date, Value: p.Value, Confidence: p.Confidence})
	}
	return db.MomentumVector{
		UserID:       userID,
		VectorDate:   dayOf(v.Date),
		Consistency:  v.Consistency,
		Growth:       v.Growth,
		Impact:       v.Impact,
		Learning:     v.Learning,
		Overall:      v.Overall,
		Direction:    string(v.Direction),
		Strength:     v.Strength,
		WeeklyChange: v.WeeklyChange,
		Forecast:     forecast,
	}
}
