package progress

import (
	"cmp"
	"slices"
)

const defaultWeight = 1

// SubTask 是参与计算的子任务定义
type SubTask struct {
	ID       uint
	Title    string
	Weight   int
	Required bool
	Order    int
}

// Log 是子任务在某一天的完成记录
type Log struct {
	SubTaskID uint
	Completed bool
}

// BreakdownItem 是单个子任务在结果中的明细
type BreakdownItem struct {
	SubTaskID uint   `json:"sub_task_id"`
	Title     string `json:"title"`
	Weight    int    `json:"weight"`
	Required  bool   `json:"required"`
	Completed bool   `json:"completed"`
}

// Calculation 汇总一次完成度计算的结果
type Calculation struct {
	Rule                 Kind            `json:"rule,omitempty"`
	CompletionPercentage int             `json:"completion_percentage"`
	IsCompleted          bool            `json:"is_completed"`
	TotalSubTasks        int             `json:"total_sub_tasks"`
	CompletedSubTasks    int             `json:"completed_sub_tasks"`
	TotalPoints          int             `json:"total_points"`
	EarnedPoints         int             `json:"earned_points"`
	CompletedRequired    int             `json:"completed_required"`
	TotalRequired        int             `json:"total_required"`
	Breakdown            []BreakdownItem `json:"breakdown"`
}

// Direct 用于没有子任务的习惯：完成与否只取决于当天是否有打卡记录
func Direct(completed bool) Calculation {
	calc := Calculation{IsCompleted: completed, Breakdown: []BreakdownItem{}}
	if completed {
		calc.CompletionPercentage = 100
	}
	return calc
}

// Evaluate 按规则计算子任务型习惯当天的完成度
// 所有除法在分母为 0 时返回 0；百分比向下取整
func Evaluate(rule Rule, subTasks []SubTask, logs []Log) Calculation {
	if rule == nil {
		rule = AllRequired{}
	}

	done := make(map[uint]bool, len(logs))
	for _, log := range logs {
		if log.Completed {
			done[log.SubTaskID] = true
		}
	}

	ordered := slices.Clone(subTasks)
	slices.SortStableFunc(ordered, func(a, b SubTask) int {
		if diff := cmp.Compare(a.Order, b.Order); diff != 0 {
			return diff
		}
		return cmp.Compare(a.ID, b.ID)
	})

	calc := Calculation{Rule: rule.Kind(), Breakdown: make([]BreakdownItem, 0, len(ordered))}
	for _, task := range ordered {
		weight := task.Weight
		if weight <= 0 {
			weight = defaultWeight
		}
		completed := done[task.ID]

		calc.TotalSubTasks++
		calc.TotalPoints += weight
		if task.Required {
			calc.TotalRequired++
		}
		if completed {
			calc.CompletedSubTasks++
			calc.EarnedPoints += weight
			if task.Required {
				calc.CompletedRequired++
			}
		}

		calc.Breakdown = append(calc.Breakdown, BreakdownItem{
			SubTaskID: task.ID,
			Title:     task.Title,
			Weight:    weight,
			Required:  task.Required,
			Completed: completed,
		})
	}

	switch r := rule.(type) {
	case AllRequired:
		calc.CompletionPercentage = percent(calc.CompletedRequired, calc.TotalRequired)
		calc.IsCompleted = calc.TotalRequired > 0 && calc.CompletedRequired == calc.TotalRequired
	case Percentage:
		calc.CompletionPercentage = percent(calc.CompletedSubTasks, calc.TotalSubTasks)
		calc.IsCompleted = calc.TotalSubTasks > 0 && calc.CompletionPercentage >= r.Threshold
	case Points:
		calc.CompletionPercentage = percent(calc.EarnedPoints, calc.TotalPoints)
		calc.IsCompleted = calc.TotalPoints > 0 && calc.CompletionPercentage >= r.Threshold
	}

	return calc
}

func percent(part, total int) int {
	if total <= 0 || part <= 0 {
		return 0
	}
	if part >= total {
		return 100
	}
	return part * 100 / total
}
